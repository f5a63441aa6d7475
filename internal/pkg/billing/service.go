package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/notify"
)

// Outcome is how a delivered event ended.
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
	OutcomeFailed    Outcome = "failed"
)

// Notifier delivers transactional notifications.
type Notifier interface {
	Send(ctx context.Context, n notify.Notification) error
}

// Locker serialises work on one key across processes.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// OutcomeRecorder counts handled events by kind and outcome.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, kind, outcome string) error
}

// ReconcilerConfig carries the webhook secret and the timeouts of the engine.
type ReconcilerConfig struct {
	WebhookSecret      string
	SignatureTolerance time.Duration
	WriteTimeout       time.Duration
	LockTTL            time.Duration
}

// Result describes a handled webhook delivery.
type Result struct {
	EventID        string
	Kind           EventKind
	Outcome        Outcome
	SubscriptionID uint
	// Created is true when this delivery created the subscription.
	Created bool
}

// Reconciler turns verified processor events into subscriptions, scheduled
// payments and credit ledgers, exactly once per event.
type Reconciler struct {
	repo      Repository
	processor Processor
	notifier  Notifier
	locker    Locker
	outcomes  OutcomeRecorder
	cfg       ReconcilerConfig
	now       func() time.Time
}

// NewReconciler wires the engine. Locker and OutcomeRecorder are optional.
func NewReconciler(repo Repository, processor Processor, notifier Notifier, cfg ReconcilerConfig) *Reconciler {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Reconciler{
		repo:      repo,
		processor: processor,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithLocker serialises reconciliations per (user, product) with l.
func (s *Reconciler) WithLocker(l Locker) *Reconciler {
	s.locker = l
	return s
}

// WithOutcomeRecorder counts webhook outcomes per event kind with r.
func (s *Reconciler) WithOutcomeRecorder(r OutcomeRecorder) *Reconciler {
	s.outcomes = r
	return s
}

// HandleWebhook verifies, classifies and reconciles one delivery. Errors wrap
// ErrSignatureInvalid, ErrMalformedPayload, ErrProductNotFound, ErrInvalid*
// (reject) or ErrTransientDependency (redeliver).
func (s *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Result, error) {
	if err := VerifyWebhookSignature(payload, signature, s.cfg.WebhookSecret, s.cfg.SignatureTolerance, s.now()); err != nil {
		log.Warnf("[Billing] rejected webhook: %v", err)
		s.recordOutcome(ctx, EventUnknown, OutcomeRejected)
		return nil, err
	}

	ev, err := ParseEvent(payload)
	if err != nil {
		log.Warnf("[Billing] rejected webhook: %v", err)
		s.recordOutcome(ctx, EventUnknown, OutcomeRejected)
		return nil, err
	}

	var res *Result
	switch ev.Kind {
	case EventCheckoutCompleted:
		res, err = s.handleCheckoutCompleted(ctx, ev, payload)
	case EventPaymentFailed:
		res, err = s.handlePaymentFailed(ctx, ev, payload)
	default:
		log.Infof("[Billing] ignoring event %s of type %s", ev.ID, ev.Type)
		res = &Result{EventID: ev.ID, Kind: ev.Kind, Outcome: OutcomeIgnored}
	}

	switch {
	case err == nil:
		s.recordOutcome(ctx, ev.Kind, res.Outcome)
	case IsRetryable(err):
		log.Errorf("[Billing] event %s (%s) failed, requesting redelivery: %v", ev.ID, ev.Type, err)
		s.recordOutcome(ctx, ev.Kind, OutcomeFailed)
	default:
		log.Warnf("[Billing] event %s (%s) rejected: %v", ev.ID, ev.Type, err)
		s.recordOutcome(ctx, ev.Kind, OutcomeRejected)
	}
	return res, err
}

func (s *Reconciler) handleCheckoutCompleted(ctx context.Context, ev *Event, payload []byte) (*Result, error) {
	md, err := ev.CheckoutMetadata()
	if err != nil {
		return nil, err
	}

	product, err := s.repo.FindProduct(ctx, md.ProductID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: product %d", ErrProductNotFound, md.ProductID)
	}
	if err != nil {
		return nil, transient("load product", err)
	}
	plan, err := BuildChargePlan(product, md.Params)
	if err != nil {
		return nil, err
	}

	event, fresh, err := s.recordEvent(ctx, ev, payload)
	if err != nil {
		return nil, err
	}
	res := &Result{EventID: ev.ID, Kind: ev.Kind}
	if !fresh {
		log.Infof("[Billing] event %s for session %s already processed", ev.ID, ev.Object.ID)
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	s.attachPaymentMethod(ctx, ev)

	unlock := s.lock(ctx, md.UserID, md.ProductID)
	defer unlock()

	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	var out checkoutWrites
	err = s.repo.Transaction(writeCtx, func(tx Repository) error {
		var err error
		out, err = reconcileCheckout(writeCtx, tx, ev, md, product, plan, s.now())
		if err != nil {
			return err
		}
		return tx.MarkWebhookProcessed(writeCtx, event.ID, "")
	})
	if err != nil {
		s.markFailed(ctx, event.ID, err)
		return nil, transient("reconcile checkout", err)
	}

	res.Outcome = OutcomeProcessed
	res.SubscriptionID = out.subscription.ID
	res.Created = out.subscriptionCreated
	log.Infof("[Billing] checkout %s reconciled: user=%d product=%d type=%s subscription=%d created=%t schedule_created=%t ledger_created=%t",
		ev.Object.ID, md.UserID, md.ProductID, plan.ProductType, out.subscription.ID,
		out.subscriptionCreated, out.scheduleCreated, out.ledgerCreated)

	if out.subscriptionCreated {
		s.notifyCheckout(ctx, md, product, plan, out.subscription)
	}
	return res, nil
}

// checkoutWrites reports what phase one created versus found.
type checkoutWrites struct {
	subscription        *models.Subscription
	subscriptionCreated bool
	scheduleCreated     bool
	ledgerCreated       bool
}

// reconcileCheckout performs the must-succeed writes of a completed checkout.
// Each step is gated on what already exists, so rerunning it converges.
func reconcileCheckout(ctx context.Context, tx Repository, ev *Event, md *CheckoutMetadata, product *models.Product, plan *ChargePlan, now time.Time) (checkoutWrites, error) {
	var out checkoutWrites

	key := models.ActiveKey(md.UserID, md.ProductID)
	if !plan.RequiresSchedule {
		key = models.CheckoutKey(ev.Object.ID)
	}

	sub, err := tx.FindSubscriptionByKey(ctx, *key)
	switch {
	case err == nil:
		out.subscription = sub
	case errors.Is(err, ErrNotFound):
		sub = newSubscription(md, plan, ev.Object.ID, key, now)
		created, err := tx.CreateSubscriptionIfNotExists(ctx, sub)
		if err != nil {
			return out, fmt.Errorf("create subscription: %w", err)
		}
		out.subscription = sub
		out.subscriptionCreated = created
	default:
		return out, fmt.Errorf("find subscription: %w", err)
	}

	if plan.RequiresSchedule {
		_, err := NewScheduleRegistry(tx).Create(ctx, ScheduleInput{
			UserID:            md.UserID,
			ProductID:         md.ProductID,
			BusinessID:        product.BusinessID,
			SubscriptionID:    out.subscription.ID,
			Day:               plan.PaymentDay,
			Amount:            plan.Amount,
			CustomerReference: md.CustomerReference,
		})
		switch {
		case err == nil:
			out.scheduleCreated = true
		case errors.Is(err, ErrAlreadyScheduled):
		default:
			return out, fmt.Errorf("create scheduled payment: %w", err)
		}
	}

	if plan.RequiresLedger {
		_, created, err := NewCreditLedger(tx).Initialize(ctx, md.UserID, product.BusinessID)
		if err != nil {
			return out, fmt.Errorf("initialize credit ledger: %w", err)
		}
		out.ledgerCreated = created
	}

	if pi := ev.Object.PaymentIntent; pi != "" {
		amount := ev.Object.AmountTotal
		if amount <= 0 {
			amount = plan.Amount
		}
		_, err := tx.CreatePaymentIfNotExists(ctx, &models.Payment{
			ProcessorPaymentID: pi,
			UserID:             md.UserID,
			BusinessID:         product.BusinessID,
			ProductID:          product.ID,
			SubscriptionID:     out.subscription.ID,
			Amount:             amount,
			Status:             models.PaymentStatusSucceeded,
		})
		if err != nil {
			return out, fmt.Errorf("record payment: %w", err)
		}
	}
	return out, nil
}

func newSubscription(md *CheckoutMetadata, plan *ChargePlan, sessionID string, key *string, now time.Time) *models.Subscription {
	sub := &models.Subscription{
		UserID:            md.UserID,
		ProductID:         md.ProductID,
		Status:            models.SubscriptionStatusActive,
		CustomerReference: md.CustomerReference,
		CheckoutSessionID: sessionID,
		StartDate:         now.UTC(),
		ActiveKey:         key,
	}
	if c, ok := plan.Charge.(PayItOffCharge); ok {
		paid := int64(0)
		remaining := c.Total
		count := 0
		months := c.Months
		sub.TotalPaid = &paid
		sub.RemainingAmount = &remaining
		sub.PaymentCount = &count
		sub.TotalPayments = &months
	}
	return sub
}

func (s *Reconciler) handlePaymentFailed(ctx context.Context, ev *Event, payload []byte) (*Result, error) {
	res := &Result{EventID: ev.ID, Kind: ev.Kind}

	payment, err := s.repo.FindPaymentByProcessorID(ctx, ev.Object.ID)
	if errors.Is(err, ErrNotFound) {
		log.Infof("[Billing] payment_failed for untracked payment %s, nothing to do", ev.Object.ID)
		res.Outcome = OutcomeIgnored
		return res, nil
	}
	if err != nil {
		return nil, transient("load payment", err)
	}

	event, fresh, err := s.recordEvent(ctx, ev, payload)
	if err != nil {
		return nil, err
	}
	if !fresh {
		res.Outcome = OutcomeDuplicate
		return res, nil
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()
	if err := s.repo.MarkWebhookProcessed(writeCtx, event.ID, ""); err != nil {
		return nil, transient("mark event processed", err)
	}

	res.Outcome = OutcomeProcessed
	res.SubscriptionID = payment.SubscriptionID
	s.notifyPaymentFailed(ctx, payment)
	return res, nil
}

// recordEvent stores the delivery under its idempotency key. fresh is false
// when an earlier delivery of the same event was fully processed.
func (s *Reconciler) recordEvent(ctx context.Context, ev *Event, payload []byte) (*models.BillingWebhookEvent, bool, error) {
	writeCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	_, stored, err := s.repo.CreateWebhookEventIfNotExists(writeCtx, &models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		EventType:       string(ev.Kind),
		ResourceID:      ev.Object.ID,
		ProviderEventID: ev.ID,
		PayloadJSON:     string(payload),
	})
	if err != nil {
		return nil, false, transient("record webhook event", err)
	}
	return stored, stored.ProcessedAt == nil, nil
}

func (s *Reconciler) markFailed(ctx context.Context, eventID uint, cause error) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancel()
	if err := s.repo.MarkWebhookFailed(writeCtx, eventID, cause.Error()); err != nil {
		log.Warnf("[Billing] could not store failure of webhook event %d: %v", eventID, err)
	}
}

// attachPaymentMethod makes the card saved during checkout the customer's
// default. Failures are logged only.
func (s *Reconciler) attachPaymentMethod(ctx context.Context, ev *Event) {
	if s.processor == nil || ev.Object.SetupIntent == "" {
		return
	}
	customer := ev.PaymentCustomer()
	pm, err := s.processor.GetSetupIntent(ctx, ev.Object.SetupIntent)
	if err != nil {
		log.Warnf("[Billing] setup intent %s lookup failed: %v", ev.Object.SetupIntent, err)
		return
	}
	if pm == "" {
		return
	}
	if err := s.processor.AttachDefaultPaymentMethod(ctx, customer, pm); err != nil {
		log.Warnf("[Billing] attaching payment method %s to %s failed: %v", pm, customer, err)
	}
}

// lock returns a no-op unlock when no locker is configured or locking fails;
// unique indexes keep the writes correct without it.
func (s *Reconciler) lock(ctx context.Context, userID, productID uint) func() {
	if s.locker == nil {
		return func() {}
	}
	key := "billing:reconcile:" + *models.ActiveKey(userID, productID)
	unlock, err := s.locker.Lock(ctx, key, s.cfg.LockTTL)
	if err != nil {
		log.Warnf("[Billing] proceeding without lock %s: %v", key, err)
		return func() {}
	}
	return unlock
}

func (s *Reconciler) recordOutcome(ctx context.Context, kind EventKind, outcome Outcome) {
	if s.outcomes == nil {
		return
	}
	if err := s.outcomes.RecordOutcome(ctx, string(kind), string(outcome)); err != nil {
		log.Warnf("[Billing] outcome counter: %v", err)
	}
}

func (s *Reconciler) notifyCheckout(ctx context.Context, md *CheckoutMetadata, product *models.Product, plan *ChargePlan, sub *models.Subscription) {
	user, err := s.repo.FindUser(ctx, md.UserID)
	if err != nil {
		log.Warnf("[Billing] skipping checkout notifications, user %d: %v", md.UserID, err)
		return
	}
	business, err := s.repo.FindBusiness(ctx, product.BusinessID)
	if err != nil {
		log.Warnf("[Billing] skipping checkout notifications, business %d: %v", product.BusinessID, err)
		return
	}

	data := map[string]any{
		"subscription_id":    sub.ID,
		"product_id":         product.ID,
		"product_name":       product.Name,
		"product_type":       string(plan.ProductType),
		"amount":             FormatMinorUnits(plan.Amount),
		"currency":           product.Currency,
		"business_name":      business.Name,
		"customer_name":      user.Name,
		"customer_email":     user.Email,
		"customer_reference": md.CustomerReference,
	}
	if plan.RequiresSchedule {
		data["payment_day"] = plan.PaymentDay
	}
	if plan.TotalPayments > 0 {
		data["total_payments"] = plan.TotalPayments
		data["total"] = FormatMinorUnits(plan.Total)
	}

	s.send(ctx, notify.Notification{Type: notify.TypeSubscriptionConfirmation, To: user.Email, Data: data})

	ownerType := notify.TypeNewSubscriber
	if !plan.RequiresSchedule {
		ownerType = notify.TypePaymentNotification
	}
	s.send(ctx, notify.Notification{Type: ownerType, To: business.Owner.Email, Data: data})
}

func (s *Reconciler) notifyPaymentFailed(ctx context.Context, payment *models.Payment) {
	user, err := s.repo.FindUser(ctx, payment.UserID)
	if err != nil {
		log.Warnf("[Billing] skipping payment failure notifications, user %d: %v", payment.UserID, err)
		return
	}
	business, err := s.repo.FindBusiness(ctx, payment.BusinessID)
	if err != nil {
		log.Warnf("[Billing] skipping payment failure notifications, business %d: %v", payment.BusinessID, err)
		return
	}
	data := map[string]any{
		"payment_id":      payment.ProcessorPaymentID,
		"subscription_id": payment.SubscriptionID,
		"product_id":      payment.ProductID,
		"amount":          FormatMinorUnits(payment.Amount),
		"business_name":   business.Name,
		"customer_name":   user.Name,
		"customer_email":  user.Email,
	}
	if product, err := s.repo.FindProduct(ctx, payment.ProductID); err == nil {
		data["product_name"] = product.Name
		data["currency"] = product.Currency
	}

	s.send(ctx, notify.Notification{Type: notify.TypePaymentFailure, To: user.Email, Data: data})
	s.send(ctx, notify.Notification{Type: notify.TypePaymentFailure, To: business.Owner.Email, Data: data})
}

// send never fails the caller; a notification is best-effort.
func (s *Reconciler) send(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, n); err != nil {
		log.Warnf("[Billing] notification %s to %s failed: %v", n.Type, n.To, err)
	}
}

