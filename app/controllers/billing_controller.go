package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/internal/pkg/billing"
	"github.com/ManuelReschke/CreditFox/internal/pkg/metrics/counter"
)

// WebhookHandler reconciles one processor delivery.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*billing.Result, error)
}

// CheckoutCreator opens checkout sessions.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutResult, error)
}

// OutcomeSnapshotter exposes the webhook outcome counters.
type OutcomeSnapshotter interface {
	Snapshot(ctx context.Context) ([]counter.OutcomeCount, error)
}

type BillingController struct {
	webhooks WebhookHandler
	checkout CheckoutCreator
	outcomes OutcomeSnapshotter
	timeout  time.Duration
}

// NewBillingController wires the billing endpoints. outcomes may be nil when
// no cache is configured.
func NewBillingController(webhooks WebhookHandler, checkout CheckoutCreator, outcomes OutcomeSnapshotter, timeout time.Duration) *BillingController {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &BillingController{
		webhooks: webhooks,
		checkout: checkout,
		outcomes: outcomes,
		timeout:  timeout,
	}
}

// HandleProcessorWebhook answers 200 when the processor must not retry, 400
// when retrying cannot help and 500 when redelivery is wanted.
func (bc *BillingController) HandleProcessorWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.Body()...)
	signature := strings.TrimSpace(c.Get(billing.SignatureHeader))

	ctx, cancel := context.WithTimeout(c.UserContext(), bc.timeout)
	defer cancel()

	res, err := bc.webhooks.HandleWebhook(ctx, rawBody, signature)
	switch {
	case err == nil:
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"ok":        true,
			"event_id":  res.EventID,
			"outcome":   res.Outcome,
			"duplicate": res.Outcome == billing.OutcomeDuplicate,
			"ignored":   res.Outcome == billing.OutcomeIgnored,
		})
	case errors.Is(err, billing.ErrSignatureInvalid):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	case errors.Is(err, billing.ErrMalformedPayload):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload", "message": err.Error()})
	case billing.IsRejection(err):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "rejected", "message": err.Error()})
	default:
		log.Errorf("[Billing] webhook failed, asking for redelivery: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reconcile_failed"})
	}
}

// HandleCreateCheckout validates a checkout request and opens a processor session.
func (bc *BillingController) HandleCreateCheckout(c *fiber.Ctx) error {
	var req billing.CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_json", "message": err.Error()})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), bc.timeout)
	defer cancel()

	res, err := bc.checkout.CreateCheckout(ctx, req)
	switch {
	case err == nil:
		return c.Status(fiber.StatusCreated).JSON(res)
	case errors.Is(err, billing.ErrInvalidCheckoutRequest):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_checkout_request", "message": err.Error()})
	case errors.Is(err, billing.ErrInvalidInstallmentPlan):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "invalid_installment_plan", "message": err.Error()})
	case errors.Is(err, billing.ErrProductNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "product_not_found"})
	case errors.Is(err, billing.ErrAlreadySubscribed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already_subscribed"})
	case errors.Is(err, billing.ErrProcessorUnavailable):
		log.Warnf("[Billing] checkout session failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "processor_unavailable"})
	case billing.IsRetryable(err):
		log.Errorf("[Billing] checkout failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "temporarily_unavailable"})
	default:
		log.Errorf("[Billing] checkout failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
}

// HandleWebhookOutcomes lists the per-kind outcome counters.
func (bc *BillingController) HandleWebhookOutcomes(c *fiber.Ctx) error {
	if bc.outcomes == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "counters_disabled"})
	}
	snap, err := bc.outcomes.Snapshot(c.UserContext())
	if err != nil {
		log.Warnf("[Billing] reading outcome counters: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "counters_unavailable"})
	}
	return c.JSON(fiber.Map{"outcomes": snap})
}
