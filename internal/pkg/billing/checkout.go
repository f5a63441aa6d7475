package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/app/models"
)

// CheckoutRequest is what the dashboard submits to start a checkout.
type CheckoutRequest struct {
	UserID              uint   `json:"user_id" validate:"required"`
	ProductID           uint   `json:"product_id" validate:"required"`
	CustomerReference   string `json:"customer_reference" validate:"required,max=191"`
	CustomerEmail       string `json:"customer_email" validate:"omitempty,email"`
	PreferredPaymentDay string `json:"preferred_payment_day" validate:"omitempty,numeric"`
	CreditAmount        string `json:"credit_amount" validate:"omitempty,numeric"`
	TotalPayments       string `json:"total_payments" validate:"omitempty,numeric"`
}

// CheckoutResult is the created processor session and the validated plan.
type CheckoutResult struct {
	SessionID     string `json:"session_id"`
	URL           string `json:"url"`
	ProductType   string `json:"product_type"`
	Amount        int64  `json:"amount"`
	PaymentDay    int    `json:"payment_day,omitempty"`
	TotalPayments int    `json:"total_payments,omitempty"`
}

// CheckoutService validates checkout requests and opens processor sessions
// whose metadata lets the webhook handler rebuild the customer's intent.
type CheckoutService struct {
	repo       Repository
	processor  Processor
	validate   *validator.Validate
	successURL string
	cancelURL  string
}

func NewCheckoutService(repo Repository, processor Processor, successURL, cancelURL string) *CheckoutService {
	return &CheckoutService{
		repo:       repo,
		processor:  processor,
		validate:   validator.New(),
		successURL: successURL,
		cancelURL:  cancelURL,
	}
}

// CreateCheckout fails with ErrInvalidCheckoutRequest, ErrInvalidInstallmentPlan,
// ErrProductNotFound or ErrAlreadySubscribed before anything reaches the
// processor, and with ErrProcessorUnavailable when the session cannot be opened.
func (s *CheckoutService) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	req.CustomerReference = strings.TrimSpace(req.CustomerReference)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCheckoutRequest, describeValidation(err))
	}

	product, err := s.repo.FindProduct(ctx, req.ProductID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: product %d", ErrProductNotFound, req.ProductID)
	}
	if err != nil {
		return nil, transient("load product", err)
	}

	params := CheckoutParams{
		PaymentDay:    req.PreferredPaymentDay,
		CreditAmount:  req.CreditAmount,
		TotalPayments: req.TotalPayments,
	}
	plan, err := BuildChargePlan(product, params)
	if err != nil {
		return nil, err
	}

	if plan.RequiresSchedule {
		_, err := s.repo.FindSubscriptionByKey(ctx, *models.ActiveKey(req.UserID, req.ProductID))
		switch {
		case err == nil:
			return nil, fmt.Errorf("%w: user %d already has product %d", ErrAlreadySubscribed, req.UserID, req.ProductID)
		case !errors.Is(err, ErrNotFound):
			return nil, transient("check subscription", err)
		}
	}

	mode := CheckoutModePayment
	if plan.RequiresSchedule {
		mode = CheckoutModeSetup
	}
	session, err := s.processor.CreateCheckoutSession(ctx, CheckoutSessionInput{
		Mode:              mode,
		Currency:          product.Currency,
		Amount:            plan.Amount,
		ProductName:       product.Name,
		CustomerReference: req.CustomerReference,
		CustomerEmail:     req.CustomerEmail,
		SuccessURL:        s.successURL,
		CancelURL:         s.cancelURL,
		Metadata:          checkoutMetadata(req, plan),
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w: %w", ErrProcessorUnavailable, err)
	}

	log.Infof("[Billing] checkout session %s opened: user=%d product=%d type=%s amount=%d",
		session.ID, req.UserID, req.ProductID, plan.ProductType, plan.Amount)

	return &CheckoutResult{
		SessionID:     session.ID,
		URL:           session.URL,
		ProductType:   string(plan.ProductType),
		Amount:        plan.Amount,
		PaymentDay:    plan.PaymentDay,
		TotalPayments: plan.TotalPayments,
	}, nil
}

// checkoutMetadata carries the normalised choices, so the webhook sees the
// same figures the customer was quoted.
func checkoutMetadata(req CheckoutRequest, plan *ChargePlan) map[string]string {
	md := map[string]string{
		MetaProductID:         formatID(req.ProductID),
		MetaUserID:            formatID(req.UserID),
		MetaCustomerReference: req.CustomerReference,
	}
	if plan.RequiresSchedule {
		md[MetaPreferredPaymentDay] = strconv.Itoa(plan.PaymentDay)
	} else if day := strings.TrimSpace(req.PreferredPaymentDay); day != "" {
		md[MetaPreferredPaymentDay] = day
	}

	switch c := plan.Charge.(type) {
	case BalanceBuilderCharge:
		md[MetaCreditAmount] = FormatMinorUnits(c.Monthly)
	case PayItOffCharge:
		md[MetaTotalPayments] = strconv.Itoa(c.Months)
	}
	return md
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

func formatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
