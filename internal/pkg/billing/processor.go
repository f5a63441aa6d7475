package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const defaultProcessorAPIBaseURL = "https://api.stripe.com"

// Processor is the subset of the payment processor API the engine calls.
type Processor interface {
	// GetSetupIntent returns the payment method id saved by a setup intent, or
	// "" when the intent has none.
	GetSetupIntent(ctx context.Context, setupIntentID string) (string, error)
	AttachDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error)
}

const (
	// CheckoutModeSetup saves a payment method for scheduled charges.
	CheckoutModeSetup = "setup"
	// CheckoutModePayment collects a single charge.
	CheckoutModePayment = "payment"
)

// CheckoutSessionInput describes an outbound checkout session.
type CheckoutSessionInput struct {
	Mode              string
	Currency          string
	Amount            int64
	ProductName       string
	CustomerReference string
	CustomerEmail     string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
}

// CheckoutSession is the processor's answer to CreateCheckoutSession.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// ProcessorClient talks to a Stripe-compatible REST API.
type ProcessorClient struct {
	SecretKey  string
	APIBaseURL string
	HTTPClient *http.Client
}

// NewProcessorClient builds a client with a bounded request timeout.
func NewProcessorClient(secretKey, apiBaseURL string, timeout time.Duration) *ProcessorClient {
	base := strings.TrimRight(strings.TrimSpace(apiBaseURL), "/")
	if base == "" {
		base = defaultProcessorAPIBaseURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ProcessorClient{
		SecretKey:  strings.TrimSpace(secretKey),
		APIBaseURL: base,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type processorAPIError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *ProcessorClient) GetSetupIntent(ctx context.Context, setupIntentID string) (string, error) {
	id := strings.TrimSpace(setupIntentID)
	if id == "" {
		return "", errors.New("setup intent id is required")
	}

	var out struct {
		ID            string          `json:"id"`
		PaymentMethod json.RawMessage `json:"payment_method"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/setup_intents/"+url.PathEscape(id), nil, &out); err != nil {
		return "", err
	}
	return paymentMethodID(out.PaymentMethod), nil
}

func (c *ProcessorClient) AttachDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	customer := strings.TrimSpace(customerID)
	pm := strings.TrimSpace(paymentMethodID)
	if customer == "" || pm == "" {
		return errors.New("customer id and payment method id are required")
	}

	form := url.Values{}
	form.Set("invoice_settings[default_payment_method]", pm)
	return c.do(ctx, http.MethodPost, "/v1/customers/"+url.PathEscape(customer), form, nil)
}

func (c *ProcessorClient) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", in.Mode)
	form.Set("success_url", in.SuccessURL)
	form.Set("cancel_url", in.CancelURL)

	switch in.Mode {
	case CheckoutModeSetup:
		form.Set("currency", strings.ToLower(in.Currency))
		form.Set("payment_method_types[0]", "card")
	case CheckoutModePayment:
		if in.Amount <= 0 {
			return nil, errors.New("checkout amount must be positive")
		}
		form.Set("line_items[0][quantity]", "1")
		form.Set("line_items[0][price_data][currency]", strings.ToLower(in.Currency))
		form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(in.Amount, 10))
		form.Set("line_items[0][price_data][product_data][name]", in.ProductName)
	default:
		return nil, fmt.Errorf("unsupported checkout mode %q", in.Mode)
	}

	if strings.HasPrefix(in.CustomerReference, "cus_") {
		form.Set("customer", in.CustomerReference)
	} else if in.CustomerEmail != "" {
		form.Set("customer_email", in.CustomerEmail)
	}

	keys := make([]string, 0, len(in.Metadata))
	for k := range in.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		form.Set("metadata["+k+"]", in.Metadata[k])
	}

	var out CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, errors.New("processor returned a checkout session without id")
	}
	return &out, nil
}

func (c *ProcessorClient) do(ctx context.Context, method, path string, form url.Values, out any) error {
	if c.SecretKey == "" {
		return errors.New("PROCESSOR_SECRET_KEY is not configured")
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.APIBaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return transient("processor "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return transient("processor "+path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr processorAPIError
		_ = json.Unmarshal(raw, &apiErr)
		err := fmt.Errorf("processor %s %s failed: status=%d message=%s", method, path, resp.StatusCode, apiErr.Error.Message)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return transient("processor", err)
		}
		return err
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// paymentMethodID accepts both the bare id and the expanded object form.
func paymentMethodID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}
