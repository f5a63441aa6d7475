package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EventKind is the engine's classification of a processor event type.
type EventKind string

const (
	EventCheckoutCompleted EventKind = "checkout_completed"
	EventPaymentFailed     EventKind = "payment_failed"
	EventUnknown           EventKind = "unknown"
)

// Metadata keys round-tripped through the processor on checkout sessions.
const (
	MetaProductID           = "product_id"
	MetaUserID              = "user_id"
	MetaPreferredPaymentDay = "preferred_payment_day"
	MetaCustomerReference   = "customer_reference"
	MetaCreditAmount        = "credit_amount"
	MetaTotalPayments       = "total_payments"
)

// Event is a parsed processor notification.
type Event struct {
	ID     string
	Type   string
	Kind   EventKind
	Object EventObject
}

// EventObject is the resource an event refers to: a checkout session or a
// payment intent, depending on the event type.
type EventObject struct {
	ID            string            `json:"id"`
	Customer      string            `json:"customer"`
	SetupIntent   string            `json:"setup_intent"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

type rawEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ClassifyEventType maps processor type names and the bare engine tags to a kind.
func ClassifyEventType(eventType string) EventKind {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "checkout.session.completed", string(EventCheckoutCompleted):
		return EventCheckoutCompleted
	case "payment_intent.payment_failed", string(EventPaymentFailed):
		return EventPaymentFailed
	default:
		return EventUnknown
	}
}

// ParseEvent decodes an event envelope. Objects of unknown event types are not
// inspected so that new processor payload shapes cannot fail parsing.
func ParseEvent(payload []byte) (*Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(raw.ID) == "" || strings.TrimSpace(raw.Type) == "" {
		return nil, fmt.Errorf("%w: event id and type are required", ErrMalformedPayload)
	}

	ev := &Event{
		ID:   strings.TrimSpace(raw.ID),
		Type: strings.TrimSpace(raw.Type),
		Kind: ClassifyEventType(raw.Type),
	}
	if ev.Kind == EventUnknown {
		return ev, nil
	}

	if len(raw.Data.Object) == 0 {
		return nil, fmt.Errorf("%w: data.object is required", ErrMalformedPayload)
	}
	if err := json.Unmarshal(raw.Data.Object, &ev.Object); err != nil {
		return nil, fmt.Errorf("%w: data.object: %v", ErrMalformedPayload, err)
	}
	if strings.TrimSpace(ev.Object.ID) == "" {
		return nil, fmt.Errorf("%w: data.object.id is required", ErrMalformedPayload)
	}
	return ev, nil
}

// CheckoutMetadata is the intent reconstructed from a completed checkout session.
type CheckoutMetadata struct {
	ProductID         uint
	UserID            uint
	CustomerReference string
	Params            CheckoutParams
}

// CheckoutMetadata extracts and validates the session metadata. The processor
// customer id stands in when no customer_reference was attached.
func (e *Event) CheckoutMetadata() (*CheckoutMetadata, error) {
	md := e.Object.Metadata
	productID, err := parseID(md[MetaProductID])
	if err != nil {
		return nil, fmt.Errorf("%w: metadata.%s %v", ErrMalformedPayload, MetaProductID, err)
	}
	userID, err := parseID(md[MetaUserID])
	if err != nil {
		return nil, fmt.Errorf("%w: metadata.%s %v", ErrMalformedPayload, MetaUserID, err)
	}
	ref := strings.TrimSpace(md[MetaCustomerReference])
	if ref == "" {
		ref = strings.TrimSpace(e.Object.Customer)
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: metadata.%s is required", ErrMalformedPayload, MetaCustomerReference)
	}

	return &CheckoutMetadata{
		ProductID:         productID,
		UserID:            userID,
		CustomerReference: ref,
		Params: CheckoutParams{
			PaymentDay:    md[MetaPreferredPaymentDay],
			CreditAmount:  md[MetaCreditAmount],
			TotalPayments: md[MetaTotalPayments],
		},
	}, nil
}

// PaymentCustomer is the processor customer a default payment method is attached to.
func (e *Event) PaymentCustomer() string {
	if c := strings.TrimSpace(e.Object.Customer); c != "" {
		return c
	}
	return strings.TrimSpace(e.Object.Metadata[MetaCustomerReference])
}

func parseID(raw string) (uint, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("is required")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%q is not a valid id", raw)
	}
	return uint(n), nil
}
