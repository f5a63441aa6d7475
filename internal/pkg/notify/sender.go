package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Notification types understood by the transactional email endpoint.
const (
	TypeSubscriptionConfirmation = "subscription_confirmation"
	TypeNewSubscriber            = "new_subscriber"
	TypePaymentNotification      = "payment_notification"
	TypePaymentFailure           = "payment_failure"
)

// Notification is one transactional message. Data is passed through to the
// endpoint untouched.
type Notification struct {
	Type string         `json:"type"`
	To   string         `json:"to"`
	Data map[string]any `json:"data"`
}

// ErrDisabled is returned when no endpoint is configured.
var ErrDisabled = errors.New("notifications disabled")

// Sender posts notifications as JSON to a single HTTP endpoint.
type Sender struct {
	URL        string
	HTTPClient *http.Client
}

// NewSender returns a sender with a bounded per-request timeout. An empty url
// yields a sender that drops everything.
func NewSender(url string, timeout time.Duration) *Sender {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sender{
		URL:        strings.TrimSpace(url),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

func (s *Sender) Send(ctx context.Context, n Notification) error {
	if s.URL == "" {
		log.Infof("[Notify] endpoint not configured, dropping %s for %s", n.Type, n.To)
		return ErrDisabled
	}
	if strings.TrimSpace(n.Type) == "" || strings.TrimSpace(n.To) == "" {
		return errors.New("notification type and recipient are required")
	}

	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification %s rejected: status=%d", n.Type, resp.StatusCode)
	}
	log.Infof("[Notify] sent %s to %s", n.Type, n.To)
	return nil
}
