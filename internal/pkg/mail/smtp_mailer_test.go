package mail

import (
	"context"
	"errors"
	"net/smtp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/CreditFox/internal/pkg/notify"
)

func TestSMTPMailerRendersNotification(t *testing.T) {
	m := NewSMTPMailer("mail.example.com", "587", "user", "pass", "billing@example.com")

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		assert.NotNil(t, a)
		return nil
	}

	err := m.Send(context.Background(), notify.Notification{
		Type: notify.TypeSubscriptionConfirmation,
		To:   "sam@example.com",
		Data: map[string]any{"product_name": "Credit Builder", "amount": "35.50"},
	})
	require.NoError(t, err)

	assert.Equal(t, "mail.example.com:587", gotAddr)
	assert.Equal(t, "billing@example.com", gotFrom)
	assert.Equal(t, []string{"sam@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: Your subscription is confirmed\r\n")
	assert.Contains(t, gotMsg, "amount: 35.50\r\nproduct name: Credit Builder\r\n")
}

func TestSMTPMailerErrors(t *testing.T) {
	m := NewSMTPMailer("mail.example.com", "25", "", "", "")
	assert.Equal(t, "no-reply@localhost", m.From)

	calls := 0
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		calls++
		return errors.New("421 service not available")
	}

	assert.Error(t, m.Send(context.Background(), notify.Notification{Type: notify.TypePaymentFailure}))
	assert.Equal(t, 0, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Send(ctx, notify.Notification{Type: notify.TypePaymentFailure, To: "sam@example.com"}), context.Canceled)
	assert.Equal(t, 0, calls)

	assert.Error(t, m.Send(context.Background(), notify.Notification{Type: notify.TypePaymentFailure, To: "sam@example.com"}))
	assert.Equal(t, 1, calls)
}
