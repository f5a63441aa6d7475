package mail

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/CreditFox/internal/pkg/notify"
)

// SMTPMailer delivers notifications as plain text email.
type SMTPMailer struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string

	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPMailer(host, port, username, password, from string) *SMTPMailer {
	if from == "" {
		from = "no-reply@localhost"
		log.Warnf("[Mail] SMTP_SENDER not set, using default sender: %s", from)
	}
	return &SMTPMailer{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		send:     smtp.SendMail,
	}
}

var subjects = map[string]string{
	notify.TypeSubscriptionConfirmation: "Your subscription is confirmed",
	notify.TypeNewSubscriber:            "You have a new subscriber",
	notify.TypePaymentNotification:      "New payment received",
	notify.TypePaymentFailure:           "A payment has failed",
}

// Send renders n and hands it to the SMTP server. net/smtp has no context
// support, so ctx is only checked before dialing.
func (m *SMTPMailer) Send(ctx context.Context, n notify.Notification) error {
	if strings.TrimSpace(n.To) == "" {
		return errors.New("notification recipient is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if m.Username != "" && m.Password != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	addr := fmt.Sprintf("%s:%s", m.Host, m.Port)

	if err := m.send(addr, auth, m.From, []string{n.To}, m.message(n)); err != nil {
		log.Errorf("[Mail] send %s to %s: %v", n.Type, n.To, err)
		return err
	}
	log.Infof("[Mail] sent %s to %s via %s", n.Type, n.To, addr)
	return nil
}

func (m *SMTPMailer) message(n notify.Notification) []byte {
	subject, ok := subjects[n.Type]
	if !ok {
		subject = "Account notification"
	}

	keys := make([]string, 0, len(n.Data))
	for k := range n.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var body strings.Builder
	body.WriteString(subject + "\r\n\r\n")
	for _, k := range keys {
		fmt.Fprintf(&body, "%s: %v\r\n", strings.ReplaceAll(k, "_", " "), n.Data[k])
	}

	return []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", m.From, n.To, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
			body.String(),
	)
}
