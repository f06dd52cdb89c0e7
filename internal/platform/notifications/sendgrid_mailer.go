package notifications

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trademate/api/internal/services"
)

const senderName = "Trademate"

// ErrMailerDisabled is returned when no API key is configured.
var ErrMailerDisabled = errors.New("notifications: mailer disabled")

// mailSender delivers a prepared message and reports the provider status.
type mailSender func(ctx context.Context, msg *mail.SGMailV3) (int, string, error)

// SendGridMailer emails invoice notifications.
type SendGridMailer struct {
	from string
	send mailSender
}

var _ services.InvoiceMailer = (*SendGridMailer)(nil)

// NewSendGridMailer returns a mailer backed by the SendGrid v3 API.
func NewSendGridMailer(apiKey, fromEmail string) (*SendGridMailer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrMailerDisabled
	}
	fromEmail = strings.TrimSpace(fromEmail)
	if fromEmail == "" {
		return nil, errors.New("notifications: from email is required")
	}
	client := sendgrid.NewSendClient(apiKey)
	return &SendGridMailer{
		from: fromEmail,
		send: func(ctx context.Context, msg *mail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, msg)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
	}, nil
}

// SendInvoiceIssued emails the customer that an invoice was issued.
func (m *SendGridMailer) SendInvoiceIssued(ctx context.Context, msg services.InvoiceEmail) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return errors.New("notifications: recipient is required")
	}
	subject := fmt.Sprintf("Invoice %s for order %s", msg.InvoiceNumber, msg.OrderNumber)
	plain, htmlBody := renderInvoiceEmail(msg)
	message := mail.NewSingleEmail(
		mail.NewEmail(senderName, m.from),
		subject,
		mail.NewEmail(strings.TrimSpace(msg.CustomerName), to),
		plain,
		htmlBody,
	)

	status, body, err := m.send(ctx, message)
	if err != nil {
		return fmt.Errorf("notifications: sendgrid send: %w", err)
	}
	if status >= 400 {
		return fmt.Errorf("notifications: sendgrid send failed: status=%d body=%s", status, body)
	}
	return nil
}

func renderInvoiceEmail(msg services.InvoiceEmail) (string, string) {
	name := strings.TrimSpace(msg.CustomerName)
	if name == "" {
		name = "customer"
	}
	total := fmt.Sprintf("%s %.2f", msg.Currency, msg.Total)
	plain := fmt.Sprintf("Hello %s,\n\nInvoice %s has been issued for order %s.\nAmount due: %s\n",
		name, msg.InvoiceNumber, msg.OrderNumber, total)
	htmlBody := fmt.Sprintf("<p>Hello %s,</p><p>Invoice <strong>%s</strong> has been issued for order %s.</p><p>Amount due: %s</p>",
		html.EscapeString(name), html.EscapeString(msg.InvoiceNumber), html.EscapeString(msg.OrderNumber), html.EscapeString(total))
	return plain, htmlBody
}
