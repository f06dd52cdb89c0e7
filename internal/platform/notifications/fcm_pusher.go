package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/messaging"

	"github.com/trademate/api/internal/services"
)

// multicastSender is the subset of the Firebase messaging client used here.
type multicastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMPusher sends order status pushes through Firebase Cloud Messaging.
type FCMPusher struct {
	client multicastSender
}

var _ services.PushNotifier = (*FCMPusher)(nil)

// NewFCMPusher wraps a Firebase messaging client.
func NewFCMPusher(client *messaging.Client) (*FCMPusher, error) {
	if client == nil {
		return nil, errors.New("notifications: messaging client is required")
	}
	return &FCMPusher{client: client}, nil
}

// NotifyOrderStatus pushes a status change to every registered device. It fails only when no device
// accepted the message.
func (p *FCMPusher) NotifyOrderStatus(ctx context.Context, msg services.OrderStatusPush) error {
	tokens := make([]string, 0, len(msg.Tokens))
	for _, token := range msg.Tokens {
		if token = strings.TrimSpace(token); token != "" {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return nil
	}

	reference := msg.OrderNumber
	if reference == "" {
		reference = msg.OrderID
	}
	resp, err := p.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: fmt.Sprintf("Order %s", reference),
			Body:  statusMessage(msg.Status),
		},
		Data: map[string]string{
			"orderId":     msg.OrderID,
			"orderNumber": msg.OrderNumber,
			"status":      msg.Status,
		},
	})
	if err != nil {
		return fmt.Errorf("notifications: fcm send: %w", err)
	}
	if resp != nil && resp.SuccessCount == 0 && resp.FailureCount > 0 {
		for _, r := range resp.Responses {
			if r != nil && r.Error != nil {
				return fmt.Errorf("notifications: fcm delivered to no devices: %w", r.Error)
			}
		}
		return errors.New("notifications: fcm delivered to no devices")
	}
	return nil
}

func statusMessage(status string) string {
	switch status {
	case "dispatched":
		return "Your order is on its way."
	case "completed":
		return "Your order has been delivered."
	default:
		return fmt.Sprintf("Your order is now %s.", status)
	}
}
