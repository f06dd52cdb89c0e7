package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/trademate/api/internal/services"
)

// MerchantTransactionMetadataKey is the PaymentIntent metadata key carrying the merchant transaction id.
const MerchantTransactionMetadataKey = "merchant_transaction_id"

// ErrPaymentNotFound is returned when no PaymentIntent carries the merchant transaction id.
var ErrPaymentNotFound = services.ErrGatewayPaymentNotFound

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

// intentSearcher runs a PaymentIntent search query and drains the result iterator.
type intentSearcher func(params *stripe.PaymentIntentSearchParams) ([]*stripe.PaymentIntent, error)

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	search   intentSearcher
}

// StripeGateway reports card payment status from Stripe PaymentIntents.
type StripeGateway struct {
	search intentSearcher
	logger StripeLogger
}

var _ services.PaymentGateway = (*StripeGateway)(nil)

// NewStripeGateway constructs a gateway using the given configuration.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	search := cfg.search
	if search == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sc := client.New(apiKey, cfg.Backends)
		search = func(params *stripe.PaymentIntentSearchParams) ([]*stripe.PaymentIntent, error) {
			iter := sc.PaymentIntents.Search(params)
			var intents []*stripe.PaymentIntent
			for iter.Next() {
				intents = append(intents, iter.PaymentIntent())
			}
			return intents, iter.Err()
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeGateway{search: search, logger: logger}, nil
}

// LookupPayment finds the PaymentIntents tagged with the merchant transaction id. A succeeded intent
// wins; otherwise the most recently created intent is reported.
func (g *StripeGateway) LookupPayment(ctx context.Context, merchantTransactionID string) (services.GatewayPayment, error) {
	if g == nil {
		return services.GatewayPayment{}, errors.New("stripe: gateway is nil")
	}
	merchantTransactionID = strings.TrimSpace(merchantTransactionID)
	if merchantTransactionID == "" {
		return services.GatewayPayment{}, errors.New("stripe: merchant transaction id is required")
	}

	params := &stripe.PaymentIntentSearchParams{}
	params.Context = ctx
	params.Query = fmt.Sprintf("metadata['%s']:'%s'", MerchantTransactionMetadataKey, escapeSearchValue(merchantTransactionID))
	params.Limit = stripe.Int64(10)

	intents, err := g.search(params)
	if err != nil {
		return services.GatewayPayment{}, fmt.Errorf("stripe: search payment intents: %w", err)
	}

	intent := selectIntent(intents)
	if intent == nil {
		return services.GatewayPayment{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, merchantTransactionID)
	}

	g.logger(ctx, "payments.stripe.intent.lookup", map[string]any{
		"merchantTransactionId": merchantTransactionID,
		"paymentIntent":         intent.ID,
		"status":                intent.Status,
		"matches":               len(intents),
		"createdAt":             time.Unix(intent.Created, 0).UTC(),
	})
	return gatewayPayment(intent), nil
}

func selectIntent(intents []*stripe.PaymentIntent) *stripe.PaymentIntent {
	var latest *stripe.PaymentIntent
	for _, intent := range intents {
		if intent == nil {
			continue
		}
		if intent.Status == stripe.PaymentIntentStatusSucceeded {
			return intent
		}
		if latest == nil || intent.Created > latest.Created {
			latest = intent
		}
	}
	return latest
}

func gatewayPayment(intent *stripe.PaymentIntent) services.GatewayPayment {
	currency := strings.ToUpper(string(intent.Currency))
	if currency == "" && intent.LatestCharge != nil {
		currency = strings.ToUpper(string(intent.LatestCharge.Currency))
	}
	amount := intent.AmountReceived
	if amount == 0 {
		amount = intent.Amount
	}
	paid := intent.Status == stripe.PaymentIntentStatusSucceeded
	if charge := intent.LatestCharge; charge != nil && charge.Paid && !charge.Refunded {
		paid = paid || charge.Captured
	}
	return services.GatewayPayment{
		Reference: intent.ID,
		Paid:      paid,
		Status:    string(intent.Status),
		Amount:    decimal.New(amount, -2).InexactFloat64(),
		Currency:  currency,
	}
}

func escapeSearchValue(value string) string {
	return strings.ReplaceAll(value, "'", "\\'")
}
