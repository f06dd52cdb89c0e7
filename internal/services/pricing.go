package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/trademate/api/internal/domain"
)

var (
	vatRate     = decimal.RequireFromString(domain.VATRate)
	cardFeeRate = decimal.RequireFromString(domain.CardFeeRate)
)

// ErrPricingInvalidFee indicates the configured fixed card fee is not a decimal amount.
var ErrPricingInvalidFee = errors.New("pricing: invalid card fixed fee")

// OrderPricer recomputes order totals from line items.
type OrderPricer struct {
	cardFixedFee decimal.Decimal
	currency     string
}

// NewOrderPricer parses the fixed card fee.
func NewOrderPricer(cardFixedFee, currency string) (OrderPricer, error) {
	fee, err := decimal.NewFromString(strings.TrimSpace(cardFixedFee))
	if err != nil || fee.IsNegative() {
		return OrderPricer{}, fmt.Errorf("%w: %q", ErrPricingInvalidFee, cardFixedFee)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "ZAR"
	}
	return OrderPricer{cardFixedFee: fee, currency: currency}, nil
}

// Totals computes the totals block for items. VAT applies to the items and the delivery fee. The
// card fee applies to the amount after returnable deductions and only for card payments.
func (p OrderPricer) Totals(items []OrderItem, deliveryFeeExcl float64, method PaymentMethod) OrderTotals {
	subtotal := decimal.Zero
	deduction := decimal.Zero
	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Qty))
		subtotal = subtotal.Add(decimal.NewFromFloat(item.UnitPriceExcl).Mul(qty))
		if item.Returnable && item.ReturnedQty > 0 {
			returned := decimal.NewFromInt(int64(item.ReturnedQty))
			deduction = deduction.Add(decimal.NewFromFloat(item.ReturnableDeposit).Mul(returned))
		}
	}
	delivery := decimal.NewFromFloat(deliveryFeeExcl)
	taxable := subtotal.Add(delivery)
	vat := taxable.Mul(vatRate).Round(2)
	subtotalIncl := taxable.Add(vat)
	base := subtotalIncl.Sub(deduction)

	cardFee := decimal.Zero
	if method == domain.PaymentMethodCard {
		cardFee = base.Mul(cardFeeRate).Add(p.cardFixedFee).Round(2)
	}

	return OrderTotals{
		SubtotalExcl:        subtotal.Round(2).InexactFloat64(),
		DeliveryFeeExcl:     delivery.Round(2).InexactFloat64(),
		VAT:                 vat.InexactFloat64(),
		SubtotalIncl:        subtotalIncl.Round(2).InexactFloat64(),
		ReturnableDeduction: deduction.Round(2).InexactFloat64(),
		CardFee:             cardFee.InexactFloat64(),
		FinalTotal:          base.Add(cardFee).Round(2).InexactFloat64(),
	}
}

// Breakdown recomputes the final total of order and compares it with the stored value.
func (p OrderPricer) Breakdown(order Order) FinalTotalBreakdown {
	totals := p.Totals(order.Items, order.Totals.DeliveryFeeExcl, order.Payment.Method)
	stored := decimal.NewFromFloat(order.Totals.FinalTotal)
	return FinalTotalBreakdown{
		Currency:            p.currency,
		PaymentMethod:       order.Payment.Method,
		SubtotalExcl:        totals.SubtotalExcl,
		DeliveryFeeExcl:     totals.DeliveryFeeExcl,
		VAT:                 totals.VAT,
		SubtotalIncl:        totals.SubtotalIncl,
		ReturnableDeduction: totals.ReturnableDeduction,
		CardFee:             totals.CardFee,
		FinalTotal:          totals.FinalTotal,
		StoredFinalTotal:    order.Totals.FinalTotal,
		Difference:          decimal.NewFromFloat(totals.FinalTotal).Sub(stored).Round(2).InexactFloat64(),
	}
}

// Currency returns the configured ISO currency code.
func (p OrderPricer) Currency() string {
	return p.currency
}

func roundMoney(value decimal.Decimal) float64 {
	return value.Round(2).InexactFloat64()
}

func money(value float64) decimal.Decimal {
	return decimal.NewFromFloat(value)
}
