package domain

// Fixed pricing rates. Amounts are rand unless stated.
const (
	VATRate     = "0.15"
	CardFeeRate = "0.0295"
)

// FinalTotalBreakdown is the result of recomputing an order's final total from its snapshot.
type FinalTotalBreakdown struct {
	Currency            string        `json:"currency"`
	PaymentMethod       PaymentMethod `json:"payment_method"`
	SubtotalExcl        float64       `json:"subtotal_excl"`
	DeliveryFeeExcl     float64       `json:"delivery_fee_excl"`
	VAT                 float64       `json:"vat"`
	SubtotalIncl        float64       `json:"subtotal_incl"`
	ReturnableDeduction float64       `json:"returnable_deduction"`
	CardFee             float64       `json:"card_fee"`
	FinalTotal          float64       `json:"final_total"`
	StoredFinalTotal    float64       `json:"stored_final_total"`
	Difference          float64       `json:"difference"`
}
