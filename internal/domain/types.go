package domain

import (
	"strings"
	"time"
)

// CartStalenessWindow is the age after which an active cart is reclaimed.
const CartStalenessWindow = 12 * time.Hour

// InventoryRecord is a per-location stock level attached to a cart line.
type InventoryRecord struct {
	LocationID   string `json:"location_id"`
	QtyAvailable int    `json:"qty_available"`
}

// CartItem is one reserved line in a cart. SaleQty mirrors the quantity held by the external
// reservation system.
type CartItem struct {
	ItemID    string            `json:"item_id"`
	UniqueID  string            `json:"unique_id"`
	VariantID string            `json:"variant_id"`
	Name      string            `json:"name,omitempty"`
	SaleQty   int               `json:"sale_qty"`
	Price     float64           `json:"price"`
	Inventory []InventoryRecord `json:"inventory,omitempty"`
}

// Cart is the per-user cart, keyed by user id.
type Cart struct {
	UserID    string     `json:"uid"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// AbandonedCart is the archived copy of a reclaimed cart.
type AbandonedCart struct {
	ID          string
	Cart        Cart
	ReclaimedAt time.Time
}

// OrderStatus enumerates the lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusDraft      OrderStatus = "draft"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusDispatched OrderStatus = "dispatched"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses lists every accepted status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusDraft,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusDispatched,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// ParseOrderStatus normalises value and reports whether it is a known status.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	normalized := OrderStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range OrderStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether the status locks the order permanently.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// PaymentMethod enumerates how an order or payment was settled.
type PaymentMethod string

const (
	PaymentMethodCash        PaymentMethod = "cash"
	PaymentMethodEFT         PaymentMethod = "eft"
	PaymentMethodCardMachine PaymentMethod = "card_machine"
	// PaymentMethodCard is an online card payment; it only appears on orders.
	PaymentMethodCard PaymentMethod = "card"
)

// ParseLedgerPaymentMethod accepts the methods a recorded payment may use.
func ParseLedgerPaymentMethod(value string) (PaymentMethod, bool) {
	switch m := PaymentMethod(strings.ToLower(strings.TrimSpace(value))); m {
	case PaymentMethodCash, PaymentMethodEFT, PaymentMethodCardMachine:
		return m, true
	}
	return "", false
}

// OrderPaymentStatusPaid marks a settled order.
const OrderPaymentStatusPaid = "paid"

// OrderItem is a purchased line. Returnable items carry a deposit refunded per returned unit.
type OrderItem struct {
	UniqueID          string  `json:"unique_id"`
	VariantID         string  `json:"variant_id,omitempty"`
	Name              string  `json:"name,omitempty"`
	Qty               int     `json:"qty"`
	UnitPriceExcl     float64 `json:"unit_price_excl"`
	Returnable        bool    `json:"returnable,omitempty"`
	ReturnableDeposit float64 `json:"returnable_deposit_incl,omitempty"`
	ReturnedQty       int     `json:"returned_qty,omitempty"`
}

// OrderTotals is the stored totals block of an order.
type OrderTotals struct {
	SubtotalExcl        float64 `json:"subtotal_excl"`
	DeliveryFeeExcl     float64 `json:"delivery_fee_excl"`
	VAT                 float64 `json:"vat"`
	SubtotalIncl        float64 `json:"subtotal_incl"`
	ReturnableDeduction float64 `json:"returnable_deduction"`
	CardFee             float64 `json:"card_fee"`
	FinalTotal          float64 `json:"final_total"`
}

// OrderInvoiceRef points from an order to its issued invoice.
type OrderInvoiceRef struct {
	InvoiceID     string    `json:"invoiceId"`
	InvoiceNumber string    `json:"invoiceNumber"`
	IssuedAt      time.Time `json:"issuedAt"`
}

// OrderPayment is the payment block of an order.
type OrderPayment struct {
	Status string        `json:"status"`
	Method PaymentMethod `json:"method,omitempty"`
}

// Order is a purchase. ID, Number and MerchantTransactionID are alternative lookup keys.
type Order struct {
	ID                    string
	Number                string
	MerchantTransactionID string
	Status                OrderStatus
	Editable              bool
	EditableReason        string
	CustomerID            string
	CompanyID             string
	UserID                string
	Items                 []OrderItem
	Totals                OrderTotals
	CustomerSnapshot      map[string]any
	Delivery              map[string]any
	Invoice               *OrderInvoiceRef
	Payment               OrderPayment
	CancelReason          string
	CreatedAt             time.Time
	UpdatedAt             time.Time
	LockedAt              *time.Time
}

// InvoiceStatus enumerates invoice states. Only issuance happens in this service.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "pending"
	InvoiceStatusPaid      InvoiceStatus = "paid"
	InvoiceStatusCancelled InvoiceStatus = "cancelled"
	InvoiceStatusDeleted   InvoiceStatus = "deleted"
)

// Invoice is the immutable snapshot of an order taken at issuance.
type Invoice struct {
	ID               string
	Sequence         int64
	Number           string
	OrderID          string
	OrderNumber      string
	CompanyID        string
	CustomerID       string
	Status           InvoiceStatus
	FinalTotal       float64
	Items            []OrderItem
	Totals           OrderTotals
	CustomerSnapshot map[string]any
	Delivery         map[string]any
	PDFPath          string
	IssuedAt         time.Time
}

// PaymentStatus is derived from the amount and the allocated sum.
type PaymentStatus string

const (
	PaymentStatusUnallocated        PaymentStatus = "unallocated"
	PaymentStatusPartiallyAllocated PaymentStatus = "partially_allocated"
	PaymentStatusAllocated          PaymentStatus = "allocated"
)

// PaymentAllocation assigns part of a payment to an invoice.
type PaymentAllocation struct {
	ID         string    `json:"allocation_id"`
	PaymentID  string    `json:"payment_id"`
	InvoiceID  string    `json:"invoice_id"`
	AmountIncl float64   `json:"amount_incl"`
	CreatedAt  time.Time `json:"created_at"`
}

// Payment is an amount captured from a customer independent of any order.
type Payment struct {
	ID                  string
	Method              PaymentMethod
	AmountIncl          float64
	RemainingAmountIncl float64
	Status              PaymentStatus
	Currency            string
	ProofOfPayment      string
	CompanyID           string
	CustomerID          string
	Reference           string
	Allocations         []PaymentAllocation
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// DeliveryLocation is an address embedded on the user document.
type DeliveryLocation struct {
	ID           string    `json:"id"`
	Label        string    `json:"label,omitempty"`
	Street       string    `json:"street"`
	Suburb       string    `json:"suburb,omitempty"`
	City         string    `json:"city"`
	PostalCode   string    `json:"postal_code,omitempty"`
	ContactName  string    `json:"contact_name,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	Instructions string    `json:"instructions,omitempty"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// User is the subset of the user profile this service reads and writes.
type User struct {
	UID               string
	Email             string
	DisplayName       string
	CompanyID         string
	CustomerID        string
	CreditLimit       *float64
	FCMTokens         []string
	DeliveryLocations []DeliveryLocation
}

// Customer is the account-level record used as a credit limit fallback.
type Customer struct {
	ID          string
	CompanyID   string
	Name        string
	Email       string
	CreditLimit *float64
}

// Expense is a cost line for P&L reporting.
type Expense struct {
	ID          string
	Amount      float64
	Category    string
	AccountCode string
	Description string
	Date        time.Time
}

// TransactionRecord reserves a merchant transaction number.
type TransactionRecord struct {
	Number    string
	UserID    string
	Amount    float64
	CreatedAt time.Time
}

// HealthStatus summarises dependency readiness.
type HealthStatus string

const (
	HealthStatusOK    HealthStatus = "ok"
	HealthStatusError HealthStatus = "error"
)

// HealthCheck is the outcome of one dependency probe.
type HealthCheck struct {
	Status  HealthStatus  `json:"status"`
	Error   string        `json:"error,omitempty"`
	Latency time.Duration `json:"latency"`
}

// HealthReport aggregates dependency probes.
type HealthReport struct {
	Status      HealthStatus           `json:"status"`
	Checks      map[string]HealthCheck `json:"checks"`
	GeneratedAt time.Time              `json:"generatedAt"`
	Version     string                 `json:"version,omitempty"`
	CommitSHA   string                 `json:"commitSha,omitempty"`
	Environment string                 `json:"environment,omitempty"`
	Uptime      time.Duration          `json:"uptime,omitempty"`
}
