package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/trademate/api/internal/domain"
	"github.com/trademate/api/internal/platform/catalog"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Cart                = domain.Cart
	CartItem            = domain.CartItem
	InventoryRecord     = domain.InventoryRecord
	Order               = domain.Order
	OrderItem           = domain.OrderItem
	OrderTotals         = domain.OrderTotals
	OrderStatus         = domain.OrderStatus
	Invoice             = domain.Invoice
	Payment             = domain.Payment
	PaymentAllocation   = domain.PaymentAllocation
	PaymentMethod       = domain.PaymentMethod
	PaymentStatus       = domain.PaymentStatus
	DeliveryLocation    = domain.DeliveryLocation
	FinalTotalBreakdown = domain.FinalTotalBreakdown
	HealthReport        = domain.HealthReport
	StockLine           = catalog.StockLine
)

// StockReservationService holds and returns sale stock in the external catalog. Each call is a single
// synchronous request; failures surface to the caller unchanged.
type StockReservationService interface {
	Reserve(ctx context.Context, line StockLine) error
	Release(ctx context.Context, line StockLine) error
}

// CartService manages per-user carts and their sale stock reservations.
type CartService interface {
	GetCart(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	// DeleteCart releases every line and removes the cart. A missing cart returns (nil, nil).
	DeleteCart(ctx context.Context, userID string) (*Cart, error)
	ReclaimStaleCarts(ctx context.Context) (ReclaimResult, error)
}

// DeliveryEligibilityService evaluates whether a cart qualifies for fast delivery.
type DeliveryEligibilityService interface {
	Evaluate(items []CartItem, address DeliveryAddress) EligibilityResult
}

// OrderService drives the order lifecycle.
type OrderService interface {
	Resolve(ctx context.Context, ref OrderReference) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (CancelOrderResult, error)
	Delete(ctx context.Context, cmd DeleteOrderCommand) (Order, error)
	IssueInvoice(ctx context.Context, cmd IssueInvoiceCommand) (IssueInvoiceResult, error)
	UpdateItems(ctx context.Context, cmd UpdateOrderItemsCommand) (Order, error)
	FinalTotal(ctx context.Context, ref OrderReference) (FinalTotalBreakdown, error)
	SyncPayment(ctx context.Context, cmd SyncOrderPaymentCommand) (SyncOrderPaymentResult, error)
}

// PaymentLedgerService records payments and their allocations to invoices.
type PaymentLedgerService interface {
	Create(ctx context.Context, cmd CreatePaymentCommand) (Payment, error)
	Get(ctx context.Context, paymentID string) (Payment, error)
	Update(ctx context.Context, cmd UpdatePaymentCommand) (Payment, error)
	Allocate(ctx context.Context, cmd AllocatePaymentCommand) (Payment, error)
	LookupAllocations(ctx context.Context, paymentID string) ([]AllocationView, error)
}

// CreditService evaluates account credit.
type CreditService interface {
	Check(ctx context.Context, cmd CreditCheckCommand) (CreditCheckResult, error)
}

// ReportService produces accounting reports.
type ReportService interface {
	ProfitAndLoss(ctx context.Context, filter ProfitAndLossFilter) (ProfitAndLossReport, error)
}

// DeliveryLocationService maintains a user's delivery locations.
type DeliveryLocationService interface {
	List(ctx context.Context, userID string) ([]DeliveryLocation, error)
	Add(ctx context.Context, cmd UpsertDeliveryLocationCommand) (DeliveryLocation, error)
	Update(ctx context.Context, cmd UpsertDeliveryLocationCommand) (DeliveryLocation, error)
	Remove(ctx context.Context, userID, locationID string) error
}

// TransactionService creates unique merchant transaction numbers.
type TransactionService interface {
	Create(ctx context.Context, cmd CreateTransactionCommand) (TransactionResult, error)
}

// SystemService exposes operational metadata for health endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// InvoiceMailer emails an issued invoice to the customer.
type InvoiceMailer interface {
	SendInvoiceIssued(ctx context.Context, msg InvoiceEmail) error
}

// InvoiceEmail is the data handed to the mailer.
type InvoiceEmail struct {
	To            string
	CustomerName  string
	InvoiceNumber string
	OrderNumber   string
	Total         float64
	Currency      string
}

// PushNotifier sends push notifications to a user's devices.
type PushNotifier interface {
	NotifyOrderStatus(ctx context.Context, msg OrderStatusPush) error
}

// OrderStatusPush is the data handed to the push notifier.
type OrderStatusPush struct {
	Tokens      []string
	OrderID     string
	OrderNumber string
	Status      string
}

// InvoiceURLSigner produces a time-limited download URL for an invoice PDF.
type InvoiceURLSigner interface {
	DownloadURL(ctx context.Context, object string) (string, error)
}

// ErrGatewayPaymentNotFound is returned by gateways that hold no payment for a merchant transaction id.
var ErrGatewayPaymentNotFound = errors.New("payment gateway: payment not found")

// PaymentGateway reports the status of a card payment by merchant transaction id.
type PaymentGateway interface {
	LookupPayment(ctx context.Context, merchantTransactionID string) (GatewayPayment, error)
}

// GatewayPayment is the gateway's view of a payment.
type GatewayPayment struct {
	Reference string
	Paid      bool
	Status    string
	Amount    float64
	Currency  string
}

// JobMetrics records batch job runs.
type JobMetrics interface {
	ObserveRun(job string, duration time.Duration, succeeded, failed int)
}

// AddCartItemCommand adds qty units of a product variant to the user's cart.
type AddCartItemCommand struct {
	UserID    string
	UniqueID  string
	VariantID string
	Name      string
	Qty       int
	Price     float64
	Inventory []InventoryRecord
}

// RemoveCartItemCommand removes a line by item id.
type RemoveCartItemCommand struct {
	UserID string
	ItemID string
}

// ReclaimResult lists the carts handled by a reclaim run.
type ReclaimResult struct {
	Reclaimed []string
	Failed    []ReclaimFailure
}

// ReclaimFailure records why one cart could not be reclaimed.
type ReclaimFailure struct {
	UserID string
	Error  string
}

// DeliveryAddress is the destination evaluated for fast delivery.
type DeliveryAddress struct {
	City string
}

// Fast delivery failure reasons.
const (
	ReasonInsufficientStock = "INSUFFICIENT_STOCK_FOR_FAST_DELIVERY"
	ReasonOutsideZone       = "OUTSIDE_DELIVERY_ZONE"
	ReasonAfterCutoff       = "AFTER_CUTOFF_TIME"
)

// EligibilityResult reports fast delivery eligibility and every failing reason.
type EligibilityResult struct {
	Eligible bool
	Reasons  []string
	// ItemsWithoutStock lists the item ids that failed the stock check.
	ItemsWithoutStock []string
	EvaluatedAt       time.Time
}

// OrderReference identifies an order by exactly one effective key: ID wins, then Number, then
// MerchantTransactionID.
type OrderReference struct {
	ID                    string
	Number                string
	MerchantTransactionID string
}

// UpdateOrderStatusCommand sets an order status.
type UpdateOrderStatusCommand struct {
	Ref     OrderReference
	Status  string
	Reason  string
	ActorID string
}

// CancelOrderCommand cancels an order.
type CancelOrderCommand struct {
	Ref     OrderReference
	Reason  string
	ActorID string
}

// CancelOrderResult reports the cancelled order and whether it was already cancelled.
type CancelOrderResult struct {
	Order            Order
	AlreadyCancelled bool
}

// DeleteOrderCommand deletes an order. Force overrides the paid-order guard.
type DeleteOrderCommand struct {
	Ref     OrderReference
	Force   bool
	ActorID string
}

// IssueInvoiceCommand issues the invoice for an order.
type IssueInvoiceCommand struct {
	Ref     OrderReference
	ActorID string
}

// IssueInvoiceResult carries the invoice and whether it already existed.
type IssueInvoiceResult struct {
	Invoice  Invoice
	Order    Order
	Existing bool
}

// UpdateOrderItemsCommand replaces the items of an editable order. Totals are recomputed.
type UpdateOrderItemsCommand struct {
	Ref             OrderReference
	Items           []OrderItem
	DeliveryFeeExcl *float64
	ActorID         string
}

// SyncOrderPaymentCommand refreshes an order's payment status from the gateway.
type SyncOrderPaymentCommand struct {
	Ref     OrderReference
	ActorID string
}

// SyncOrderPaymentResult reports the gateway status and whether the order changed.
type SyncOrderPaymentResult struct {
	Order   Order
	Gateway GatewayPayment
	Updated bool
}

// CreatePaymentCommand records a captured payment.
type CreatePaymentCommand struct {
	Method         string
	AmountIncl     float64
	Currency       string
	ProofOfPayment string
	CompanyID      string
	CustomerID     string
	Reference      string
	ActorID        string
}

// UpdatePaymentCommand edits a payment. Nil fields are left unchanged.
type UpdatePaymentCommand struct {
	PaymentID      string
	AmountIncl     *float64
	ProofOfPayment *string
	Reference      *string
	ActorID        string
}

// AllocatePaymentCommand assigns part of a payment to an invoice.
type AllocatePaymentCommand struct {
	PaymentID  string
	InvoiceID  string
	AmountIncl float64
	ActorID    string
}

// AllocationView is an allocation record enriched with invoice metadata. Invoice fields are nil when
// the invoice could not be read.
type AllocationView struct {
	Allocation    PaymentAllocation
	InvoiceNumber *string
	InvoiceDate   *time.Time
	InvoiceTotal  *float64
	PDFURL        *string
}

// CreditCheckCommand evaluates a proposed cart against the account's credit.
type CreditCheckCommand struct {
	UserID     string
	CustomerID string
	CompanyID  string
	CartValue  float64
}

// CreditCheckResult reports the credit position.
type CreditCheckResult struct {
	CompanyID       string
	CreditLimit     float64
	Outstanding     float64
	RemainingCredit float64
	CartValue       float64
	CanCheckout     bool
	OverBy          float64
	PendingInvoices int
}

// ProfitAndLossFilter narrows the P&L report.
type ProfitAndLossFilter struct {
	CompanyID string
	From      *time.Time
	To        *time.Time
}

// ExpenseGroup aggregates expenses by category and account code.
type ExpenseGroup struct {
	Category    string
	AccountCode string
	Total       float64
	Count       int
}

// ProfitAndLossReport is the P&L summary.
type ProfitAndLossReport struct {
	CompanyID     string
	From          *time.Time
	To            *time.Time
	Income        float64
	InvoiceCount  int
	Expenses      float64
	ExpenseGroups []ExpenseGroup
	Net           float64
}

// UpsertDeliveryLocationCommand adds or updates a delivery location.
type UpsertDeliveryLocationCommand struct {
	UserID   string
	Location DeliveryLocation
	// SetDefault is the explicit is_default of an update. Nil keeps the stored value.
	SetDefault *bool
}

// CreateTransactionCommand requests a merchant transaction number.
type CreateTransactionCommand struct {
	UserID string
	Amount float64
}

// TransactionResult carries the reserved number.
type TransactionResult struct {
	Number   string
	Attempts int
}
