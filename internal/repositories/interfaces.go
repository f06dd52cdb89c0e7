package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/trademate/api/internal/domain"
)

// ErrTransactionNumberTaken is returned when a merchant transaction number already exists.
var ErrTransactionNumberTaken = errors.New("repositories: transaction number already reserved")

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository persists one cart per user.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, userID string) error
	ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.Cart, error)
}

// AbandonedCartRepository archives reclaimed carts.
type AbandonedCartRepository interface {
	Insert(ctx context.Context, cart domain.AbandonedCart) error
}

// OrderRepository reads and writes order documents.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByNumber(ctx context.Context, orderNumber string) ([]domain.Order, error)
	FindByMerchantTransactionID(ctx context.Context, merchantTransactionID string) ([]domain.Order, error)
	// Update writes the status, editing lock, payment state and invoice reference of order.
	Update(ctx context.Context, order domain.Order) error
	// UpdateItems writes the items and totals of order.
	UpdateItems(ctx context.Context, order domain.Order) error
	Delete(ctx context.Context, orderID string) error
}

// InvoiceBuilder derives the invoice for order once its sequence number is allocated and returns the
// order as it must be stored afterwards (invoice reference set, editing locked).
type InvoiceBuilder func(order domain.Order, sequence int64) (domain.Invoice, domain.Order, error)

// InvoiceFilter narrows invoice listings. Zero values do not filter.
type InvoiceFilter struct {
	CompanyID string
	Status    domain.InvoiceStatus
	From      *time.Time
	To        *time.Time
}

// InvoiceRepository issues and reads invoices.
type InvoiceRepository interface {
	// Issue allocates the next invoice number, stores the invoice and locks the order in one
	// transaction. When the order already references an invoice that invoice is returned with
	// existing set and no number is consumed.
	Issue(ctx context.Context, orderID string, build InvoiceBuilder) (invoice domain.Invoice, existing bool, err error)
	FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error)
	List(ctx context.Context, filter InvoiceFilter) ([]domain.Invoice, error)
}

// PaymentRepository persists ledger payments.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	Update(ctx context.Context, payment domain.Payment) error
}

// AllocationRepository persists allocation records.
type AllocationRepository interface {
	Insert(ctx context.Context, allocation domain.PaymentAllocation) error
	Delete(ctx context.Context, allocationID string) error
	ListByPayment(ctx context.Context, paymentID string) ([]domain.PaymentAllocation, error)
}

// UserRepository reads user profiles and maintains their embedded delivery locations.
type UserRepository interface {
	FindByID(ctx context.Context, userID string) (domain.User, error)
	// ReplaceDeliveryLocations overwrites the whole array in a single write.
	ReplaceDeliveryLocations(ctx context.Context, userID string, locations []domain.DeliveryLocation) error
}

// CustomerRepository reads customer accounts.
type CustomerRepository interface {
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
	FindByCompany(ctx context.Context, companyID string) ([]domain.Customer, error)
}

// ExpenseRepository lists expenses within an optional date range.
type ExpenseRepository interface {
	List(ctx context.Context, from, to *time.Time) ([]domain.Expense, error)
}

// TransactionRepository reserves merchant transaction numbers.
type TransactionRepository interface {
	// Reserve stores record under record.Number inside a transaction and returns
	// ErrTransactionNumberTaken when the number is already in use.
	Reserve(ctx context.Context, record domain.TransactionRecord) error
}

// HealthRepository reports dependency readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
