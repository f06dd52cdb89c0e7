package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/trademate/api/internal/domain"
	pfirestore "github.com/trademate/api/internal/platform/firestore"
)

const (
	paymentCollection    = "payments"
	allocationCollection = "payment_allocations"
)

type paymentAllocationDocument struct {
	AllocationID string    `firestore:"allocation_id"`
	InvoiceID    string    `firestore:"invoice_id"`
	AmountIncl   float64   `firestore:"amount_incl"`
	CreatedAt    time.Time `firestore:"created_at"`
}

type paymentDocument struct {
	Method              string                      `firestore:"method"`
	AmountIncl          float64                     `firestore:"amount_incl"`
	RemainingAmountIncl float64                     `firestore:"remaining_amount_incl"`
	Status              string                      `firestore:"status"`
	Currency            string                      `firestore:"currency"`
	ProofOfPayment      string                      `firestore:"proof_of_payment,omitempty"`
	CompanyID           string                      `firestore:"company_id,omitempty"`
	CustomerID          string                      `firestore:"customer_id,omitempty"`
	Reference           string                      `firestore:"reference,omitempty"`
	Allocations         []paymentAllocationDocument `firestore:"allocations"`
	CreatedBy           string                      `firestore:"created_by,omitempty"`
	CreatedAt           time.Time                   `firestore:"created_at"`
	UpdatedAt           time.Time                   `firestore:"updated_at"`
}

type allocationDocument struct {
	PaymentID  string    `firestore:"payment_id"`
	InvoiceID  string    `firestore:"invoice_id"`
	AmountIncl float64   `firestore:"amount_incl"`
	CreatedAt  time.Time `firestore:"created_at"`
}

// PaymentRepository persists ledger payments.
type PaymentRepository struct {
	base *pfirestore.BaseRepository[paymentDocument]
}

// NewPaymentRepository constructs a Firestore-backed payment repository.
func NewPaymentRepository(provider *pfirestore.Provider) (*PaymentRepository, error) {
	if provider == nil {
		return nil, errors.New("payment repository requires firestore provider")
	}
	return &PaymentRepository{base: pfirestore.NewBaseRepository[paymentDocument](provider, paymentCollection)}, nil
}

// Insert creates the payment and fails when the id exists.
func (r *PaymentRepository) Insert(ctx context.Context, payment domain.Payment) error {
	return r.base.Create(ctx, strings.TrimSpace(payment.ID), paymentToDocument(payment))
}

// FindByID loads a payment.
func (r *PaymentRepository) FindByID(ctx context.Context, paymentID string) (domain.Payment, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(paymentID))
	if err != nil {
		return domain.Payment{}, err
	}
	return paymentFromDocument(doc.ID, doc.Data), nil
}

// Update writes the fields the ledger edits and leaves the rest of the document as stored.
func (r *PaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	return r.base.Update(ctx, strings.TrimSpace(payment.ID), paymentLedgerUpdates(payment))
}

func paymentLedgerUpdates(payment domain.Payment) []firestore.Update {
	doc := paymentToDocument(payment)
	return []firestore.Update{
		{Path: "amount_incl", Value: doc.AmountIncl},
		{Path: "remaining_amount_incl", Value: doc.RemainingAmountIncl},
		{Path: "status", Value: doc.Status},
		{Path: "proof_of_payment", Value: doc.ProofOfPayment},
		{Path: "reference", Value: doc.Reference},
		{Path: "allocations", Value: doc.Allocations},
		{Path: "updated_at", Value: doc.UpdatedAt},
	}
}

// AllocationRepository persists allocation records.
type AllocationRepository struct {
	base *pfirestore.BaseRepository[allocationDocument]
}

// NewAllocationRepository constructs a Firestore-backed allocation repository.
func NewAllocationRepository(provider *pfirestore.Provider) (*AllocationRepository, error) {
	if provider == nil {
		return nil, errors.New("allocation repository requires firestore provider")
	}
	return &AllocationRepository{base: pfirestore.NewBaseRepository[allocationDocument](provider, allocationCollection)}, nil
}

// Insert stores an allocation record under its id.
func (r *AllocationRepository) Insert(ctx context.Context, allocation domain.PaymentAllocation) error {
	return r.base.Create(ctx, strings.TrimSpace(allocation.ID), allocationDocument{
		PaymentID:  allocation.PaymentID,
		InvoiceID:  allocation.InvoiceID,
		AmountIncl: allocation.AmountIncl,
		CreatedAt:  allocation.CreatedAt.UTC(),
	})
}

// Delete removes an allocation record.
func (r *AllocationRepository) Delete(ctx context.Context, allocationID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(allocationID))
}

// ListByPayment returns the allocation records referencing paymentID, oldest first.
func (r *AllocationRepository) ListByPayment(ctx context.Context, paymentID string) ([]domain.PaymentAllocation, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("payment_id", "==", strings.TrimSpace(paymentID))
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.PaymentAllocation, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.PaymentAllocation{
			ID:         doc.ID,
			PaymentID:  doc.Data.PaymentID,
			InvoiceID:  doc.Data.InvoiceID,
			AmountIncl: doc.Data.AmountIncl,
			CreatedAt:  doc.Data.CreatedAt,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func paymentFromDocument(id string, doc paymentDocument) domain.Payment {
	payment := domain.Payment{
		ID:                  id,
		Method:              domain.PaymentMethod(doc.Method),
		AmountIncl:          doc.AmountIncl,
		RemainingAmountIncl: doc.RemainingAmountIncl,
		Status:              domain.PaymentStatus(doc.Status),
		Currency:            doc.Currency,
		ProofOfPayment:      doc.ProofOfPayment,
		CompanyID:           doc.CompanyID,
		CustomerID:          doc.CustomerID,
		Reference:           doc.Reference,
		Allocations:         make([]domain.PaymentAllocation, 0, len(doc.Allocations)),
		CreatedBy:           doc.CreatedBy,
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
	}
	for _, a := range doc.Allocations {
		payment.Allocations = append(payment.Allocations, domain.PaymentAllocation{
			ID:         a.AllocationID,
			PaymentID:  id,
			InvoiceID:  a.InvoiceID,
			AmountIncl: a.AmountIncl,
			CreatedAt:  a.CreatedAt,
		})
	}
	return payment
}

func paymentToDocument(payment domain.Payment) paymentDocument {
	doc := paymentDocument{
		Method:              string(payment.Method),
		AmountIncl:          payment.AmountIncl,
		RemainingAmountIncl: payment.RemainingAmountIncl,
		Status:              string(payment.Status),
		Currency:            payment.Currency,
		ProofOfPayment:      payment.ProofOfPayment,
		CompanyID:           payment.CompanyID,
		CustomerID:          payment.CustomerID,
		Reference:           payment.Reference,
		Allocations:         make([]paymentAllocationDocument, 0, len(payment.Allocations)),
		CreatedBy:           payment.CreatedBy,
		CreatedAt:           payment.CreatedAt.UTC(),
		UpdatedAt:           payment.UpdatedAt.UTC(),
	}
	for _, a := range payment.Allocations {
		doc.Allocations = append(doc.Allocations, paymentAllocationDocument{
			AllocationID: a.ID,
			InvoiceID:    a.InvoiceID,
			AmountIncl:   a.AmountIncl,
			CreatedAt:    a.CreatedAt.UTC(),
		})
	}
	return doc
}
