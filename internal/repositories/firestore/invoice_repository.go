package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/trademate/api/internal/domain"
	pfirestore "github.com/trademate/api/internal/platform/firestore"
	"github.com/trademate/api/internal/repositories"
)

const (
	invoiceCollection   = "invoices"
	invoiceIssueTimeout = 10 * time.Second
)

type invoiceDocument struct {
	Sequence         int64               `firestore:"sequence"`
	InvoiceNumber    string              `firestore:"invoice_number"`
	OrderID          string              `firestore:"order_id"`
	OrderNumber      string              `firestore:"order_number,omitempty"`
	CompanyID        string              `firestore:"company_id,omitempty"`
	CustomerID       string              `firestore:"customer_id,omitempty"`
	Status           string              `firestore:"status"`
	FinalTotal       float64             `firestore:"final_total"`
	Items            []orderItemDocument `firestore:"items"`
	Totals           orderTotalsDocument `firestore:"totals"`
	CustomerSnapshot map[string]any      `firestore:"customer_snapshot"`
	Delivery         map[string]any      `firestore:"delivery"`
	PDFPath          string              `firestore:"pdf_path,omitempty"`
	IssuedAt         time.Time           `firestore:"issued_at"`
}

// InvoiceRepository issues invoices against the shared invoice counter.
type InvoiceRepository struct {
	provider *pfirestore.Provider
	invoices *pfirestore.BaseRepository[invoiceDocument]
	orders   *pfirestore.BaseRepository[orderDocument]
	counters *pfirestore.BaseRepository[counterDocument]
}

// NewInvoiceRepository constructs a Firestore-backed invoice repository.
func NewInvoiceRepository(provider *pfirestore.Provider) (*InvoiceRepository, error) {
	if provider == nil {
		return nil, errors.New("invoice repository requires firestore provider")
	}
	return &InvoiceRepository{
		provider: provider,
		invoices: pfirestore.NewBaseRepository[invoiceDocument](provider, invoiceCollection),
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, orderCollection),
		counters: pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
	}, nil
}

// Issue reads the order, the counter and (when referenced) the existing invoice, then creates the
// invoice, advances the counter and updates the order in one transaction.
func (r *InvoiceRepository) Issue(ctx context.Context, orderID string, build repositories.InvoiceBuilder) (domain.Invoice, bool, error) {
	if build == nil {
		return domain.Invoice{}, false, errors.New("invoice repository: builder is required")
	}
	orderRef, err := r.orders.DocumentRef(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Invoice{}, false, err
	}
	counterRef, err := r.counters.DocumentRef(ctx, InvoiceCounterID)
	if err != nil {
		return domain.Invoice{}, false, err
	}
	invoicesRef, err := r.invoices.CollectionRef(ctx)
	if err != nil {
		return domain.Invoice{}, false, err
	}

	var (
		issued   domain.Invoice
		existing bool
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing = false
		orderDoc, err := r.orders.GetTx(ctx, tx, orderRef.ID)
		if err != nil {
			return err
		}
		order := orderFromDocument(orderDoc.ID, orderDoc.Data)

		if order.Invoice != nil && order.Invoice.InvoiceID != "" {
			existing = true
			invoiceDoc, err := r.invoices.GetTx(ctx, tx, order.Invoice.InvoiceID)
			if err != nil {
				var repoErr repositories.RepositoryError
				if errors.As(err, &repoErr) && repoErr.IsNotFound() {
					issued = domain.Invoice{
						ID:       order.Invoice.InvoiceID,
						Number:   order.Invoice.InvoiceNumber,
						OrderID:  order.ID,
						IssuedAt: order.Invoice.IssuedAt,
					}
					return nil
				}
				return err
			}
			issued = invoiceFromDocument(invoiceDoc.ID, invoiceDoc.Data)
			return nil
		}

		sequence, err := readNextCounterValue(tx, counterRef)
		if err != nil {
			return err
		}
		invoice, locked, err := build(order, sequence)
		if err != nil {
			return err
		}
		if strings.TrimSpace(invoice.ID) == "" {
			return fmt.Errorf("invoice repository: builder returned an invoice without id")
		}

		if err := tx.Create(invoicesRef.Doc(invoice.ID), invoiceToDocument(invoice)); err != nil {
			return err
		}
		if err := writeCounterValue(tx, counterRef, sequence, invoice.IssuedAt.UTC()); err != nil {
			return err
		}
		if err := tx.Update(orderRef, orderLifecycleUpdates(locked)); err != nil {
			return err
		}
		issued = invoice
		return nil
	}, pfirestore.WithTxTimeout(invoiceIssueTimeout))
	if err != nil {
		return domain.Invoice{}, false, pfirestore.WrapError("invoices.issue", err)
	}
	return issued, existing, nil
}

// FindByID loads one invoice.
func (r *InvoiceRepository) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	doc, err := r.invoices.Get(ctx, strings.TrimSpace(invoiceID))
	if err != nil {
		return domain.Invoice{}, err
	}
	return invoiceFromDocument(doc.ID, doc.Data), nil
}

// List returns invoices matching filter. The issued_at range only goes into the query when no
// equality filter is set; otherwise it is applied in memory.
func (r *InvoiceRepository) List(ctx context.Context, filter repositories.InvoiceFilter) ([]domain.Invoice, error) {
	companyID := strings.TrimSpace(filter.CompanyID)
	byEquality := companyID != "" || filter.Status != ""
	docs, err := r.invoices.Query(ctx, func(q firestore.Query) firestore.Query {
		if companyID != "" {
			q = q.Where("company_id", "==", companyID)
		}
		if filter.Status != "" {
			q = q.Where("status", "==", string(filter.Status))
		}
		if byEquality {
			return q
		}
		if filter.From != nil {
			q = q.Where("issued_at", ">=", filter.From.UTC())
		}
		if filter.To != nil {
			q = q.Where("issued_at", "<=", filter.To.UTC())
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	invoices := make([]domain.Invoice, 0, len(docs))
	for _, doc := range docs {
		if byEquality && !issuedWithin(doc.Data.IssuedAt, filter.From, filter.To) {
			continue
		}
		invoices = append(invoices, invoiceFromDocument(doc.ID, doc.Data))
	}
	return invoices, nil
}

func issuedWithin(issuedAt time.Time, from, to *time.Time) bool {
	if from != nil && issuedAt.Before(*from) {
		return false
	}
	if to != nil && issuedAt.After(*to) {
		return false
	}
	return true
}

func invoiceFromDocument(id string, doc invoiceDocument) domain.Invoice {
	return domain.Invoice{
		ID:               id,
		Sequence:         doc.Sequence,
		Number:           doc.InvoiceNumber,
		OrderID:          doc.OrderID,
		OrderNumber:      doc.OrderNumber,
		CompanyID:        doc.CompanyID,
		CustomerID:       doc.CustomerID,
		Status:           domain.InvoiceStatus(strings.ToLower(doc.Status)),
		FinalTotal:       doc.FinalTotal,
		Items:            orderItemsFromDocument(doc.Items),
		Totals:           domain.OrderTotals(doc.Totals),
		CustomerSnapshot: doc.CustomerSnapshot,
		Delivery:         doc.Delivery,
		PDFPath:          doc.PDFPath,
		IssuedAt:         doc.IssuedAt,
	}
}

func invoiceToDocument(invoice domain.Invoice) invoiceDocument {
	return invoiceDocument{
		Sequence:         invoice.Sequence,
		InvoiceNumber:    invoice.Number,
		OrderID:          invoice.OrderID,
		OrderNumber:      invoice.OrderNumber,
		CompanyID:        invoice.CompanyID,
		CustomerID:       invoice.CustomerID,
		Status:           string(invoice.Status),
		FinalTotal:       invoice.FinalTotal,
		Items:            orderItemsToDocument(invoice.Items),
		Totals:           orderTotalsDocument(invoice.Totals),
		CustomerSnapshot: invoice.CustomerSnapshot,
		Delivery:         invoice.Delivery,
		PDFPath:          invoice.PDFPath,
		IssuedAt:         invoice.IssuedAt.UTC(),
	}
}
