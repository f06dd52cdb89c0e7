package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/trademate/api/internal/domain"
	"github.com/trademate/api/internal/platform/textutil"
	"github.com/trademate/api/internal/repositories"
)

var (
	// ErrPaymentInvalidInput indicates validation failures for ledger operations.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates the payment does not exist.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentInvoiceNotFound indicates the allocation target invoice does not exist.
	ErrPaymentInvoiceNotFound = errors.New("payment: invoice not found")
	// ErrPaymentUnavailable indicates a backing store failure.
	ErrPaymentUnavailable = errors.New("payment: unavailable")
)

// PaymentLedgerServiceDeps wires the ledger collaborators.
type PaymentLedgerServiceDeps struct {
	Payments    repositories.PaymentRepository
	Allocations repositories.AllocationRepository
	Invoices    repositories.InvoiceRepository
	URLSigner   InvoiceURLSigner
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type paymentLedgerService struct {
	payments    repositories.PaymentRepository
	allocations repositories.AllocationRepository
	invoices    repositories.InvoiceRepository
	signer      InvoiceURLSigner
	currency    string
	now         func() time.Time
	newID       func() string
	logger      func(context.Context, string, map[string]any)
}

// NewPaymentLedgerService constructs the ledger.
func NewPaymentLedgerService(deps PaymentLedgerServiceDeps) (PaymentLedgerService, error) {
	if deps.Payments == nil {
		return nil, errors.New("payment ledger: payment repository is required")
	}
	if deps.Allocations == nil {
		return nil, errors.New("payment ledger: allocation repository is required")
	}
	if deps.Invoices == nil {
		return nil, errors.New("payment ledger: invoice repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "ZAR"
	}
	return &paymentLedgerService{
		payments:    deps.Payments,
		allocations: deps.Allocations,
		invoices:    deps.Invoices,
		signer:      deps.URLSigner,
		currency:    currency,
		now:         func() time.Time { return clock().UTC() },
		newID:       idGen,
		logger:      logger,
	}, nil
}

// Create records an unallocated payment.
func (s *paymentLedgerService) Create(ctx context.Context, cmd CreatePaymentCommand) (Payment, error) {
	method, ok := domain.ParseLedgerPaymentMethod(cmd.Method)
	if !ok {
		return Payment{}, fmt.Errorf("%w: method must be one of cash, eft, card_machine", ErrPaymentInvalidInput)
	}
	if err := validateAmount("amount_incl", cmd.AmountIncl); err != nil {
		return Payment{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}

	now := s.now()
	amount := roundMoney(money(cmd.AmountIncl))
	payment := Payment{
		ID:                  s.newID(),
		Method:              method,
		AmountIncl:          amount,
		RemainingAmountIncl: amount,
		Status:              domain.PaymentStatusUnallocated,
		Currency:            currency,
		ProofOfPayment:      strings.TrimSpace(cmd.ProofOfPayment),
		CompanyID:           strings.TrimSpace(cmd.CompanyID),
		CustomerID:          strings.TrimSpace(cmd.CustomerID),
		Reference:           textutil.CleanText(cmd.Reference, 120),
		Allocations:         []PaymentAllocation{},
		CreatedBy:           strings.TrimSpace(cmd.ActorID),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.payments.Insert(ctx, payment); err != nil {
		return Payment{}, s.translateRepoError(err)
	}
	return payment, nil
}

// Get loads a payment.
func (s *paymentLedgerService) Get(ctx context.Context, paymentID string) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, fmt.Errorf("%w: payment id is required", ErrPaymentInvalidInput)
	}
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		return Payment{}, s.translateRepoError(err)
	}
	return payment, nil
}

// Update edits a payment and recomputes the derived balance. The amount may not drop below what is
// already allocated.
func (s *paymentLedgerService) Update(ctx context.Context, cmd UpdatePaymentCommand) (Payment, error) {
	payment, err := s.Get(ctx, cmd.PaymentID)
	if err != nil {
		return Payment{}, err
	}

	if cmd.AmountIncl != nil {
		if err := validateAmount("amount_incl", *cmd.AmountIncl); err != nil {
			return Payment{}, err
		}
		amount := money(*cmd.AmountIncl).Round(2)
		allocated := allocatedSum(payment.Allocations)
		if amount.LessThan(allocated) {
			return Payment{}, fmt.Errorf("%w: amount_incl %s is below the allocated %s",
				ErrPaymentInvalidInput, amount.StringFixed(2), allocated.StringFixed(2))
		}
		payment.AmountIncl = amount.InexactFloat64()
	}
	if cmd.ProofOfPayment != nil {
		payment.ProofOfPayment = strings.TrimSpace(*cmd.ProofOfPayment)
	}
	if cmd.Reference != nil {
		payment.Reference = textutil.CleanText(*cmd.Reference, 120)
	}
	recomputeBalance(&payment)
	payment.UpdatedAt = s.now()

	if err := s.payments.Update(ctx, payment); err != nil {
		return Payment{}, s.translateRepoError(err)
	}
	return payment, nil
}

// Allocate assigns part of the payment's remaining balance to an invoice.
func (s *paymentLedgerService) Allocate(ctx context.Context, cmd AllocatePaymentCommand) (Payment, error) {
	invoiceID := strings.TrimSpace(cmd.InvoiceID)
	if invoiceID == "" {
		return Payment{}, fmt.Errorf("%w: invoice_id is required", ErrPaymentInvalidInput)
	}
	if err := validateAmount("amount_incl", cmd.AmountIncl); err != nil {
		return Payment{}, err
	}
	payment, err := s.Get(ctx, cmd.PaymentID)
	if err != nil {
		return Payment{}, err
	}
	if _, err := s.invoices.FindByID(ctx, invoiceID); err != nil {
		if isRepoNotFound(err) {
			return Payment{}, fmt.Errorf("%w: %s", ErrPaymentInvoiceNotFound, invoiceID)
		}
		return Payment{}, s.translateRepoError(err)
	}

	amount := money(cmd.AmountIncl).Round(2)
	remaining := money(payment.AmountIncl).Sub(allocatedSum(payment.Allocations))
	if amount.GreaterThan(remaining) {
		return Payment{}, fmt.Errorf("%w: amount_incl %s exceeds the remaining %s",
			ErrPaymentInvalidInput, amount.StringFixed(2), remaining.StringFixed(2))
	}

	now := s.now()
	allocation := PaymentAllocation{
		ID:         s.newID(),
		PaymentID:  payment.ID,
		InvoiceID:  invoiceID,
		AmountIncl: amount.InexactFloat64(),
		CreatedAt:  now,
	}
	if err := s.allocations.Insert(ctx, allocation); err != nil {
		return Payment{}, s.translateRepoError(err)
	}

	payment.Allocations = append(payment.Allocations, allocation)
	recomputeBalance(&payment)
	payment.UpdatedAt = now
	if err := s.payments.Update(ctx, payment); err != nil {
		s.rollbackAllocation(ctx, allocation)
		return Payment{}, s.translateRepoError(err)
	}
	return payment, nil
}

// rollbackAllocation removes an allocation record whose payment write failed so that lookups do not
// report money the payment balance never subtracted.
func (s *paymentLedgerService) rollbackAllocation(ctx context.Context, allocation PaymentAllocation) {
	if err := s.allocations.Delete(context.WithoutCancel(ctx), allocation.ID); err != nil {
		s.logger(ctx, "payment.allocation.rollback.failed", map[string]any{
			"paymentId":    allocation.PaymentID,
			"allocationId": allocation.ID,
			"error":        err.Error(),
		})
	}
}

// LookupAllocations lists the allocation records of a payment, each enriched with its invoice. Invoice
// reads run concurrently; a failed read leaves that allocation's invoice fields nil.
func (s *paymentLedgerService) LookupAllocations(ctx context.Context, paymentID string) ([]AllocationView, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", ErrPaymentInvalidInput)
	}
	records, err := s.allocations.ListByPayment(ctx, paymentID)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	views := make([]AllocationView, len(records))
	var wg sync.WaitGroup
	for i, record := range records {
		views[i].Allocation = record
		wg.Add(1)
		go func(view *AllocationView) {
			defer wg.Done()
			s.enrichAllocation(ctx, view)
		}(&views[i])
	}
	wg.Wait()
	return views, nil
}

func (s *paymentLedgerService) enrichAllocation(ctx context.Context, view *AllocationView) {
	invoiceID := view.Allocation.InvoiceID
	invoice, err := s.invoices.FindByID(ctx, invoiceID)
	if err != nil {
		if !isRepoNotFound(err) {
			s.logger(ctx, "payment.allocation.invoice.failed", map[string]any{
				"paymentId": view.Allocation.PaymentID,
				"invoiceId": invoiceID,
				"error":     err.Error(),
			})
		}
		return
	}

	number := invoice.Number
	issuedAt := invoice.IssuedAt
	total := invoice.FinalTotal
	view.InvoiceNumber = &number
	view.InvoiceDate = &issuedAt
	view.InvoiceTotal = &total

	if s.signer == nil || strings.TrimSpace(invoice.PDFPath) == "" {
		return
	}
	url, err := s.signer.DownloadURL(ctx, invoice.PDFPath)
	if err != nil {
		s.logger(ctx, "payment.allocation.pdf_url.failed", map[string]any{
			"invoiceId": invoiceID,
			"error":     err.Error(),
		})
		return
	}
	view.PDFURL = &url
}

func (s *paymentLedgerService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isRepoNotFound(err) {
		return fmt.Errorf("%w: %s", ErrPaymentNotFound, err.Error())
	}
	return fmt.Errorf("%w: %w", ErrPaymentUnavailable, err)
}

// recomputeBalance derives the remaining amount and status from the amount and allocations.
func recomputeBalance(payment *Payment) {
	amount := money(payment.AmountIncl)
	allocated := allocatedSum(payment.Allocations)
	remaining := decimal.Max(amount.Sub(allocated), decimal.Zero)

	payment.RemainingAmountIncl = roundMoney(remaining)
	switch {
	case allocated.IsZero():
		payment.Status = domain.PaymentStatusUnallocated
	case remaining.IsZero():
		payment.Status = domain.PaymentStatusAllocated
	default:
		payment.Status = domain.PaymentStatusPartiallyAllocated
	}
}

func allocatedSum(allocations []PaymentAllocation) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range allocations {
		sum = sum.Add(money(a.AmountIncl))
	}
	return sum.Round(2)
}

func validateAmount(field string, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: %s must be a finite number", ErrPaymentInvalidInput, field)
	}
	if value <= 0 {
		return fmt.Errorf("%w: %s must be greater than 0", ErrPaymentInvalidInput, field)
	}
	return nil
}
