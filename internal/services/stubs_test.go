package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/trademate/api/internal/domain"
	"github.com/trademate/api/internal/repositories"
)

type repositoryErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repositoryErrorStub) Error() string {
	return "repository error"
}

func (e *repositoryErrorStub) IsNotFound() bool {
	return e.notFound
}

func (e *repositoryErrorStub) IsConflict() bool {
	return e.conflict
}

func (e *repositoryErrorStub) IsUnavailable() bool {
	return e.unavailable
}

func notFoundErr() error {
	return &repositoryErrorStub{notFound: true}
}

func floatPtr(v float64) *float64 {
	return &v
}

func strPtr(v string) *string {
	return &v
}

func boolPtr(v bool) *bool {
	return &v
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

type stubCartRepository struct {
	getFunc    func(ctx context.Context, userID string) (domain.Cart, error)
	saveFunc   func(ctx context.Context, cart domain.Cart) error
	deleteFunc func(ctx context.Context, userID string) error
	listFunc   func(ctx context.Context, cutoff time.Time) ([]domain.Cart, error)
}

func (s *stubCartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return domain.Cart{}, notFoundErr()
}

func (s *stubCartRepository) Save(ctx context.Context, cart domain.Cart) error {
	if s.saveFunc != nil {
		return s.saveFunc(ctx, cart)
	}
	return nil
}

func (s *stubCartRepository) Delete(ctx context.Context, userID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, userID)
	}
	return nil
}

func (s *stubCartRepository) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.Cart, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, cutoff)
	}
	return nil, nil
}

type stubAbandonedCartRepository struct {
	insertFunc func(ctx context.Context, cart domain.AbandonedCart) error
	inserted   []domain.AbandonedCart
}

func (s *stubAbandonedCartRepository) Insert(ctx context.Context, cart domain.AbandonedCart) error {
	if s.insertFunc != nil {
		if err := s.insertFunc(ctx, cart); err != nil {
			return err
		}
	}
	s.inserted = append(s.inserted, cart)
	return nil
}

type stubStock struct {
	reserveFunc func(ctx context.Context, line StockLine) error
	releaseFunc func(ctx context.Context, line StockLine) error
	reserved    []StockLine
	released    []StockLine
}

func (s *stubStock) Reserve(ctx context.Context, line StockLine) error {
	if s.reserveFunc != nil {
		if err := s.reserveFunc(ctx, line); err != nil {
			return err
		}
	}
	s.reserved = append(s.reserved, line)
	return nil
}

func (s *stubStock) Release(ctx context.Context, line StockLine) error {
	if s.releaseFunc != nil {
		if err := s.releaseFunc(ctx, line); err != nil {
			return err
		}
	}
	s.released = append(s.released, line)
	return nil
}

type jobRun struct {
	job       string
	succeeded int
	failed    int
}

type stubJobMetrics struct {
	runs []jobRun
}

func (s *stubJobMetrics) ObserveRun(job string, _ time.Duration, succeeded, failed int) {
	s.runs = append(s.runs, jobRun{job: job, succeeded: succeeded, failed: failed})
}

type stubOrderRepository struct {
	findByIDFunc     func(ctx context.Context, orderID string) (domain.Order, error)
	findByNumberFunc func(ctx context.Context, number string) ([]domain.Order, error)
	findByMtxFunc    func(ctx context.Context, mtxID string) ([]domain.Order, error)
	updateFunc       func(ctx context.Context, order domain.Order) error
	deleteFunc       func(ctx context.Context, orderID string) error
	updates          []domain.Order
	itemUpdates      []domain.Order
	deleted          []string
}

func (s *stubOrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, orderID)
	}
	return domain.Order{}, notFoundErr()
}

func (s *stubOrderRepository) FindByNumber(ctx context.Context, number string) ([]domain.Order, error) {
	if s.findByNumberFunc != nil {
		return s.findByNumberFunc(ctx, number)
	}
	return nil, nil
}

func (s *stubOrderRepository) FindByMerchantTransactionID(ctx context.Context, mtxID string) ([]domain.Order, error) {
	if s.findByMtxFunc != nil {
		return s.findByMtxFunc(ctx, mtxID)
	}
	return nil, nil
}

func (s *stubOrderRepository) Update(ctx context.Context, order domain.Order) error {
	if s.updateFunc != nil {
		if err := s.updateFunc(ctx, order); err != nil {
			return err
		}
	}
	s.updates = append(s.updates, order)
	return nil
}

func (s *stubOrderRepository) UpdateItems(ctx context.Context, order domain.Order) error {
	if s.updateFunc != nil {
		if err := s.updateFunc(ctx, order); err != nil {
			return err
		}
	}
	s.itemUpdates = append(s.itemUpdates, order)
	return nil
}

func (s *stubOrderRepository) Delete(ctx context.Context, orderID string) error {
	if s.deleteFunc != nil {
		if err := s.deleteFunc(ctx, orderID); err != nil {
			return err
		}
	}
	s.deleted = append(s.deleted, orderID)
	return nil
}

type stubInvoiceRepository struct {
	issueFunc    func(ctx context.Context, orderID string, build repositories.InvoiceBuilder) (domain.Invoice, bool, error)
	findByIDFunc func(ctx context.Context, invoiceID string) (domain.Invoice, error)
	listFunc     func(ctx context.Context, filter repositories.InvoiceFilter) ([]domain.Invoice, error)
	issueCalls   int
}

func (s *stubInvoiceRepository) Issue(ctx context.Context, orderID string, build repositories.InvoiceBuilder) (domain.Invoice, bool, error) {
	s.issueCalls++
	if s.issueFunc != nil {
		return s.issueFunc(ctx, orderID, build)
	}
	return domain.Invoice{}, false, errors.New("not implemented")
}

func (s *stubInvoiceRepository) FindByID(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, invoiceID)
	}
	return domain.Invoice{}, notFoundErr()
}

func (s *stubInvoiceRepository) List(ctx context.Context, filter repositories.InvoiceFilter) ([]domain.Invoice, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return nil, nil
}

type stubUserRepository struct {
	findByIDFunc func(ctx context.Context, userID string) (domain.User, error)
	replaceFunc  func(ctx context.Context, userID string, locations []domain.DeliveryLocation) error
	replaced     [][]domain.DeliveryLocation
}

func (s *stubUserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, userID)
	}
	return domain.User{}, notFoundErr()
}

func (s *stubUserRepository) ReplaceDeliveryLocations(ctx context.Context, userID string, locations []domain.DeliveryLocation) error {
	if s.replaceFunc != nil {
		if err := s.replaceFunc(ctx, userID, locations); err != nil {
			return err
		}
	}
	s.replaced = append(s.replaced, append([]domain.DeliveryLocation(nil), locations...))
	return nil
}

type stubCustomerRepository struct {
	findByIDFunc      func(ctx context.Context, customerID string) (domain.Customer, error)
	findByCompanyFunc func(ctx context.Context, companyID string) ([]domain.Customer, error)
}

func (s *stubCustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if s.findByIDFunc != nil {
		return s.findByIDFunc(ctx, customerID)
	}
	return domain.Customer{}, notFoundErr()
}

func (s *stubCustomerRepository) FindByCompany(ctx context.Context, companyID string) ([]domain.Customer, error) {
	if s.findByCompanyFunc != nil {
		return s.findByCompanyFunc(ctx, companyID)
	}
	return nil, nil
}

type stubPaymentRepository struct {
	mu       sync.Mutex
	payments map[string]domain.Payment
	updateFn func(ctx context.Context, payment domain.Payment) error
	updates  int
}

func newStubPaymentRepository(payments ...domain.Payment) *stubPaymentRepository {
	repo := &stubPaymentRepository{payments: map[string]domain.Payment{}}
	for _, p := range payments {
		repo.payments[p.ID] = p
	}
	return repo
}

func (s *stubPaymentRepository) Insert(_ context.Context, payment domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[payment.ID] = payment
	return nil
}

func (s *stubPaymentRepository) FindByID(_ context.Context, paymentID string) (domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.payments[paymentID]
	if !ok {
		return domain.Payment{}, notFoundErr()
	}
	return payment, nil
}

func (s *stubPaymentRepository) Update(ctx context.Context, payment domain.Payment) error {
	if s.updateFn != nil {
		if err := s.updateFn(ctx, payment); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	s.payments[payment.ID] = payment
	return nil
}

type stubAllocationRepository struct {
	mu        sync.Mutex
	records   []domain.PaymentAllocation
	listErr   error
	deleteErr error
}

func (s *stubAllocationRepository) Insert(_ context.Context, allocation domain.PaymentAllocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, allocation)
	return nil
}

func (s *stubAllocationRepository) Delete(_ context.Context, allocationID string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	for _, r := range s.records {
		if r.ID != allocationID {
			kept = append(kept, r)
		}
	}
	s.records = kept
	return nil
}

func (s *stubAllocationRepository) ListByPayment(_ context.Context, paymentID string) ([]domain.PaymentAllocation, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.PaymentAllocation
	for _, r := range s.records {
		if r.PaymentID == paymentID {
			out = append(out, r)
		}
	}
	return out, nil
}

type stubExpenseRepository struct {
	listFunc func(ctx context.Context, from, to *time.Time) ([]domain.Expense, error)
}

func (s *stubExpenseRepository) List(ctx context.Context, from, to *time.Time) ([]domain.Expense, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, from, to)
	}
	return nil, nil
}

type stubTransactionRepository struct {
	reserveFunc func(ctx context.Context, record domain.TransactionRecord) error
	records     []domain.TransactionRecord
}

func (s *stubTransactionRepository) Reserve(ctx context.Context, record domain.TransactionRecord) error {
	if s.reserveFunc != nil {
		if err := s.reserveFunc(ctx, record); err != nil {
			return err
		}
	}
	s.records = append(s.records, record)
	return nil
}

type stubEventPublisher struct {
	events []OrderEvent
	err    error
}

func (s *stubEventPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) error {
	s.events = append(s.events, event)
	return s.err
}

type stubMailer struct {
	sent []InvoiceEmail
	err  error
}

func (s *stubMailer) SendInvoiceIssued(_ context.Context, msg InvoiceEmail) error {
	s.sent = append(s.sent, msg)
	return s.err
}

type stubPusher struct {
	pushes []OrderStatusPush
	err    error
}

func (s *stubPusher) NotifyOrderStatus(_ context.Context, msg OrderStatusPush) error {
	s.pushes = append(s.pushes, msg)
	return s.err
}

type stubGateway struct {
	payment GatewayPayment
	err     error
	calls   []string
}

func (s *stubGateway) LookupPayment(_ context.Context, merchantTransactionID string) (GatewayPayment, error) {
	s.calls = append(s.calls, merchantTransactionID)
	return s.payment, s.err
}

type stubURLSigner struct {
	err error
}

func (s *stubURLSigner) DownloadURL(_ context.Context, object string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://signed.example/" + object, nil
}
