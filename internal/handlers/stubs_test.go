package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/trademate/api/internal/platform/auth"
	"github.com/trademate/api/internal/services"
)

type stubCartService struct {
	getFunc     func(ctx context.Context, userID string) (services.Cart, error)
	addFunc     func(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error)
	removeFunc  func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error)
	deleteFunc  func(ctx context.Context, userID string) (*services.Cart, error)
	reclaimFunc func(ctx context.Context) (services.ReclaimResult, error)
}

func (s *stubCartService) GetCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return services.Cart{UserID: userID}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, cmd services.AddCartItemCommand) (services.Cart, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, cmd)
	}
	return services.Cart{UserID: cmd.UserID}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, cmd)
	}
	return services.Cart{UserID: cmd.UserID}, nil
}

func (s *stubCartService) DeleteCart(ctx context.Context, userID string) (*services.Cart, error) {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, userID)
	}
	return nil, nil
}

func (s *stubCartService) ReclaimStaleCarts(ctx context.Context) (services.ReclaimResult, error) {
	if s.reclaimFunc != nil {
		return s.reclaimFunc(ctx)
	}
	return services.ReclaimResult{}, nil
}

type stubEligibility struct {
	items   []services.CartItem
	address services.DeliveryAddress
	result  services.EligibilityResult
}

func (s *stubEligibility) Evaluate(items []services.CartItem, address services.DeliveryAddress) services.EligibilityResult {
	s.items = items
	s.address = address
	return s.result
}

type stubOrderService struct {
	resolveFunc     func(ctx context.Context, ref services.OrderReference) (services.Order, error)
	statusFunc      func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error)
	cancelFunc      func(ctx context.Context, cmd services.CancelOrderCommand) (services.CancelOrderResult, error)
	deleteFunc      func(ctx context.Context, cmd services.DeleteOrderCommand) (services.Order, error)
	invoiceFunc     func(ctx context.Context, cmd services.IssueInvoiceCommand) (services.IssueInvoiceResult, error)
	itemsFunc       func(ctx context.Context, cmd services.UpdateOrderItemsCommand) (services.Order, error)
	finalTotalFunc  func(ctx context.Context, ref services.OrderReference) (services.FinalTotalBreakdown, error)
	syncPaymentFunc func(ctx context.Context, cmd services.SyncOrderPaymentCommand) (services.SyncOrderPaymentResult, error)
}

func (s *stubOrderService) Resolve(ctx context.Context, ref services.OrderReference) (services.Order, error) {
	if s.resolveFunc != nil {
		return s.resolveFunc(ctx, ref)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.statusFunc != nil {
		return s.statusFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) Cancel(ctx context.Context, cmd services.CancelOrderCommand) (services.CancelOrderResult, error) {
	if s.cancelFunc != nil {
		return s.cancelFunc(ctx, cmd)
	}
	return services.CancelOrderResult{}, nil
}

func (s *stubOrderService) Delete(ctx context.Context, cmd services.DeleteOrderCommand) (services.Order, error) {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) IssueInvoice(ctx context.Context, cmd services.IssueInvoiceCommand) (services.IssueInvoiceResult, error) {
	if s.invoiceFunc != nil {
		return s.invoiceFunc(ctx, cmd)
	}
	return services.IssueInvoiceResult{}, nil
}

func (s *stubOrderService) UpdateItems(ctx context.Context, cmd services.UpdateOrderItemsCommand) (services.Order, error) {
	if s.itemsFunc != nil {
		return s.itemsFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) FinalTotal(ctx context.Context, ref services.OrderReference) (services.FinalTotalBreakdown, error) {
	if s.finalTotalFunc != nil {
		return s.finalTotalFunc(ctx, ref)
	}
	return services.FinalTotalBreakdown{}, nil
}

func (s *stubOrderService) SyncPayment(ctx context.Context, cmd services.SyncOrderPaymentCommand) (services.SyncOrderPaymentResult, error) {
	if s.syncPaymentFunc != nil {
		return s.syncPaymentFunc(ctx, cmd)
	}
	return services.SyncOrderPaymentResult{}, nil
}

type stubPaymentLedger struct {
	createFunc   func(ctx context.Context, cmd services.CreatePaymentCommand) (services.Payment, error)
	getFunc      func(ctx context.Context, paymentID string) (services.Payment, error)
	updateFunc   func(ctx context.Context, cmd services.UpdatePaymentCommand) (services.Payment, error)
	allocateFunc func(ctx context.Context, cmd services.AllocatePaymentCommand) (services.Payment, error)
	lookupFunc   func(ctx context.Context, paymentID string) ([]services.AllocationView, error)
}

func (s *stubPaymentLedger) Create(ctx context.Context, cmd services.CreatePaymentCommand) (services.Payment, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.Payment{}, nil
}

func (s *stubPaymentLedger) Get(ctx context.Context, paymentID string) (services.Payment, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, paymentID)
	}
	return services.Payment{ID: paymentID}, nil
}

func (s *stubPaymentLedger) Update(ctx context.Context, cmd services.UpdatePaymentCommand) (services.Payment, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.Payment{ID: cmd.PaymentID}, nil
}

func (s *stubPaymentLedger) Allocate(ctx context.Context, cmd services.AllocatePaymentCommand) (services.Payment, error) {
	if s.allocateFunc != nil {
		return s.allocateFunc(ctx, cmd)
	}
	return services.Payment{ID: cmd.PaymentID}, nil
}

func (s *stubPaymentLedger) LookupAllocations(ctx context.Context, paymentID string) ([]services.AllocationView, error) {
	if s.lookupFunc != nil {
		return s.lookupFunc(ctx, paymentID)
	}
	return nil, nil
}

type stubCreditService struct {
	checkFunc func(ctx context.Context, cmd services.CreditCheckCommand) (services.CreditCheckResult, error)
}

func (s *stubCreditService) Check(ctx context.Context, cmd services.CreditCheckCommand) (services.CreditCheckResult, error) {
	if s.checkFunc != nil {
		return s.checkFunc(ctx, cmd)
	}
	return services.CreditCheckResult{}, nil
}

type stubReportService struct {
	pnlFunc func(ctx context.Context, filter services.ProfitAndLossFilter) (services.ProfitAndLossReport, error)
}

func (s *stubReportService) ProfitAndLoss(ctx context.Context, filter services.ProfitAndLossFilter) (services.ProfitAndLossReport, error) {
	if s.pnlFunc != nil {
		return s.pnlFunc(ctx, filter)
	}
	return services.ProfitAndLossReport{}, nil
}

type stubDeliveryLocationService struct {
	listFunc   func(ctx context.Context, userID string) ([]services.DeliveryLocation, error)
	addFunc    func(ctx context.Context, cmd services.UpsertDeliveryLocationCommand) (services.DeliveryLocation, error)
	updateFunc func(ctx context.Context, cmd services.UpsertDeliveryLocationCommand) (services.DeliveryLocation, error)
	removeFunc func(ctx context.Context, userID, locationID string) error
}

func (s *stubDeliveryLocationService) List(ctx context.Context, userID string) ([]services.DeliveryLocation, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, userID)
	}
	return []services.DeliveryLocation{}, nil
}

func (s *stubDeliveryLocationService) Add(ctx context.Context, cmd services.UpsertDeliveryLocationCommand) (services.DeliveryLocation, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, cmd)
	}
	return cmd.Location, nil
}

func (s *stubDeliveryLocationService) Update(ctx context.Context, cmd services.UpsertDeliveryLocationCommand) (services.DeliveryLocation, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return cmd.Location, nil
}

func (s *stubDeliveryLocationService) Remove(ctx context.Context, userID, locationID string) error {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, userID, locationID)
	}
	return nil
}

type stubTransactionService struct {
	createFunc func(ctx context.Context, cmd services.CreateTransactionCommand) (services.TransactionResult, error)
}

func (s *stubTransactionService) Create(ctx context.Context, cmd services.CreateTransactionCommand) (services.TransactionResult, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.TransactionResult{Number: "0000000001", Attempts: 1}, nil
}

type stubSystemService struct {
	report services.HealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.HealthReport, error) {
	return s.report, s.err
}

// serve routes one request through registrar mounted at prefix, with identity attached when non-nil.
func serve(t *testing.T, prefix string, registrar RouteRegistrar, identity *auth.Identity, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Route(prefix, registrar)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return payload
}

// envelopeData asserts a successful v1 envelope and returns its data object.
func envelopeData(t *testing.T, rr *httptest.ResponseRecorder, wantStatus int) map[string]any {
	t.Helper()
	if rr.Code != wantStatus {
		t.Fatalf("expected status %d, got %d: %s", wantStatus, rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	if payload["ok"] != true {
		t.Fatalf("expected ok=true, got %v", payload)
	}
	data, ok := payload["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T", payload["data"])
	}
	return data
}

// envelopeFailure asserts a v1 failure envelope with the given status.
func envelopeFailure(t *testing.T, rr *httptest.ResponseRecorder, wantStatus int) map[string]any {
	t.Helper()
	if rr.Code != wantStatus {
		t.Fatalf("expected status %d, got %d: %s", wantStatus, rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	if payload["ok"] != false {
		t.Fatalf("expected ok=false, got %v", payload)
	}
	if _, ok := payload["message"].(string); !ok {
		t.Fatalf("expected message in failure, got %v", payload)
	}
	return payload
}

func userIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Roles: []string{auth.RoleUser}}
}

func staffIdentity(uid string) *auth.Identity {
	return &auth.Identity{UID: uid, Roles: []string{auth.RoleStaff}}
}
