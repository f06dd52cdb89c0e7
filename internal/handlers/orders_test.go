package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	domain "github.com/trademate/api/internal/domain"
	"github.com/trademate/api/internal/services"
)

func sampleOrder() services.Order {
	created := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return services.Order{
		ID:       "order-1",
		Number:   "1001",
		Status:   domain.OrderStatusConfirmed,
		Editable: true,
		Items: []services.OrderItem{
			{UniqueID: "sku-1", Qty: 2, UnitPriceExcl: 100},
		},
		Totals:    services.OrderTotals{SubtotalExcl: 200, VAT: 30, SubtotalIncl: 230, FinalTotal: 230},
		Payment:   domain.OrderPayment{Status: "unpaid", Method: domain.PaymentMethodEFT},
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestOrderHandlersResolveAcceptsAliases(t *testing.T) {
	tests := []struct {
		name string
		body string
		want services.OrderReference
	}{
		{name: "order_id", body: `{"order_id":"order-1"}`, want: services.OrderReference{ID: "order-1"}},
		{name: "id", body: `{"id":"order-1"}`, want: services.OrderReference{ID: "order-1"}},
		{name: "numeric order number", body: `{"order_number":1001}`, want: services.OrderReference{Number: "1001"}},
		{name: "m_payment_id", body: `{"m_payment_id":"4820194821"}`, want: services.OrderReference{MerchantTransactionID: "4820194821"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got services.OrderReference
			service := &stubOrderService{
				resolveFunc: func(ctx context.Context, ref services.OrderReference) (services.Order, error) {
					got = ref
					return sampleOrder(), nil
				},
			}
			handler := NewOrderHandlers(nil, service)

			rr := serve(t, "/orders", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/orders/resolve", tc.body)

			data := envelopeData(t, rr, http.StatusOK)
			if got != tc.want {
				t.Fatalf("expected reference %+v, got %+v", tc.want, got)
			}
			order := data["order"].(map[string]any)
			if order["orderNumber"] != "1001" || order["status"] != "confirmed" {
				t.Fatalf("unexpected order payload %v", order)
			}
		})
	}
}

func TestOrderHandlersResolveErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "missing reference", err: fmt.Errorf("%w: reference required", services.ErrOrderInvalidInput), status: http.StatusBadRequest},
		{name: "not found", err: fmt.Errorf("%w: 1001", services.ErrOrderNotFound), status: http.StatusNotFound},
		{name: "ambiguous", err: fmt.Errorf("%w: 2 orders", services.ErrOrderAmbiguous), status: http.StatusConflict},
		{name: "store failure", err: fmt.Errorf("%w: boom", services.ErrOrderUnavailable), status: http.StatusInternalServerError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubOrderService{
				resolveFunc: func(ctx context.Context, ref services.OrderReference) (services.Order, error) {
					return services.Order{}, tc.err
				},
			}
			handler := NewOrderHandlers(nil, service)

			rr := serve(t, "/orders", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/orders/resolve", `{"orderNumber":"1001"}`)

			envelopeFailure(t, rr, tc.status)
		})
	}
}

func TestOrderHandlersUpdateStatus(t *testing.T) {
	var captured services.UpdateOrderStatusCommand
	service := &stubOrderService{
		statusFunc: func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusCompleted
			order.Editable = false
			locked := time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC)
			order.LockedAt = &locked
			return order, nil
		},
	}
	handler := NewOrderHandlers(nil, service)

	rr := serve(t, "/orders", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/orders/status", `{"orderId":"order-1","status":"COMPLETED"}`)

	data := envelopeData(t, rr, http.StatusOK)
	if captured.Status != "COMPLETED" || captured.ActorID != "staff-1" || captured.Ref.ID != "order-1" {
		t.Fatalf("unexpected command %+v", captured)
	}
	order := data["order"].(map[string]any)
	if order["editable"] != false || order["lockedAt"] != "2024-05-02T08:00:00Z" {
		t.Fatalf("expected locked order, got %v", order)
	}
}

func TestOrderHandlersCancelReportsAlreadyCancelled(t *testing.T) {
	service := &stubOrderService{
		cancelFunc: func(ctx context.Context, cmd services.CancelOrderCommand) (services.CancelOrderResult, error) {
			if cmd.Reason != "customer request" {
				t.Fatalf("unexpected reason %q", cmd.Reason)
			}
			order := sampleOrder()
			order.Status = domain.OrderStatusCancelled
			return services.CancelOrderResult{Order: order, AlreadyCancelled: true}, nil
		},
	}
	handler := NewOrderHandlers(nil, service)

	rr := serve(t, "/orders", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/orders/cancel", `{"orderId":"order-1","reason":"customer request"}`)

	data := envelopeData(t, rr, http.StatusOK)
	if data["alreadyCancelled"] != true {
		t.Fatalf("expected alreadyCancelled true, got %v", data["alreadyCancelled"])
	}
}

func TestOrderHandlersDeleteForwardsForce(t *testing.T) {
	tests := []struct {
		body  string
		force bool
	}{
		{body: `{"orderId":"order-1"}`, force: false},
		{body: `{"orderId":"order-1","force":true}`, force: true},
		{body: `{"orderId":"order-1","force":"true"}`, force: true},
	}
	for _, tc := range tests {
		var captured services.DeleteOrderCommand
		service := &stubOrderService{
			deleteFunc: func(ctx context.Context, cmd services.DeleteOrderCommand) (services.Order, error) {
				captured = cmd
				return sampleOrder(), nil
			},
		}
		handler := NewOrderHandlers(nil, service)

		rr := serve(t, "/orders", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/orders/delete", tc.body)

		data := envelopeData(t, rr, http.StatusOK)
		if captured.Force != tc.force {
			t.Fatalf("body %s: expected force %v, got %v", tc.body, tc.force, captured.Force)
		}
		if data["deleted"] != true || data["orderId"] != "order-1" {
			t.Fatalf("unexpected payload %v", data)
		}
	}
}

func TestOrderHandlersDeletePaidOrderConflict(t *testing.T) {
	service := &stubOrderService{
		deleteFunc: func(ctx context.Context, cmd services.DeleteOrderCommand) (services.Order, error) {
			return services.Order{}, fmt.Errorf("%w: order is paid", services.ErrOrderConflict)
		},
	}
	handler := NewOrderHandlers(nil, service)

	rr := serve(t, "/orders", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/orders/delete", `{"orderId":"order-1"}`)

	envelopeFailure(t, rr, http.StatusConflict)
}

func TestOrderHandlersIssueInvoice(t *testing.T) {
	issued := time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC)
	for _, existing := range []bool{false, true} {
		service := &stubOrderService{
			invoiceFunc: func(ctx context.Context, cmd services.IssueInvoiceCommand) (services.IssueInvoiceResult, error) {
				return services.IssueInvoiceResult{
					Invoice: services.Invoice{
						ID:         "inv-1",
						Number:     "INV-000042",
						OrderID:    "order-1",
						Status:     domain.InvoiceStatusPending,
						FinalTotal: 230,
						IssuedAt:   issued,
					},
					Order:    sampleOrder(),
					Existing: existing,
				}, nil
			},
		}
		handler := NewOrderHandlers(nil, service)

		rr := serve(t, "/orders", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/orders/invoice", `{"orderId":"order-1"}`)

		want := http.StatusCreated
		if existing {
			want = http.StatusOK
		}
		data := envelopeData(t, rr, want)
		invoice := data["invoice"].(map[string]any)
		if invoice["invoiceNumber"] != "INV-000042" || invoice["issuedAt"] != "2024-05-03T09:00:00Z" {
			t.Fatalf("unexpected invoice payload %v", invoice)
		}
		if data["existing"] != existing {
			t.Fatalf("expected existing %v, got %v", existing, data["existing"])
		}
	}
}

func TestOrderHandlersUpdateItems(t *testing.T) {
	t.Run("forwards items and fee", func(t *testing.T) {
		var captured services.UpdateOrderItemsCommand
		service := &stubOrderService{
			itemsFunc: func(ctx context.Context, cmd services.UpdateOrderItemsCommand) (services.Order, error) {
				captured = cmd
				return sampleOrder(), nil
			},
		}
		handler := NewOrderHandlers(nil, service)

		body := `{"orderId":"order-1","items":[{"unique_id":"sku-1","qty":3,"unit_price_excl":10}],"delivery_fee_excl":"50"}`
		rr := serve(t, "/orders", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/orders/items", body)

		envelopeData(t, rr, http.StatusOK)
		if len(captured.Items) != 1 || captured.Items[0].Qty != 3 {
			t.Fatalf("unexpected items %+v", captured.Items)
		}
		if captured.DeliveryFeeExcl == nil || *captured.DeliveryFeeExcl != 50 {
			t.Fatalf("expected delivery fee 50, got %v", captured.DeliveryFeeExcl)
		}
	})

	t.Run("items required", func(t *testing.T) {
		handler := NewOrderHandlers(nil, &stubOrderService{})
		rr := serve(t, "/orders", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/orders/items", `{"orderId":"order-1"}`)
		envelopeFailure(t, rr, http.StatusBadRequest)
	})

	t.Run("locked order", func(t *testing.T) {
		service := &stubOrderService{
			itemsFunc: func(ctx context.Context, cmd services.UpdateOrderItemsCommand) (services.Order, error) {
				return services.Order{}, fmt.Errorf("%w: completed", services.ErrOrderNotEditable)
			},
		}
		handler := NewOrderHandlers(nil, service)
		rr := serve(t, "/orders", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/orders/items", `{"orderId":"order-1","items":[]}`)
		envelopeFailure(t, rr, http.StatusConflict)
	})
}

func TestOrderHandlersFinalTotal(t *testing.T) {
	service := &stubOrderService{
		finalTotalFunc: func(ctx context.Context, ref services.OrderReference) (services.FinalTotalBreakdown, error) {
			return services.FinalTotalBreakdown{Currency: "ZAR", FinalTotal: 120.39, StoredFinalTotal: 115, Difference: 5.39}, nil
		},
	}
	handler := NewOrderHandlers(nil, service)

	rr := serve(t, "/orders", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/orders/final-total", `{"orderNumber":"1001"}`)

	data := envelopeData(t, rr, http.StatusOK)
	breakdown := data["breakdown"].(map[string]any)
	if breakdown["final_total"] != 120.39 || breakdown["difference"] != 5.39 {
		t.Fatalf("unexpected breakdown %v", breakdown)
	}
}

func TestOrderHandlersSyncPayment(t *testing.T) {
	service := &stubOrderService{
		syncPaymentFunc: func(ctx context.Context, cmd services.SyncOrderPaymentCommand) (services.SyncOrderPaymentResult, error) {
			if cmd.Ref.MerchantTransactionID != "4820194821" {
				t.Fatalf("unexpected reference %+v", cmd.Ref)
			}
			order := sampleOrder()
			order.Payment.Status = domain.OrderPaymentStatusPaid
			return services.SyncOrderPaymentResult{
				Order:   order,
				Gateway: services.GatewayPayment{Reference: "pi_1", Paid: true, Status: "succeeded", Amount: 230, Currency: "ZAR"},
				Updated: true,
			}, nil
		},
	}
	handler := NewOrderHandlers(nil, service)

	rr := serve(t, "/orders", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/orders/payment-sync", `{"merchant_transaction_id":"4820194821"}`)

	data := envelopeData(t, rr, http.StatusOK)
	gateway := data["gateway"].(map[string]any)
	if gateway["paid"] != true || gateway["status"] != "succeeded" {
		t.Fatalf("unexpected gateway payload %v", gateway)
	}
	if data["updated"] != true {
		t.Fatalf("expected updated true")
	}
}
