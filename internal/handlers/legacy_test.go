package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trademate/api/internal/services"
)

func newLegacyHandlers(carts services.CartService, orders services.OrderService, payments services.PaymentLedgerService) *LegacyHandlers {
	return NewLegacyHandlers(LegacyHandlersDeps{Carts: carts, Orders: orders, Payments: payments})
}

func legacyError(t *testing.T, rr *httptest.ResponseRecorder, wantStatus int) string {
	t.Helper()
	if rr.Code != wantStatus {
		t.Fatalf("expected status %d, got %d: %s", wantStatus, rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	if _, ok := payload["ok"]; ok {
		t.Fatalf("legacy responses must not use the v1 envelope: %v", payload)
	}
	message, ok := payload["error"].(string)
	if !ok {
		t.Fatalf("expected error field, got %v", payload)
	}
	return message
}

func TestLegacyRemoveItemAcceptsAliases(t *testing.T) {
	var captured services.RemoveCartItemCommand
	carts := &stubCartService{
		removeFunc: func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
			captured = cmd
			return services.Cart{UserID: cmd.UserID}, nil
		},
	}
	handler := newLegacyHandlers(carts, nil, nil)

	rr := serve(t, "/legacy", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/legacy/cart/removeItem", `{"user_id":"user-9","cartItemId":"item-3"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeBody(t, rr)
	if payload["message"] != "Item removed from cart" {
		t.Fatalf("unexpected message %v", payload["message"])
	}
	if captured.UserID != "user-9" || captured.ItemID != "item-3" {
		t.Fatalf("unexpected command %+v", captured)
	}
}

func TestLegacyRemoveItemRejectsForeignUID(t *testing.T) {
	carts := &stubCartService{
		removeFunc: func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
			t.Fatalf("service must not be called")
			return services.Cart{}, nil
		},
	}
	handler := newLegacyHandlers(carts, nil, nil)

	rr := serve(t, "/legacy", handler.Routes, userIdentity("user-1"), http.MethodPost, "/legacy/cart/removeItem", `{"userId":"user-9","itemId":"item-3"}`)

	legacyError(t, rr, http.StatusForbidden)
}

func TestLegacyRemoveItemErrorsUseErrorShape(t *testing.T) {
	t.Run("missing item id", func(t *testing.T) {
		handler := newLegacyHandlers(&stubCartService{}, nil, nil)
		rr := serve(t, "/legacy", handler.Routes, userIdentity("user-1"), http.MethodPost, "/legacy/cart/removeItem", `{}`)
		if msg := legacyError(t, rr, http.StatusBadRequest); msg != "itemId is required" {
			t.Fatalf("unexpected error %q", msg)
		}
	})

	t.Run("release failure leaves status 500", func(t *testing.T) {
		carts := &stubCartService{
			removeFunc: func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
				return services.Cart{}, fmt.Errorf("%w: upstream 503", services.ErrCartStockUnavailable)
			},
		}
		handler := newLegacyHandlers(carts, nil, nil)
		rr := serve(t, "/legacy", handler.Routes, userIdentity("user-1"), http.MethodPost, "/legacy/cart/removeItem", `{"item_id":"item-1"}`)
		legacyError(t, rr, http.StatusInternalServerError)
	})
}

func TestLegacyDeleteCart(t *testing.T) {
	handler := newLegacyHandlers(&stubCartService{}, nil, nil)

	rr := serve(t, "/legacy", handler.Routes, userIdentity("user-1"), http.MethodPost, "/legacy/cart/delete", `{"uid":"user-1"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	if payload["message"] != "Cart already empty" {
		t.Fatalf("unexpected message %v", payload["message"])
	}
	if v, ok := payload["cart"]; !ok || v != nil {
		t.Fatalf("expected cart null, got %v", payload)
	}
}

func TestLegacyLookupAllocations(t *testing.T) {
	payments := &stubPaymentLedger{
		lookupFunc: func(ctx context.Context, paymentID string) ([]services.AllocationView, error) {
			if paymentID != "pay-1" {
				t.Fatalf("unexpected payment id %q", paymentID)
			}
			return []services.AllocationView{{Allocation: services.PaymentAllocation{ID: "alloc-1", InvoiceID: "inv-1", AmountIncl: 50}}}, nil
		},
	}
	handler := newLegacyHandlers(nil, nil, payments)

	rr := serve(t, "/legacy", handler.Routes, staffIdentity("staff-1"), http.MethodGet, "/legacy/payments/allocations?payment_id=pay-1", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	payload := decodeBody(t, rr)
	allocations := payload["allocations"].([]any)
	if len(allocations) != 1 {
		t.Fatalf("expected one allocation, got %v", allocations)
	}

	rr = serve(t, "/legacy", handler.Routes, staffIdentity("staff-1"), http.MethodGet, "/legacy/payments/allocations", "")
	legacyError(t, rr, http.StatusBadRequest)
}

func TestLegacyUpdateOrderStatus(t *testing.T) {
	orders := &stubOrderService{
		statusFunc: func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			if cmd.Ref.Number != "1001" || cmd.Status != "dispatched" {
				t.Fatalf("unexpected command %+v", cmd)
			}
			return sampleOrder(), nil
		},
	}
	handler := newLegacyHandlers(nil, orders, nil)

	rr := serve(t, "/legacy", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/legacy/orders/updateStatus", `{"order_number":"1001","status":"dispatched"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if payload := decodeBody(t, rr); payload["message"] != "Order status updated" {
		t.Fatalf("unexpected payload %v", payload)
	}

	orders.statusFunc = func(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
		return services.Order{}, fmt.Errorf("%w: shipped", services.ErrOrderInvalidInput)
	}
	rr = serve(t, "/legacy", handler.Routes, staffIdentity("staff-1"), http.MethodPost, "/legacy/orders/updateStatus", `{"orderId":"order-1","status":"shipped"}`)
	legacyError(t, rr, http.StatusBadRequest)
}
