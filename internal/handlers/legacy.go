package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trademate/api/internal/platform/auth"
	"github.com/trademate/api/internal/platform/httpx"
	"github.com/trademate/api/internal/services"
)

// LegacyHandlers serves the pre-v1 endpoints still called by older clients. They answer with
// {"message":...} on success and {"error":...} on failure instead of the v1 envelope.
type LegacyHandlers struct {
	authn    *auth.Authenticator
	carts    services.CartService
	orders   services.OrderService
	payments services.PaymentLedgerService
}

// LegacyHandlersDeps bundles the services behind the legacy endpoints.
type LegacyHandlersDeps struct {
	Authenticator *auth.Authenticator
	Carts         services.CartService
	Orders        services.OrderService
	Payments      services.PaymentLedgerService
}

// NewLegacyHandlers constructs the /legacy handlers.
func NewLegacyHandlers(deps LegacyHandlersDeps) *LegacyHandlers {
	return &LegacyHandlers{
		authn:    deps.Authenticator,
		carts:    deps.Carts,
		orders:   deps.Orders,
		payments: deps.Payments,
	}
}

// Routes registers the /legacy endpoints.
func (h *LegacyHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Group(func(r chi.Router) {
		if h.authn != nil {
			r.Use(h.authn.RequireFirebaseAuth())
		}
		r.Post("/cart/removeItem", h.removeCartItem)
		r.Post("/cart/delete", h.deleteCart)
	})
	r.Group(func(r chi.Router) {
		if h.authn != nil {
			r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
		}
		r.Get("/payments/allocations", h.lookupAllocations)
		r.Post("/orders/updateStatus", h.updateOrderStatus)
	})
}

func (h *LegacyHandlers) removeCartItem(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		httpx.WriteLegacyError(w, http.StatusServiceUnavailable, "cart service unavailable", nil)
		return
	}
	identity, ok := requestIdentity(r)
	if !ok {
		httpx.WriteLegacyError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}
	body, err := decodeRequestBody(r)
	if err != nil {
		writeLegacyServiceError(w, err)
		return
	}
	userID, err := targetUserID(identity, body)
	if err != nil {
		httpx.WriteLegacyError(w, http.StatusForbidden, err.Error(), nil)
		return
	}
	itemID := body.String(aliasItemID...)
	if itemID == "" {
		httpx.WriteLegacyError(w, http.StatusBadRequest, "itemId is required", nil)
		return
	}

	cart, err := h.carts.RemoveItem(r.Context(), services.RemoveCartItemCommand{UserID: userID, ItemID: itemID})
	if err != nil {
		writeLegacyServiceError(w, err)
		return
	}
	httpx.WriteLegacy(w, http.StatusOK, map[string]any{
		"message": "Item removed from cart",
		"cart":    cartPayload(cart),
	})
}

func (h *LegacyHandlers) deleteCart(w http.ResponseWriter, r *http.Request) {
	if h.carts == nil {
		httpx.WriteLegacyError(w, http.StatusServiceUnavailable, "cart service unavailable", nil)
		return
	}
	identity, ok := requestIdentity(r)
	if !ok {
		httpx.WriteLegacyError(w, http.StatusUnauthorized, "authentication required", nil)
		return
	}
	body, err := decodeRequestBody(r)
	if err != nil {
		writeLegacyServiceError(w, err)
		return
	}
	userID, err := targetUserID(identity, body)
	if err != nil {
		httpx.WriteLegacyError(w, http.StatusForbidden, err.Error(), nil)
		return
	}

	deleted, err := h.carts.DeleteCart(r.Context(), userID)
	if err != nil {
		writeLegacyServiceError(w, err)
		return
	}
	if deleted == nil {
		httpx.WriteLegacy(w, http.StatusOK, map[string]any{"message": "Cart already empty", "cart": nil})
		return
	}
	httpx.WriteLegacy(w, http.StatusOK, map[string]any{"message": "Cart deleted", "cart": nil})
}

func (h *LegacyHandlers) lookupAllocations(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		httpx.WriteLegacyError(w, http.StatusServiceUnavailable, "payment service unavailable", nil)
		return
	}
	paymentID := queryValue(r, aliasPaymentID...)
	if paymentID == "" {
		httpx.WriteLegacyError(w, http.StatusBadRequest, "paymentId is required", nil)
		return
	}

	views, err := h.payments.LookupAllocations(r.Context(), paymentID)
	if err != nil {
		writeLegacyServiceError(w, err)
		return
	}
	httpx.WriteLegacy(w, http.StatusOK, map[string]any{
		"paymentId":   paymentID,
		"allocations": buildAllocationPayloads(views),
	})
}

func (h *LegacyHandlers) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	if h.orders == nil {
		httpx.WriteLegacyError(w, http.StatusServiceUnavailable, "order service unavailable", nil)
		return
	}
	body, err := decodeRequestBody(r)
	if err != nil {
		writeLegacyServiceError(w, err)
		return
	}

	order, err := h.orders.UpdateStatus(r.Context(), services.UpdateOrderStatusCommand{
		Ref:     orderReference(body),
		Status:  body.String("status"),
		Reason:  body.String("reason", "editableReason"),
		ActorID: actorID(r),
	})
	if err != nil {
		writeLegacyServiceError(w, err)
		return
	}
	httpx.WriteLegacy(w, http.StatusOK, map[string]any{
		"message": "Order status updated",
		"order":   buildOrderPayload(order),
	})
}
