package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trademate/api/internal/platform/auth"
	"github.com/trademate/api/internal/platform/httpx"
	"github.com/trademate/api/internal/platform/validation"
	"github.com/trademate/api/internal/services"
)

type addCartItemRequest struct {
	UniqueID  string                     `json:"unique_id" validate:"notblank"`
	VariantID string                     `json:"variant_id"`
	Name      string                     `json:"name" validate:"max=200"`
	Qty       int                        `json:"qty" validate:"gt=0"`
	Price     float64                    `json:"price" validate:"finite,gte=0"`
	Inventory []services.InventoryRecord `json:"inventory"`
}

type eligibilityAddress struct {
	City string `json:"city"`
}

// CartHandlers exposes the authenticated user's cart.
type CartHandlers struct {
	authn       *auth.Authenticator
	carts       services.CartService
	eligibility services.DeliveryEligibilityService
}

// NewCartHandlers constructs cart handlers. eligibility may be nil when fast delivery is not offered.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService, eligibility services.DeliveryEligibilityService) *CartHandlers {
	return &CartHandlers{
		authn:       authn,
		carts:       carts,
		eligibility: eligibility,
	}
}

// Routes registers the /cart endpoints.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.deleteCart)
	r.Post("/items", h.addItem)
	r.Delete("/items/{itemId}", h.removeItem)
	r.Post("/eligibility", h.evaluateEligibility)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requestIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	cart, err := h.carts.GetCart(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"cart": cartPayload(cart)})
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requestIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	var req addCartItemRequest
	if err := validation.DecodeJSONBody(r, &req); err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		UserID:    identity.UID,
		UniqueID:  req.UniqueID,
		VariantID: req.VariantID,
		Name:      req.Name,
		Qty:       req.Qty,
		Price:     req.Price,
		Inventory: req.Inventory,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"cart": cartPayload(cart)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requestIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemId"))
	if itemID == "" {
		httpx.WriteFailure(ctx, w, httpx.BadRequest("itemId is required"))
		return
	}

	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{UserID: identity.UID, ItemID: itemID})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"cart": cartPayload(cart), "removedItemId": itemID})
}

func (h *CartHandlers) deleteCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}
	identity, ok := requestIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	deleted, err := h.carts.DeleteCart(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if deleted == nil {
		httpx.WriteSuccess(w, http.StatusOK, map[string]any{"cart": nil, "message": "cart already empty"})
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"cart": nil, "releasedItems": len(deleted.Items)})
}

// evaluateEligibility checks fast delivery for a cart supplied in the body, or the stored cart when
// the body carries none.
func (h *CartHandlers) evaluateEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.eligibility == nil || h.carts == nil {
		writeUnavailable(ctx, w, "delivery eligibility")
		return
	}
	identity, ok := requestIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	body, err := decodeRequestBody(r)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	var items []services.CartItem
	if raw, ok := body.Raw("cart", "items", "data"); ok {
		items, err = services.NormalizeCartItems(raw)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
	} else {
		cart, err := h.carts.GetCart(ctx, identity.UID)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		items = cart.Items
	}

	var address eligibilityAddress
	if _, err := body.Decode(&address, "address", "deliveryAddress", "delivery_address"); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if address.City == "" {
		address.City = body.String("city")
	}
	if strings.TrimSpace(address.City) == "" {
		httpx.WriteFailure(ctx, w, httpx.BadRequest("address.city is required"))
		return
	}

	result := h.eligibility.Evaluate(items, services.DeliveryAddress{City: address.City})
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"eligible":          result.Eligible,
		"reasons":           result.Reasons,
		"itemsWithoutStock": result.ItemsWithoutStock,
		"evaluatedAt":       result.EvaluatedAt.Format(time.RFC3339),
	})
}

func cartPayload(cart services.Cart) services.Cart {
	if cart.Items == nil {
		cart.Items = []services.CartItem{}
	}
	return cart
}
