package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trademate/api/internal/platform/httpx"
	"github.com/trademate/api/internal/services"
)

// InternalHandlers exposes scheduler-driven maintenance endpoints. Authentication is applied by the
// router's internal middleware group.
type InternalHandlers struct {
	carts services.CartService
}

// NewInternalHandlers constructs the /internal handlers.
func NewInternalHandlers(carts services.CartService) *InternalHandlers {
	return &InternalHandlers{carts: carts}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/carts/reclaim", h.reclaimCarts)
}

func (h *InternalHandlers) reclaimCarts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		writeUnavailable(ctx, w, "cart")
		return
	}

	result, err := h.carts.ReclaimStaleCarts(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	reclaimed := result.Reclaimed
	if reclaimed == nil {
		reclaimed = []string{}
	}
	failed := make([]map[string]string, 0, len(result.Failed))
	for _, f := range result.Failed {
		failed = append(failed, map[string]string{"uid": f.UserID, "error": f.Error})
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"reclaimed":      reclaimed,
		"reclaimedCount": len(reclaimed),
		"failed":         failed,
	})
}
