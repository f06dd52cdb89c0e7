package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/trademate/api/internal/platform/auth"
	"github.com/trademate/api/internal/platform/httpx"
	"github.com/trademate/api/internal/platform/validation"
	"github.com/trademate/api/internal/services"
)

// MeHandlers exposes endpoints scoped to the authenticated user.
type MeHandlers struct {
	authn     *auth.Authenticator
	locations services.DeliveryLocationService
}

// NewMeHandlers constructs the /me handlers.
func NewMeHandlers(authn *auth.Authenticator, locations services.DeliveryLocationService) *MeHandlers {
	return &MeHandlers{
		authn:     authn,
		locations: locations,
	}
}

// Routes registers the /me endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Route("/delivery-locations", h.deliveryLocationRoutes)
}

func (h *MeHandlers) deliveryLocationRoutes(r chi.Router) {
	r.Get("/", h.listDeliveryLocations)
	r.Post("/", h.addDeliveryLocation)
	r.Route("/{locationId}", func(r chi.Router) {
		r.Put("/", h.updateDeliveryLocation)
		r.Delete("/", h.removeDeliveryLocation)
	})
}

func (h *MeHandlers) listDeliveryLocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.locations == nil {
		writeUnavailable(ctx, w, "delivery location")
		return
	}
	identity, ok := requestIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	locations, err := h.locations.List(ctx, identity.UID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"locations": locations})
}

func (h *MeHandlers) addDeliveryLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.locations == nil {
		writeUnavailable(ctx, w, "delivery location")
		return
	}
	identity, ok := requestIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	var req services.DeliveryLocation
	if err := validation.DecodeJSON(r, &req); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	req.ID = ""

	location, err := h.locations.Add(ctx, services.UpsertDeliveryLocationCommand{UserID: identity.UID, Location: req})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, map[string]any{"location": location})
}

// updateDeliveryLocationRequest tells an omitted is_default apart from false.
type updateDeliveryLocationRequest struct {
	services.DeliveryLocation
	IsDefault *bool `json:"is_default"`
}

func (h *MeHandlers) updateDeliveryLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.locations == nil {
		writeUnavailable(ctx, w, "delivery location")
		return
	}
	identity, ok := requestIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	var req updateDeliveryLocationRequest
	if err := validation.DecodeJSON(r, &req); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	req.ID = strings.TrimSpace(chi.URLParam(r, "locationId"))

	location, err := h.locations.Update(ctx, services.UpsertDeliveryLocationCommand{
		UserID:     identity.UID,
		Location:   req.DeliveryLocation,
		SetDefault: req.IsDefault,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"location": location})
}

func (h *MeHandlers) removeDeliveryLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.locations == nil {
		writeUnavailable(ctx, w, "delivery location")
		return
	}
	identity, ok := requestIdentity(r)
	if !ok {
		writeUnauthenticated(ctx, w)
		return
	}

	locationID := strings.TrimSpace(chi.URLParam(r, "locationId"))
	if err := h.locations.Remove(ctx, identity.UID, locationID); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"removedLocationId": locationID})
}
