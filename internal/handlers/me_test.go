package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/trademate/api/internal/services"
)

func TestMeHandlersListDeliveryLocations(t *testing.T) {
	service := &stubDeliveryLocationService{
		listFunc: func(ctx context.Context, userID string) ([]services.DeliveryLocation, error) {
			if userID != "user-1" {
				t.Fatalf("unexpected user %q", userID)
			}
			return []services.DeliveryLocation{{ID: "loc-1", Street: "1 Main Rd", City: "Sandton", IsDefault: true}}, nil
		},
	}
	handler := NewMeHandlers(nil, service)

	rr := serve(t, "/me", handler.Routes, userIdentity("user-1"), http.MethodGet, "/me/delivery-locations", "")

	data := envelopeData(t, rr, http.StatusOK)
	locations := data["locations"].([]any)
	if len(locations) != 1 || locations[0].(map[string]any)["is_default"] != true {
		t.Fatalf("unexpected locations %v", locations)
	}
}

func TestMeHandlersAddDeliveryLocationIgnoresClientID(t *testing.T) {
	var captured services.UpsertDeliveryLocationCommand
	service := &stubDeliveryLocationService{
		addFunc: func(ctx context.Context, cmd services.UpsertDeliveryLocationCommand) (services.DeliveryLocation, error) {
			captured = cmd
			location := cmd.Location
			location.ID = "loc-new"
			return location, nil
		},
	}
	handler := NewMeHandlers(nil, service)

	rr := serve(t, "/me", handler.Routes, userIdentity("user-1"), http.MethodPost, "/me/delivery-locations", `{"id":"forged","street":"2 Oak Ave","city":"Randburg"}`)

	data := envelopeData(t, rr, http.StatusCreated)
	if captured.Location.ID != "" || captured.UserID != "user-1" || captured.Location.City != "Randburg" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if data["location"].(map[string]any)["id"] != "loc-new" {
		t.Fatalf("unexpected payload %v", data)
	}
}

func TestMeHandlersUpdateDeliveryLocationUsesPathID(t *testing.T) {
	var captured services.UpsertDeliveryLocationCommand
	service := &stubDeliveryLocationService{
		updateFunc: func(ctx context.Context, cmd services.UpsertDeliveryLocationCommand) (services.DeliveryLocation, error) {
			captured = cmd
			return cmd.Location, nil
		},
	}
	handler := NewMeHandlers(nil, service)

	rr := serve(t, "/me", handler.Routes, userIdentity("user-1"), http.MethodPut, "/me/delivery-locations/loc-2", `{"id":"other","street":"3 Elm St","city":"Midrand","is_default":true}`)

	envelopeData(t, rr, http.StatusOK)
	if captured.Location.ID != "loc-2" || captured.Location.City != "Midrand" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.SetDefault == nil || !*captured.SetDefault {
		t.Fatalf("expected explicit default, got %v", captured.SetDefault)
	}
}

func TestMeHandlersUpdateDeliveryLocationOmittedDefault(t *testing.T) {
	var captured services.UpsertDeliveryLocationCommand
	service := &stubDeliveryLocationService{
		updateFunc: func(ctx context.Context, cmd services.UpsertDeliveryLocationCommand) (services.DeliveryLocation, error) {
			captured = cmd
			return cmd.Location, nil
		},
	}
	handler := NewMeHandlers(nil, service)

	rr := serve(t, "/me", handler.Routes, userIdentity("user-1"), http.MethodPut, "/me/delivery-locations/loc-2", `{"street":"3 Elm St","city":"Midrand"}`)

	envelopeData(t, rr, http.StatusOK)
	if captured.SetDefault != nil {
		t.Fatalf("expected no explicit default, got %v", *captured.SetDefault)
	}
}

func TestMeHandlersRemoveDeliveryLocationNotFound(t *testing.T) {
	service := &stubDeliveryLocationService{
		removeFunc: func(ctx context.Context, userID, locationID string) error {
			return fmt.Errorf("%w: %s", services.ErrDeliveryLocationNotFound, locationID)
		},
	}
	handler := NewMeHandlers(nil, service)

	rr := serve(t, "/me", handler.Routes, userIdentity("user-1"), http.MethodDelete, "/me/delivery-locations/loc-9", "")

	envelopeFailure(t, rr, http.StatusNotFound)
}
