package services

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func newTestEligibility(t *testing.T, now time.Time) DeliveryEligibilityService {
	t.Helper()
	loc, err := time.LoadLocation("Africa/Johannesburg")
	if err != nil {
		loc = time.FixedZone("SAST", 2*60*60)
	}
	svc, err := NewDeliveryEligibility(DeliveryEligibilityConfig{
		Cities:   []string{"Johannesburg", "Sandton", "Fourways"},
		Location: loc,
		Clock:    fixedClock(now),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func stockedItem(id string, qty int) CartItem {
	return CartItem{ItemID: id, UniqueID: "u-" + id, SaleQty: 1, Inventory: []InventoryRecord{{LocationID: "wh-1", QtyAvailable: qty}}}
}

func TestDeliveryEligibilityEligible(t *testing.T) {
	// 09:00 in Johannesburg.
	svc := newTestEligibility(t, time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC))

	result := svc.Evaluate([]CartItem{stockedItem("a", 3)}, DeliveryAddress{City: "  sandton "})
	if !result.Eligible || len(result.Reasons) != 0 {
		t.Fatalf("expected eligible, got %+v", result)
	}
}

func TestDeliveryEligibilityReportsEveryReason(t *testing.T) {
	// 17:30 in Johannesburg.
	svc := newTestEligibility(t, time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC))

	items := []CartItem{stockedItem("a", 2), stockedItem("b", 0), {ItemID: "c", UniqueID: "u-c"}}
	result := svc.Evaluate(items, DeliveryAddress{City: "Pretoria"})
	if result.Eligible {
		t.Fatalf("expected ineligible")
	}
	want := []string{ReasonInsufficientStock, ReasonOutsideZone, ReasonAfterCutoff}
	if !reflect.DeepEqual(result.Reasons, want) {
		t.Fatalf("expected reasons %v, got %v", want, result.Reasons)
	}
	if !reflect.DeepEqual(result.ItemsWithoutStock, []string{"b", "c"}) {
		t.Fatalf("unexpected items without stock %v", result.ItemsWithoutStock)
	}
}

func TestDeliveryEligibilityCutoffBoundary(t *testing.T) {
	// Exactly 16:00 in Johannesburg.
	svc := newTestEligibility(t, time.Date(2024, 5, 10, 14, 0, 0, 0, time.UTC))
	result := svc.Evaluate([]CartItem{stockedItem("a", 1)}, DeliveryAddress{City: "Johannesburg"})
	if !reflect.DeepEqual(result.Reasons, []string{ReasonAfterCutoff}) {
		t.Fatalf("expected cutoff at 16:00, got %v", result.Reasons)
	}
}

func TestDeliveryEligibilityEmptyCartFailsStock(t *testing.T) {
	svc := newTestEligibility(t, time.Date(2024, 5, 10, 7, 0, 0, 0, time.UTC))
	result := svc.Evaluate(nil, DeliveryAddress{City: "Johannesburg"})
	if result.Eligible || !reflect.DeepEqual(result.Reasons, []string{ReasonInsufficientStock}) {
		t.Fatalf("expected empty cart to fail stock check, got %+v", result)
	}
}

func TestNewDeliveryEligibilityRequiresCities(t *testing.T) {
	if _, err := NewDeliveryEligibility(DeliveryEligibilityConfig{}); err == nil {
		t.Fatalf("expected error without cities")
	}
}

func TestNormalizeCartItemsShapes(t *testing.T) {
	cases := map[string]string{
		"array":    `[{"item_id":"a","unique_id":"u","sale_qty":1}]`,
		"stored":   `{"uid":"user-1","items":[{"item_id":"a","unique_id":"u","sale_qty":1}]}`,
		"response": `{"cart":{"items":[{"item_id":"a","unique_id":"u","sale_qty":1}]}}`,
		"envelope": `{"ok":true,"data":{"cart":{"items":[{"item_id":"a","unique_id":"u","sale_qty":1}]}}}`,
	}
	for name, payload := range cases {
		items, err := NormalizeCartItems(json.RawMessage(payload))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if len(items) != 1 || items[0].ItemID != "a" || items[0].SaleQty != 1 {
			t.Fatalf("%s: unexpected items %+v", name, items)
		}
	}
}

func TestNormalizeCartItemsRejectsUnknownShapes(t *testing.T) {
	for _, payload := range []string{``, `null`, `{"foo":[]}`, `"text"`, `{"items":"nope"}`} {
		if _, err := NormalizeCartItems(json.RawMessage(payload)); !errors.Is(err, ErrEligibilityInvalidCart) {
			t.Fatalf("payload %q: expected invalid cart, got %v", payload, err)
		}
	}
}
