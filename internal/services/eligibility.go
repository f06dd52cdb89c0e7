package services

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// DefaultFastDeliveryCutoffHour is the local hour from which fast delivery is no longer offered.
const DefaultFastDeliveryCutoffHour = 16

// ErrEligibilityInvalidCart indicates the supplied cart payload has none of the accepted shapes.
var ErrEligibilityInvalidCart = errors.New("eligibility: unrecognised cart payload")

// DeliveryEligibilityConfig configures fast delivery evaluation.
type DeliveryEligibilityConfig struct {
	Cities     []string
	Location   *time.Location
	CutoffHour int
	Clock      func() time.Time
}

type deliveryEligibility struct {
	cities     map[string]struct{}
	location   *time.Location
	cutoffHour int
	now        func() time.Time
}

// NewDeliveryEligibility constructs the fast delivery evaluator.
func NewDeliveryEligibility(cfg DeliveryEligibilityConfig) (DeliveryEligibilityService, error) {
	if len(cfg.Cities) == 0 {
		return nil, errors.New("eligibility: delivery cities are required")
	}
	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	cutoff := cfg.CutoffHour
	if cutoff <= 0 || cutoff > 24 {
		cutoff = DefaultFastDeliveryCutoffHour
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	cities := make(map[string]struct{}, len(cfg.Cities))
	for _, city := range cfg.Cities {
		if key := foldCity(city); key != "" {
			cities[key] = struct{}{}
		}
	}
	return &deliveryEligibility{
		cities:     cities,
		location:   location,
		cutoffHour: cutoff,
		now:        clock,
	}, nil
}

// Evaluate applies the stock, zone and cutoff checks and reports every failing reason. Items without
// inventory data fail the stock check, as does an empty cart.
func (e *deliveryEligibility) Evaluate(items []CartItem, address DeliveryAddress) EligibilityResult {
	now := e.now().In(e.location)
	result := EligibilityResult{Reasons: []string{}, ItemsWithoutStock: []string{}, EvaluatedAt: now}

	for _, item := range items {
		if !hasAvailableStock(item.Inventory) {
			result.ItemsWithoutStock = append(result.ItemsWithoutStock, firstNonEmpty(item.ItemID, item.UniqueID))
		}
	}
	if len(items) == 0 || len(result.ItemsWithoutStock) > 0 {
		result.Reasons = append(result.Reasons, ReasonInsufficientStock)
	}
	if _, ok := e.cities[foldCity(address.City)]; !ok {
		result.Reasons = append(result.Reasons, ReasonOutsideZone)
	}
	if now.Hour() >= e.cutoffHour {
		result.Reasons = append(result.Reasons, ReasonAfterCutoff)
	}
	result.Eligible = len(result.Reasons) == 0
	return result
}

func hasAvailableStock(inventory []InventoryRecord) bool {
	for _, record := range inventory {
		if record.QtyAvailable > 0 {
			return true
		}
	}
	return false
}

// foldCity builds a fresh Caser per call since Casers are stateful.
func foldCity(city string) string {
	return cases.Fold().String(strings.Join(strings.Fields(city), " "))
}

// NormalizeCartItems extracts cart items from any accepted payload: a bare item array, an API
// response ({"data":{"cart":{"items":[]}}} or {"cart":{"items":[]}}) or a stored cart document
// ({"items":[]}).
func NormalizeCartItems(raw json.RawMessage) ([]CartItem, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEligibilityInvalidCart
	}
	if trimmed[0] == '[' {
		var items []CartItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEligibilityInvalidCart, err)
		}
		return items, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEligibilityInvalidCart, err)
	}
	for _, key := range []string{"items", "cart", "data"} {
		if nested, ok := envelope[key]; ok {
			return NormalizeCartItems(nested)
		}
	}
	return nil, ErrEligibilityInvalidCart
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
