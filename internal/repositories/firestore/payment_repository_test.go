package firestore

import (
	"testing"
	"time"

	domain "github.com/trademate/api/internal/domain"
)

func TestPaymentLedgerUpdatesOnlyWriteLedgerFields(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	payment := domain.Payment{
		ID:                  "pay_1",
		Method:              domain.PaymentMethodCash,
		AmountIncl:          1000,
		RemainingAmountIncl: 600,
		Status:              domain.PaymentStatusPartiallyAllocated,
		CompanyID:           "co_1",
		CreatedBy:           "admin_1",
		CreatedAt:           now.Add(-time.Hour),
		Allocations:         []domain.PaymentAllocation{{ID: "alloc_1", InvoiceID: "inv_1", AmountIncl: 400, CreatedAt: now}},
		UpdatedAt:           now,
	}

	paths := updatePaths(paymentLedgerUpdates(payment))
	for _, untouched := range []string{"method", "currency", "company_id", "customer_id", "created_by", "created_at"} {
		if _, ok := paths[untouched]; ok {
			t.Fatalf("ledger update must not write %q, got %v", untouched, paths)
		}
	}
	if got := paths["remaining_amount_incl"]; got != 600.0 {
		t.Fatalf("expected remaining 600, got %v", got)
	}
	if got := paths["status"]; got != string(domain.PaymentStatusPartiallyAllocated) {
		t.Fatalf("unexpected status %v", got)
	}
	allocations, ok := paths["allocations"].([]paymentAllocationDocument)
	if !ok || len(allocations) != 1 || allocations[0].AllocationID != "alloc_1" {
		t.Fatalf("unexpected allocations %v", paths["allocations"])
	}
}
