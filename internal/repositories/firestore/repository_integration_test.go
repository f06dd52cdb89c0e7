//go:build integration

package firestore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/trademate/api/internal/domain"
	pconfig "github.com/trademate/api/internal/platform/config"
	pfirestore "github.com/trademate/api/internal/platform/firestore"
	"github.com/trademate/api/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func TestInvoiceRepositoryConcurrentIssueIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "invoice-sequence-test")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const workers = 8
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	orders := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection)
	for i := 0; i < workers; i++ {
		order := domain.Order{
			ID:        fmt.Sprintf("ord_%d", i),
			Number:    fmt.Sprintf("TM-%d", 2000+i),
			Status:    domain.OrderStatusConfirmed,
			Editable:  true,
			Totals:    domain.OrderTotals{FinalTotal: 115},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := orders.Set(ctx, order.ID, orderToDocument(order)); err != nil {
			t.Fatalf("seed order: %v", err)
		}
	}

	repo, err := NewInvoiceRepository(provider)
	if err != nil {
		t.Fatalf("new invoice repository: %v", err)
	}

	build := func(o domain.Order, sequence int64) (domain.Invoice, domain.Order, error) {
		invoice := domain.Invoice{
			ID:       fmt.Sprintf("inv_%s", o.ID),
			Sequence: sequence,
			Number:   fmt.Sprintf("INV-%06d", sequence),
			OrderID:  o.ID,
			IssuedAt: now,
		}
		o.Editable = false
		o.Invoice = &domain.OrderInvoiceRef{InvoiceID: invoice.ID, InvoiceNumber: invoice.Number, IssuedAt: now}
		return invoice, o, nil
	}

	results := make([]int64, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(idx int) {
			defer wg.Done()
			invoice, _, err := repo.Issue(ctx, fmt.Sprintf("ord_%d", idx), build)
			if err != nil {
				errs <- err
				return
			}
			results[idx] = invoice.Sequence
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent issue failed: %v", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	for i, value := range results {
		if value != int64(i+1) {
			t.Fatalf("expected contiguous invoice sequence, got %v", results)
		}
	}
}

func TestInvoiceRepositoryIssueIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "invoice-test")
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	orders := pfirestore.NewBaseRepository[orderDocument](provider, orderCollection)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:        "ord_1",
		Number:    "TM-1001",
		Status:    domain.OrderStatusConfirmed,
		Editable:  true,
		CompanyID: "co_1",
		Items:     []domain.OrderItem{{UniqueID: "sku-1", Name: "Brick", Qty: 2, UnitPriceExcl: 100}},
		Totals:    domain.OrderTotals{SubtotalExcl: 200, VAT: 30, SubtotalIncl: 230, FinalTotal: 230},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := orders.Set(ctx, order.ID, orderToDocument(order)); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	repo, err := NewInvoiceRepository(provider)
	if err != nil {
		t.Fatalf("new invoice repository: %v", err)
	}

	calls := 0
	build := func(o domain.Order, sequence int64) (domain.Invoice, domain.Order, error) {
		calls++
		invoice := domain.Invoice{
			ID:         fmt.Sprintf("inv_%d", sequence),
			Sequence:   sequence,
			Number:     fmt.Sprintf("INV-%06d", sequence),
			OrderID:    o.ID,
			CompanyID:  o.CompanyID,
			Status:     domain.InvoiceStatusPending,
			FinalTotal: o.Totals.FinalTotal,
			Items:      o.Items,
			Totals:     o.Totals,
			IssuedAt:   now,
		}
		o.Editable = false
		o.EditableReason = "invoiced"
		o.LockedAt = &now
		o.Invoice = &domain.OrderInvoiceRef{InvoiceID: invoice.ID, InvoiceNumber: invoice.Number, IssuedAt: now}
		return invoice, o, nil
	}

	first, existing, err := repo.Issue(ctx, order.ID, build)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if existing || first.Sequence != 1 || first.Number != "INV-000001" {
		t.Fatalf("unexpected first invoice %+v existing=%v", first, existing)
	}

	second, existing, err := repo.Issue(ctx, order.ID, build)
	if err != nil {
		t.Fatalf("second issue: %v", err)
	}
	if !existing || second.ID != first.ID {
		t.Fatalf("expected existing invoice %s, got %+v existing=%v", first.ID, second, existing)
	}
	if calls != 1 {
		t.Fatalf("expected builder to run once, ran %d times", calls)
	}

	orderRepo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}
	stored, err := orderRepo.FindByID(ctx, order.ID)
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	if stored.Editable || stored.Invoice == nil || stored.Invoice.InvoiceID != first.ID {
		t.Fatalf("expected locked order with invoice ref, got %+v", stored)
	}
}

func TestTransactionRepositoryReserveIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "transaction-test")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := NewTransactionRepository(provider)
	if err != nil {
		t.Fatalf("new transaction repository: %v", err)
	}
	record := domain.TransactionRecord{Number: "482913", UserID: "u1", Amount: 99.5, CreatedAt: time.Now()}
	if err := repo.Reserve(ctx, record); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	err = repo.Reserve(ctx, record)
	if !errors.Is(err, repositories.ErrTransactionNumberTaken) {
		t.Fatalf("expected ErrTransactionNumberTaken, got %v", err)
	}
}

func newEmulatorProvider(t *testing.T, projectID string) *pfirestore.Provider {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test skipped in short mode")
	}
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })

	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    projectID,
		EmulatorHost: endpoint,
	})
	t.Cleanup(func() { _ = provider.Close() })
	return provider
}

func freePort(t *testing.T) int {
	t.Helper()
	addr, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer addr.Close()
	return addr.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}
	out, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skipf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}

func TestOrderRepositoryUpdateKeepsUpstreamFieldsIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "order-update-test")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ref := client.Collection(orderCollection).Doc("ord_1")
	if _, err := ref.Set(ctx, map[string]any{
		"order": map[string]any{"status": map[string]any{"order": "confirmed"}, "editable": true, "orderNumber": "TM-1001"},
		"items": []any{map[string]any{"unique_id": "sku-1", "qty": 2, "unit_price_excl": 100, "image_url": "https://cdn/sku-1.png"}},
		"totals": map[string]any{"final_total": 230},
		"payment": map[string]any{"status": "pending", "method": "eft", "gateway_ref": "gw_1"},
	}); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	repo, err := NewOrderRepository(provider)
	if err != nil {
		t.Fatalf("new order repository: %v", err)
	}
	order, err := repo.FindByID(ctx, "ord_1")
	if err != nil {
		t.Fatalf("find order: %v", err)
	}
	order.Status = domain.OrderStatusDispatched
	order.Payment.Status = domain.OrderPaymentStatusPaid
	order.UpdatedAt = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	if err := repo.Update(ctx, order); err != nil {
		t.Fatalf("update order: %v", err)
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		t.Fatalf("read order: %v", err)
	}
	raw := snap.Data()
	items, _ := raw["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected items to survive, got %v", raw["items"])
	}
	if item, _ := items[0].(map[string]any); item["image_url"] != "https://cdn/sku-1.png" {
		t.Fatalf("expected upstream item field to survive, got %v", items[0])
	}
	payment, _ := raw["payment"].(map[string]any)
	if payment["gateway_ref"] != "gw_1" || payment["status"] != "paid" {
		t.Fatalf("unexpected payment map %v", payment)
	}
}

func TestInvoiceListFiltersCompanyAndRangeIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "invoice-list-test")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	invoices := pfirestore.NewBaseRepository[invoiceDocument](provider, invoiceCollection)
	march := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seed := []domain.Invoice{
		{ID: "inv_1", Number: "INV-000001", CompanyID: "co_1", Status: domain.InvoiceStatusPending, IssuedAt: march},
		{ID: "inv_2", Number: "INV-000002", CompanyID: "co_1", Status: domain.InvoiceStatusPending, IssuedAt: march.AddDate(0, 1, 0)},
		{ID: "inv_3", Number: "INV-000003", CompanyID: "co_2", Status: domain.InvoiceStatusPending, IssuedAt: march},
	}
	for _, inv := range seed {
		if err := invoices.Set(ctx, inv.ID, invoiceToDocument(inv)); err != nil {
			t.Fatalf("seed invoice: %v", err)
		}
	}

	repo, err := NewInvoiceRepository(provider)
	if err != nil {
		t.Fatalf("new invoice repository: %v", err)
	}
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 3, 31, 23, 59, 59, 0, time.UTC)
	got, err := repo.List(ctx, repositories.InvoiceFilter{CompanyID: "co_1", Status: domain.InvoiceStatusPending, From: &from, To: &to})
	if err != nil {
		t.Fatalf("list invoices: %v", err)
	}
	if len(got) != 1 || got[0].ID != "inv_1" {
		t.Fatalf("expected only inv_1, got %+v", got)
	}
}

func TestAllocationListByPaymentOrdersOldestFirstIntegration(t *testing.T) {
	provider := newEmulatorProvider(t, "allocation-list-test")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := NewAllocationRepository(provider)
	if err != nil {
		t.Fatalf("new allocation repository: %v", err)
	}
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{2 * time.Hour, 0, time.Hour} {
		if err := repo.Insert(ctx, domain.PaymentAllocation{
			ID:         fmt.Sprintf("alloc_%d", i),
			PaymentID:  "pay_1",
			InvoiceID:  "inv_1",
			AmountIncl: 10,
			CreatedAt:  base.Add(offset),
		}); err != nil {
			t.Fatalf("insert allocation: %v", err)
		}
	}
	if err := repo.Delete(ctx, "alloc_2"); err != nil {
		t.Fatalf("delete allocation: %v", err)
	}

	got, err := repo.ListByPayment(ctx, "pay_1")
	if err != nil {
		t.Fatalf("list allocations: %v", err)
	}
	if len(got) != 2 || got[0].ID != "alloc_1" || got[1].ID != "alloc_0" {
		t.Fatalf("unexpected allocation order %+v", got)
	}
}
