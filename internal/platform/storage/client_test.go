package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

type fakeSigner struct {
	email    string
	payloads int
	err      error
}

func (f *fakeSigner) Email() string { return f.email }

func (f *fakeSigner) SignBytes(_ context.Context, _ []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads++
	return []byte("signed"), nil
}

func newTestClient(t *testing.T, signer *fakeSigner) *Client {
	t.Helper()
	client, err := NewClient(signer, "tm-invoices", 10*time.Minute)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return client
}

func TestDownloadURLSignsInvoiceObject(t *testing.T) {
	signer := &fakeSigner{email: "invoices@tm-prod.iam.gserviceaccount.com"}
	client := newTestClient(t, signer)

	signed, err := client.DownloadURL(context.Background(), "/invoices/INV-000042.pdf")
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if !strings.Contains(parsed.Path, "tm-invoices/invoices/INV-000042.pdf") {
		t.Fatalf("unexpected path %s", parsed.Path)
	}
	query := parsed.Query()
	if query.Get("X-Goog-Expires") != "600" {
		t.Fatalf("expected 600s expiry, got %q", query.Get("X-Goog-Expires"))
	}
	if query.Get("X-Goog-Signature") == "" || signer.payloads != 1 {
		t.Fatalf("expected a single signature, got %q (%d)", query.Get("X-Goog-Signature"), signer.payloads)
	}
}

func TestDownloadURLHonoursGSURIAndAbsoluteURLs(t *testing.T) {
	client := newTestClient(t, &fakeSigner{email: "svc@example.com"})

	signed, err := client.DownloadURL(context.Background(), "gs://legacy-bucket/2024/inv-9.pdf")
	if err != nil {
		t.Fatalf("DownloadURL: %v", err)
	}
	if !strings.Contains(signed, "legacy-bucket/2024/inv-9.pdf") {
		t.Fatalf("expected legacy bucket, got %s", signed)
	}

	const direct = "https://cdn.example.com/inv-1.pdf"
	if got, _ := client.DownloadURL(context.Background(), direct); got != direct {
		t.Fatalf("expected absolute url untouched, got %s", got)
	}
}

func TestDownloadURLErrors(t *testing.T) {
	if _, err := NewClient(&fakeSigner{}, "bucket", 0); !errors.Is(err, errNoSigner) {
		t.Fatalf("expected errNoSigner, got %v", err)
	}
	if _, err := NewClient(&fakeSigner{email: "a@b"}, " ", 0); !errors.Is(err, errInvalidBucket) {
		t.Fatalf("expected errInvalidBucket, got %v", err)
	}

	client := newTestClient(t, &fakeSigner{email: "a@b", err: errors.New("kms down")})
	if _, err := client.DownloadURL(context.Background(), ""); !errors.Is(err, errInvalidObject) {
		t.Fatalf("expected errInvalidObject, got %v", err)
	}
	if _, err := client.DownloadURL(context.Background(), "inv.pdf"); err == nil {
		t.Fatalf("expected signing error")
	}
}
