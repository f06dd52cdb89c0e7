package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/trademate/api/internal/services"
)

func TestTransactionHandlersCreate(t *testing.T) {
	var captured services.CreateTransactionCommand
	service := &stubTransactionService{
		createFunc: func(ctx context.Context, cmd services.CreateTransactionCommand) (services.TransactionResult, error) {
			captured = cmd
			return services.TransactionResult{Number: "4820194821", Attempts: 2}, nil
		},
	}
	handler := NewTransactionHandlers(nil, service)

	rr := serve(t, "/transactions", handler.Routes, userIdentity("user-1"), http.MethodPost, "/transactions", `{"amount":"287.69"}`)

	data := envelopeData(t, rr, http.StatusCreated)
	if captured.UserID != "user-1" || captured.Amount != 287.69 {
		t.Fatalf("unexpected command %+v", captured)
	}
	if data["merchantTransactionId"] != "4820194821" {
		t.Fatalf("unexpected payload %v", data)
	}
}

func TestTransactionHandlersExhaustedIsConflict(t *testing.T) {
	service := &stubTransactionService{
		createFunc: func(ctx context.Context, cmd services.CreateTransactionCommand) (services.TransactionResult, error) {
			return services.TransactionResult{}, fmt.Errorf("%w: 5 attempts", services.ErrTransactionNumberExhausted)
		},
	}
	handler := NewTransactionHandlers(nil, service)

	rr := serve(t, "/transactions", handler.Routes, userIdentity("user-1"), http.MethodPost, "/transactions", `{"amount":10}`)

	envelopeFailure(t, rr, http.StatusConflict)
}

func TestTransactionHandlersRateLimitPerUser(t *testing.T) {
	now := time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)
	handler := NewTransactionHandlers(nil, &stubTransactionService{},
		WithTransactionRateLimit(2, time.Minute, func() time.Time { return now }))

	for i := 0; i < 2; i++ {
		rr := serve(t, "/transactions", handler.Routes, userIdentity("user-1"), http.MethodPost, "/transactions", `{"amount":1}`)
		envelopeData(t, rr, http.StatusCreated)
	}

	rr := serve(t, "/transactions", handler.Routes, userIdentity("user-1"), http.MethodPost, "/transactions", `{"amount":1}`)
	envelopeFailure(t, rr, http.StatusTooManyRequests)
	if rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
	}

	rr = serve(t, "/transactions", handler.Routes, userIdentity("user-2"), http.MethodPost, "/transactions", `{"amount":1}`)
	envelopeData(t, rr, http.StatusCreated)

	now = now.Add(time.Minute)
	rr = serve(t, "/transactions", handler.Routes, userIdentity("user-1"), http.MethodPost, "/transactions", `{"amount":1}`)
	envelopeData(t, rr, http.StatusCreated)
}

func TestTransactionHandlersAmountRequired(t *testing.T) {
	handler := NewTransactionHandlers(nil, &stubTransactionService{})

	rr := serve(t, "/transactions", handler.Routes, userIdentity("user-1"), http.MethodPost, "/transactions", `{}`)

	envelopeFailure(t, rr, http.StatusBadRequest)
}
