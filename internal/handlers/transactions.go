package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trademate/api/internal/platform/auth"
	"github.com/trademate/api/internal/platform/httpx"
	"github.com/trademate/api/internal/services"
)

const (
	defaultTransactionRateLimit  = 10
	defaultTransactionRateWindow = time.Minute
)

// TransactionHandlers issues merchant transaction numbers ahead of card checkout.
type TransactionHandlers struct {
	authn        *auth.Authenticator
	transactions services.TransactionService
	limiter      rateLimiter
}

// TransactionHandlerOption customises TransactionHandlers.
type TransactionHandlerOption func(*TransactionHandlers)

// WithTransactionRateLimit caps how many numbers one user may request per window. A non-positive
// limit disables the cap.
func WithTransactionRateLimit(limit int, window time.Duration, clock func() time.Time) TransactionHandlerOption {
	return func(h *TransactionHandlers) {
		h.limiter = newWindowRateLimiter(limit, window, clock)
	}
}

// NewTransactionHandlers constructs the /transactions handlers.
func NewTransactionHandlers(authn *auth.Authenticator, transactions services.TransactionService, opts ...TransactionHandlerOption) *TransactionHandlers {
	h := &TransactionHandlers{
		authn:        authn,
		transactions: transactions,
		limiter:      newWindowRateLimiter(defaultTransactionRateLimit, defaultTransactionRateWindow, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /transactions endpoints.
func (h *TransactionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.With(rateLimitByUser(h.limiter)).Post("/", h.createTransaction)
}

func (h *TransactionHandlers) createTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.transactions == nil {
		writeUnavailable(ctx, w, "transaction")
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
	amount, err := body.Float("amount", "cartTotal", "total")
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if amount == nil {
		httpx.WriteFailure(ctx, w, httpx.BadRequest("amount is required"))
		return
	}

	result, err := h.transactions.Create(ctx, services.CreateTransactionCommand{UserID: identity.UID, Amount: *amount})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, map[string]any{
		"merchantTransactionId": result.Number,
		"attempts":              result.Attempts,
	})
}
