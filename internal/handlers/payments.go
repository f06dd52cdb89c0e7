package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/trademate/api/internal/platform/auth"
	"github.com/trademate/api/internal/platform/httpx"
	"github.com/trademate/api/internal/services"
)

var (
	aliasProofOfPayment = []string{"proofOfPayment", "proof_of_payment", "pop"}
	aliasReference      = []string{"reference", "ref"}
)

type paymentPayload struct {
	ID                  string                       `json:"id"`
	Method              string                       `json:"method"`
	AmountIncl          float64                      `json:"amountIncl"`
	RemainingAmountIncl float64                      `json:"remainingAmountIncl"`
	Status              string                       `json:"status"`
	Currency            string                       `json:"currency"`
	ProofOfPayment      string                       `json:"proofOfPayment,omitempty"`
	CompanyID           string                       `json:"companyId,omitempty"`
	CustomerID          string                       `json:"customerId,omitempty"`
	Reference           string                       `json:"reference,omitempty"`
	Allocations         []services.PaymentAllocation `json:"allocations"`
	CreatedBy           string                       `json:"createdBy,omitempty"`
	CreatedAt           string                       `json:"createdAt"`
	UpdatedAt           string                       `json:"updatedAt"`
}

type allocationPayload struct {
	AllocationID  string   `json:"allocationId"`
	PaymentID     string   `json:"paymentId"`
	InvoiceID     string   `json:"invoiceId"`
	AmountIncl    float64  `json:"amountIncl"`
	CreatedAt     string   `json:"createdAt"`
	InvoiceNumber *string  `json:"invoiceNumber"`
	InvoiceDate   *string  `json:"invoiceDate"`
	InvoiceTotal  *float64 `json:"invoiceTotal"`
	PDFURL        *string  `json:"pdfUrl"`
}

// PaymentHandlers exposes the staff payment ledger.
type PaymentHandlers struct {
	authn    *auth.Authenticator
	payments services.PaymentLedgerService
}

// NewPaymentHandlers constructs the /payments handlers.
func NewPaymentHandlers(authn *auth.Authenticator, payments services.PaymentLedgerService) *PaymentHandlers {
	return &PaymentHandlers{authn: authn, payments: payments}
}

// Routes registers the /payments endpoints.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Post("/", h.createPayment)
	r.Route("/{paymentId}", func(r chi.Router) {
		r.Get("/", h.getPayment)
		r.Patch("/", h.updatePayment)
		r.Get("/allocations", h.listAllocations)
		r.Post("/allocations", h.allocatePayment)
	})
}

func (h *PaymentHandlers) createPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	body, err := decodeRequestBody(r)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	amount, err := body.Float(aliasAmountIncl...)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if amount == nil {
		httpx.WriteFailure(ctx, w, httpx.BadRequest("amount_incl is required"))
		return
	}

	payment, err := h.payments.Create(ctx, services.CreatePaymentCommand{
		Method:         body.String("method", "paymentMethod", "payment_method"),
		AmountIncl:     *amount,
		Currency:       body.String("currency"),
		ProofOfPayment: body.String(aliasProofOfPayment...),
		CompanyID:      body.String(aliasCompanyID...),
		CustomerID:     body.String(aliasCustomerID...),
		Reference:      body.String(aliasReference...),
		ActorID:        actorID(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, map[string]any{"payment": buildPaymentPayload(payment)})
}

func (h *PaymentHandlers) getPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	payment, err := h.payments.Get(ctx, chi.URLParam(r, "paymentId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"payment": buildPaymentPayload(payment)})
}

func (h *PaymentHandlers) updatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	body, err := decodeRequestBody(r)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	amount, err := body.Float(aliasAmountIncl...)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payment, err := h.payments.Update(ctx, services.UpdatePaymentCommand{
		PaymentID:      chi.URLParam(r, "paymentId"),
		AmountIncl:     amount,
		ProofOfPayment: body.OptionalString(aliasProofOfPayment...),
		Reference:      body.OptionalString(aliasReference...),
		ActorID:        actorID(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"payment": buildPaymentPayload(payment)})
}

func (h *PaymentHandlers) allocatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	body, err := decodeRequestBody(r)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	amount, err := body.Float(aliasAmountIncl...)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if amount == nil {
		httpx.WriteFailure(ctx, w, httpx.BadRequest("amount_incl is required"))
		return
	}

	payment, err := h.payments.Allocate(ctx, services.AllocatePaymentCommand{
		PaymentID:  chi.URLParam(r, "paymentId"),
		InvoiceID:  body.String(aliasInvoiceID...),
		AmountIncl: *amount,
		ActorID:    actorID(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, map[string]any{"payment": buildPaymentPayload(payment)})
}

func (h *PaymentHandlers) listAllocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.payments == nil {
		writeUnavailable(ctx, w, "payment")
		return
	}
	paymentID := strings.TrimSpace(chi.URLParam(r, "paymentId"))
	views, err := h.payments.LookupAllocations(ctx, paymentID)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"paymentId":   paymentID,
		"allocations": buildAllocationPayloads(views),
	})
}

func buildPaymentPayload(payment services.Payment) paymentPayload {
	allocations := payment.Allocations
	if allocations == nil {
		allocations = []services.PaymentAllocation{}
	}
	return paymentPayload{
		ID:                  payment.ID,
		Method:              string(payment.Method),
		AmountIncl:          payment.AmountIncl,
		RemainingAmountIncl: payment.RemainingAmountIncl,
		Status:              string(payment.Status),
		Currency:            payment.Currency,
		ProofOfPayment:      payment.ProofOfPayment,
		CompanyID:           payment.CompanyID,
		CustomerID:          payment.CustomerID,
		Reference:           payment.Reference,
		Allocations:         allocations,
		CreatedBy:           payment.CreatedBy,
		CreatedAt:           formatTime(payment.CreatedAt),
		UpdatedAt:           formatTime(payment.UpdatedAt),
	}
}

func buildAllocationPayloads(views []services.AllocationView) []allocationPayload {
	payload := make([]allocationPayload, 0, len(views))
	for _, view := range views {
		item := allocationPayload{
			AllocationID:  view.Allocation.ID,
			PaymentID:     view.Allocation.PaymentID,
			InvoiceID:     view.Allocation.InvoiceID,
			AmountIncl:    view.Allocation.AmountIncl,
			CreatedAt:     formatTime(view.Allocation.CreatedAt),
			InvoiceNumber: view.InvoiceNumber,
			InvoiceTotal:  view.InvoiceTotal,
			PDFURL:        view.PDFURL,
		}
		if view.InvoiceDate != nil {
			date := formatTime(*view.InvoiceDate)
			item.InvoiceDate = &date
		}
		payload = append(payload, item)
	}
	return payload
}
