package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trademate/api/internal/platform/auth"
	"github.com/trademate/api/internal/platform/httpx"
	"github.com/trademate/api/internal/services"
)

const reportDateLayout = "2006-01-02"

type expenseGroupPayload struct {
	Category    string  `json:"category"`
	AccountCode string  `json:"accountCode,omitempty"`
	Total       float64 `json:"total"`
	Count       int     `json:"count"`
}

// CreditHandlers exposes the credit check to users and staff.
type CreditHandlers struct {
	authn  *auth.Authenticator
	credit services.CreditService
}

// NewCreditHandlers constructs the /credit handlers.
func NewCreditHandlers(authn *auth.Authenticator, credit services.CreditService) *CreditHandlers {
	return &CreditHandlers{authn: authn, credit: credit}
}

// Routes registers the /credit endpoints.
func (h *CreditHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/check", h.checkCredit)
}

// checkCredit evaluates a proposed cart value. Users are always checked against their own account;
// staff may name any uid, customer or company.
func (h *CreditHandlers) checkCredit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.credit == nil {
		writeUnavailable(ctx, w, "credit")
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
	cartValue, err := body.Float(aliasCartValue...)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if cartValue == nil {
		httpx.WriteFailure(ctx, w, httpx.BadRequest("cartValue is required"))
		return
	}

	cmd := services.CreditCheckCommand{UserID: identity.UID, CartValue: *cartValue}
	if identity.IsStaff() {
		cmd.UserID = body.String(aliasUID...)
		cmd.CustomerID = body.String(aliasCustomerID...)
		cmd.CompanyID = body.String(aliasCompanyID...)
		if cmd.UserID == "" && cmd.CustomerID == "" && cmd.CompanyID == "" {
			cmd.UserID = identity.UID
		}
	}

	result, err := h.credit.Check(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	data := map[string]any{
		"companyId":       result.CompanyID,
		"creditLimit":     result.CreditLimit,
		"outstanding":     result.Outstanding,
		"remainingCredit": result.RemainingCredit,
		"cartValue":       result.CartValue,
		"canCheckout":     result.CanCheckout,
		"pendingInvoices": result.PendingInvoices,
	}
	if !result.CanCheckout {
		data["overBy"] = result.OverBy
	}
	httpx.WriteSuccess(w, http.StatusOK, data)
}

// ReportHandlers exposes staff accounting reports.
type ReportHandlers struct {
	authn   *auth.Authenticator
	reports services.ReportService
}

// NewReportHandlers constructs the /reports handlers.
func NewReportHandlers(authn *auth.Authenticator, reports services.ReportService) *ReportHandlers {
	return &ReportHandlers{authn: authn, reports: reports}
}

// Routes registers the /reports endpoints.
func (h *ReportHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/pnl", h.profitAndLoss)
}

func (h *ReportHandlers) profitAndLoss(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reports == nil {
		writeUnavailable(ctx, w, "report")
		return
	}

	from, err := parseReportDate(queryValue(r, "from", "startDate", "start_date"), false)
	if err != nil {
		httpx.WriteFailure(ctx, w, httpx.BadRequest(fmt.Sprintf("from: %v", err)))
		return
	}
	to, err := parseReportDate(queryValue(r, "to", "endDate", "end_date"), true)
	if err != nil {
		httpx.WriteFailure(ctx, w, httpx.BadRequest(fmt.Sprintf("to: %v", err)))
		return
	}

	report, err := h.reports.ProfitAndLoss(ctx, services.ProfitAndLossFilter{
		CompanyID: queryValue(r, aliasCompanyID...),
		From:      from,
		To:        to,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	groups := make([]expenseGroupPayload, 0, len(report.ExpenseGroups))
	for _, g := range report.ExpenseGroups {
		groups = append(groups, expenseGroupPayload{Category: g.Category, AccountCode: g.AccountCode, Total: g.Total, Count: g.Count})
	}
	data := map[string]any{
		"companyId":     report.CompanyID,
		"income":        report.Income,
		"invoiceCount":  report.InvoiceCount,
		"expenses":      report.Expenses,
		"expenseGroups": groups,
		"net":           report.Net,
		"from":          nil,
		"to":            nil,
	}
	if report.From != nil {
		data["from"] = formatTime(*report.From)
	}
	if report.To != nil {
		data["to"] = formatTime(*report.To)
	}
	httpx.WriteSuccess(w, http.StatusOK, data)
}

// parseReportDate accepts RFC 3339 timestamps or plain dates. A plain end date covers the whole day.
func parseReportDate(value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(reportDateLayout, value)
	if err != nil {
		return nil, errors.New("must be YYYY-MM-DD or RFC 3339")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
