package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/trademate/api/internal/domain"
	"github.com/trademate/api/internal/platform/auth"
	"github.com/trademate/api/internal/platform/httpx"
	"github.com/trademate/api/internal/services"
)

type orderPayload struct {
	ID                    string                  `json:"id"`
	OrderNumber           string                  `json:"orderNumber"`
	MerchantTransactionID string                  `json:"merchantTransactionId,omitempty"`
	Status                string                  `json:"status"`
	Editable              bool                    `json:"editable"`
	EditableReason        string                  `json:"editableReason,omitempty"`
	CustomerID            string                  `json:"customerId,omitempty"`
	CompanyID             string                  `json:"companyId,omitempty"`
	UserID                string                  `json:"userId,omitempty"`
	Items                 []services.OrderItem    `json:"items"`
	Totals                services.OrderTotals    `json:"totals"`
	CustomerSnapshot      map[string]any          `json:"customerSnapshot,omitempty"`
	Delivery              map[string]any          `json:"delivery,omitempty"`
	Invoice               *domain.OrderInvoiceRef `json:"invoice,omitempty"`
	Payment               domain.OrderPayment     `json:"payment"`
	CancelReason          string                  `json:"cancelReason,omitempty"`
	CreatedAt             string                  `json:"createdAt,omitempty"`
	UpdatedAt             string                  `json:"updatedAt,omitempty"`
	LockedAt              string                  `json:"lockedAt,omitempty"`
}

type invoicePayload struct {
	ID          string               `json:"id"`
	Number      string               `json:"invoiceNumber"`
	OrderID     string               `json:"orderId"`
	OrderNumber string               `json:"orderNumber"`
	CompanyID   string               `json:"companyId,omitempty"`
	CustomerID  string               `json:"customerId,omitempty"`
	Status      string               `json:"status"`
	FinalTotal  float64              `json:"finalTotal"`
	Items       []services.OrderItem `json:"items"`
	Totals      services.OrderTotals `json:"totals"`
	PDFPath     string               `json:"pdfPath,omitempty"`
	IssuedAt    string               `json:"issuedAt"`
}

type gatewayPaymentPayload struct {
	Reference string  `json:"reference,omitempty"`
	Paid      bool    `json:"paid"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency,omitempty"`
}

// OrderHandlers exposes staff order lifecycle endpoints. Every operation addresses the order through
// an orderId, orderNumber or merchantTransactionId in the body.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Post("/resolve", h.resolveOrder)
	r.Post("/status", h.updateStatus)
	r.Post("/cancel", h.cancelOrder)
	r.Post("/delete", h.deleteOrder)
	r.Post("/invoice", h.issueInvoice)
	r.Post("/items", h.updateItems)
	r.Post("/final-total", h.finalTotal)
	r.Post("/payment-sync", h.syncPayment)
}

func (h *OrderHandlers) resolveOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.begin(w, r)
	if !ok {
		return
	}
	order, err := h.orders.Resolve(ctx, orderReference(body))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.begin(w, r)
	if !ok {
		return
	}
	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		Ref:     orderReference(body),
		Status:  body.String("status"),
		Reason:  body.String("reason", "editableReason"),
		ActorID: actorID(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.begin(w, r)
	if !ok {
		return
	}
	result, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		Ref:     orderReference(body),
		Reason:  body.String("reason", "cancelReason"),
		ActorID: actorID(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"order":            buildOrderPayload(result.Order),
		"alreadyCancelled": result.AlreadyCancelled,
	})
}

func (h *OrderHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.begin(w, r)
	if !ok {
		return
	}
	order, err := h.orders.Delete(ctx, services.DeleteOrderCommand{
		Ref:     orderReference(body),
		Force:   body.Bool("force"),
		ActorID: actorID(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"deleted":     true,
		"orderId":     order.ID,
		"orderNumber": order.Number,
	})
}

func (h *OrderHandlers) issueInvoice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.begin(w, r)
	if !ok {
		return
	}
	result, err := h.orders.IssueInvoice(ctx, services.IssueInvoiceCommand{
		Ref:     orderReference(body),
		ActorID: actorID(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	status := http.StatusCreated
	if result.Existing {
		status = http.StatusOK
	}
	httpx.WriteSuccess(w, status, map[string]any{
		"invoice":  buildInvoicePayload(result.Invoice),
		"order":    buildOrderPayload(result.Order),
		"existing": result.Existing,
	})
}

func (h *OrderHandlers) updateItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.begin(w, r)
	if !ok {
		return
	}
	var items []services.OrderItem
	found, err := body.Decode(&items, "items")
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	if !found {
		httpx.WriteFailure(ctx, w, httpx.BadRequest("items is required"))
		return
	}
	deliveryFee, err := body.Float("deliveryFeeExcl", "delivery_fee_excl")
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	order, err := h.orders.UpdateItems(ctx, services.UpdateOrderItemsCommand{
		Ref:             orderReference(body),
		Items:           items,
		DeliveryFeeExcl: deliveryFee,
		ActorID:         actorID(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"order": buildOrderPayload(order)})
}

func (h *OrderHandlers) finalTotal(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.begin(w, r)
	if !ok {
		return
	}
	breakdown, err := h.orders.FinalTotal(ctx, orderReference(body))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"breakdown": breakdown})
}

func (h *OrderHandlers) syncPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, ok := h.begin(w, r)
	if !ok {
		return
	}
	result, err := h.orders.SyncPayment(ctx, services.SyncOrderPaymentCommand{
		Ref:     orderReference(body),
		ActorID: actorID(r),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"order":   buildOrderPayload(result.Order),
		"gateway": buildGatewayPaymentPayload(result.Gateway),
		"updated": result.Updated,
	})
}

// begin checks the service and decodes the aliased body shared by every order endpoint.
func (h *OrderHandlers) begin(w http.ResponseWriter, r *http.Request) (requestBody, bool) {
	ctx := r.Context()
	if h.orders == nil {
		writeUnavailable(ctx, w, "order")
		return nil, false
	}
	body, err := decodeRequestBody(r)
	if err != nil {
		writeServiceError(ctx, w, err)
		return nil, false
	}
	return body, true
}

func orderReference(body requestBody) services.OrderReference {
	return services.OrderReference{
		ID:                    body.String(aliasOrderID...),
		Number:                body.String(aliasOrderNumber...),
		MerchantTransactionID: body.String(aliasMerchantTransactionID...),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	items := order.Items
	if items == nil {
		items = []services.OrderItem{}
	}
	payload := orderPayload{
		ID:                    order.ID,
		OrderNumber:           order.Number,
		MerchantTransactionID: order.MerchantTransactionID,
		Status:                string(order.Status),
		Editable:              order.Editable,
		EditableReason:        order.EditableReason,
		CustomerID:            order.CustomerID,
		CompanyID:             order.CompanyID,
		UserID:                order.UserID,
		Items:                 items,
		Totals:                order.Totals,
		CustomerSnapshot:      order.CustomerSnapshot,
		Delivery:              order.Delivery,
		Invoice:               order.Invoice,
		Payment:               order.Payment,
		CancelReason:          order.CancelReason,
		CreatedAt:             formatTime(order.CreatedAt),
		UpdatedAt:             formatTime(order.UpdatedAt),
	}
	if order.LockedAt != nil {
		payload.LockedAt = formatTime(*order.LockedAt)
	}
	return payload
}

func buildInvoicePayload(invoice services.Invoice) invoicePayload {
	items := invoice.Items
	if items == nil {
		items = []services.OrderItem{}
	}
	return invoicePayload{
		ID:          invoice.ID,
		Number:      invoice.Number,
		OrderID:     invoice.OrderID,
		OrderNumber: invoice.OrderNumber,
		CompanyID:   invoice.CompanyID,
		CustomerID:  invoice.CustomerID,
		Status:      string(invoice.Status),
		FinalTotal:  invoice.FinalTotal,
		Items:       items,
		Totals:      invoice.Totals,
		PDFPath:     invoice.PDFPath,
		IssuedAt:    formatTime(invoice.IssuedAt),
	}
}

func buildGatewayPaymentPayload(p services.GatewayPayment) gatewayPaymentPayload {
	return gatewayPaymentPayload{
		Reference: p.Reference,
		Paid:      p.Paid,
		Status:    p.Status,
		Amount:    p.Amount,
		Currency:  p.Currency,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
