package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/trademate/api/internal/domain"
	pfirestore "github.com/trademate/api/internal/platform/firestore"
)

const orderCollection = "orders"

type orderStatusDocument struct {
	Order string `firestore:"order"`
}

type orderHeaderDocument struct {
	Status                orderStatusDocument `firestore:"status"`
	Editable              bool                `firestore:"editable"`
	EditableReason        string              `firestore:"editable_reason,omitempty"`
	OrderNumber           string              `firestore:"orderNumber"`
	CustomerID            string              `firestore:"customerId,omitempty"`
	CompanyID             string              `firestore:"companyId,omitempty"`
	MerchantTransactionID string              `firestore:"merchantTransactionId,omitempty"`
	CancelReason          string              `firestore:"cancel_reason,omitempty"`
}

type orderItemDocument struct {
	UniqueID          string  `firestore:"unique_id"`
	VariantID         string  `firestore:"variant_id,omitempty"`
	Name              string  `firestore:"name,omitempty"`
	Qty               int64   `firestore:"qty"`
	UnitPriceExcl     float64 `firestore:"unit_price_excl"`
	Returnable        bool    `firestore:"returnable,omitempty"`
	ReturnableDeposit float64 `firestore:"returnable_deposit_incl,omitempty"`
	ReturnedQty       int64   `firestore:"returned_qty,omitempty"`
}

type orderTotalsDocument struct {
	SubtotalExcl        float64 `firestore:"subtotal_excl"`
	DeliveryFeeExcl     float64 `firestore:"delivery_fee_excl"`
	VAT                 float64 `firestore:"vat"`
	SubtotalIncl        float64 `firestore:"subtotal_incl"`
	ReturnableDeduction float64 `firestore:"returnable_deduction"`
	CardFee             float64 `firestore:"card_fee"`
	FinalTotal          float64 `firestore:"final_total"`
}

type orderInvoiceDocument struct {
	InvoiceID     string    `firestore:"invoiceId"`
	InvoiceNumber string    `firestore:"invoiceNumber"`
	IssuedAt      time.Time `firestore:"issuedAt"`
}

type orderPaymentDocument struct {
	Status string `firestore:"status"`
	Method string `firestore:"method,omitempty"`
}

type orderTimestampsDocument struct {
	CreatedAt time.Time  `firestore:"createdAt"`
	UpdatedAt time.Time  `firestore:"updatedAt"`
	LockedAt  *time.Time `firestore:"lockedAt"`
}

type orderDocument struct {
	Order            orderHeaderDocument     `firestore:"order"`
	UserID           string                  `firestore:"uid,omitempty"`
	Items            []orderItemDocument     `firestore:"items"`
	Totals           orderTotalsDocument     `firestore:"totals"`
	CustomerSnapshot map[string]any          `firestore:"customer_snapshot"`
	Delivery         map[string]any          `firestore:"delivery"`
	Invoice          *orderInvoiceDocument   `firestore:"invoice"`
	Payment          orderPaymentDocument    `firestore:"payment"`
	Timestamps       orderTimestampsDocument `firestore:"timestamps"`
}

// OrderRepository reads and updates orders created upstream.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{base: pfirestore.NewBaseRepository[orderDocument](provider, orderCollection)}, nil
}

// FindByID loads an order by document id.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return orderFromDocument(doc.ID, doc.Data), nil
}

// FindByNumber returns every order carrying orderNumber.
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) ([]domain.Order, error) {
	return r.findBy(ctx, "order.orderNumber", orderNumber)
}

// FindByMerchantTransactionID returns every order carrying the gateway transaction id.
func (r *OrderRepository) FindByMerchantTransactionID(ctx context.Context, merchantTransactionID string) ([]domain.Order, error) {
	return r.findBy(ctx, "order.merchantTransactionId", merchantTransactionID)
}

func (r *OrderRepository) findBy(ctx context.Context, path, value string) ([]domain.Order, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(path, "==", value).Limit(2)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, orderFromDocument(doc.ID, doc.Data))
	}
	return orders, nil
}

// Update writes the lifecycle-owned fields of order. Items, totals and other upstream fields are not
// written.
func (r *OrderRepository) Update(ctx context.Context, order domain.Order) error {
	return r.base.Update(ctx, strings.TrimSpace(order.ID), orderLifecycleUpdates(order))
}

// UpdateItems writes the items and totals of order together with its update time.
func (r *OrderRepository) UpdateItems(ctx context.Context, order domain.Order) error {
	return r.base.Update(ctx, strings.TrimSpace(order.ID), orderItemUpdates(order))
}

// Delete removes the order document.
func (r *OrderRepository) Delete(ctx context.Context, orderID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(orderID))
}

func orderLifecycleUpdates(order domain.Order) []firestore.Update {
	updates := []firestore.Update{
		{Path: "order.status.order", Value: string(order.Status)},
		{Path: "order.editable", Value: order.Editable},
		{Path: "order.editable_reason", Value: order.EditableReason},
		{Path: "timestamps.updatedAt", Value: order.UpdatedAt.UTC()},
	}
	if order.CancelReason != "" {
		updates = append(updates, firestore.Update{Path: "order.cancel_reason", Value: order.CancelReason})
	}
	if order.Payment.Status != "" {
		updates = append(updates, firestore.Update{Path: "payment.status", Value: order.Payment.Status})
	}
	if order.Payment.Method != "" {
		updates = append(updates, firestore.Update{Path: "payment.method", Value: string(order.Payment.Method)})
	}
	if order.Invoice != nil {
		updates = append(updates, firestore.Update{Path: "invoice", Value: orderInvoiceDocument{
			InvoiceID:     order.Invoice.InvoiceID,
			InvoiceNumber: order.Invoice.InvoiceNumber,
			IssuedAt:      order.Invoice.IssuedAt.UTC(),
		}})
	}
	if order.LockedAt != nil {
		updates = append(updates, firestore.Update{Path: "timestamps.lockedAt", Value: order.LockedAt.UTC()})
	}
	return updates
}

func orderItemUpdates(order domain.Order) []firestore.Update {
	return []firestore.Update{
		{Path: "items", Value: orderItemsToDocument(order.Items)},
		{Path: "totals", Value: orderTotalsDocument(order.Totals)},
		{Path: "timestamps.updatedAt", Value: order.UpdatedAt.UTC()},
	}
}

func orderFromDocument(id string, doc orderDocument) domain.Order {
	order := domain.Order{
		ID:                    id,
		Number:                doc.Order.OrderNumber,
		MerchantTransactionID: doc.Order.MerchantTransactionID,
		Status:                domain.OrderStatus(strings.ToLower(doc.Order.Status.Order)),
		Editable:              doc.Order.Editable,
		EditableReason:        doc.Order.EditableReason,
		CustomerID:            doc.Order.CustomerID,
		CompanyID:             doc.Order.CompanyID,
		CancelReason:          doc.Order.CancelReason,
		UserID:                doc.UserID,
		Totals:                domain.OrderTotals(doc.Totals),
		CustomerSnapshot:      doc.CustomerSnapshot,
		Delivery:              doc.Delivery,
		Payment:               domain.OrderPayment{Status: doc.Payment.Status, Method: domain.PaymentMethod(doc.Payment.Method)},
		CreatedAt:             doc.Timestamps.CreatedAt,
		UpdatedAt:             doc.Timestamps.UpdatedAt,
		LockedAt:              doc.Timestamps.LockedAt,
	}
	order.Items = orderItemsFromDocument(doc.Items)
	if doc.Invoice != nil && doc.Invoice.InvoiceID != "" {
		order.Invoice = &domain.OrderInvoiceRef{
			InvoiceID:     doc.Invoice.InvoiceID,
			InvoiceNumber: doc.Invoice.InvoiceNumber,
			IssuedAt:      doc.Invoice.IssuedAt,
		}
	}
	return order
}

func orderItemsFromDocument(items []orderItemDocument) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.OrderItem{
			UniqueID:          item.UniqueID,
			VariantID:         item.VariantID,
			Name:              item.Name,
			Qty:               int(item.Qty),
			UnitPriceExcl:     item.UnitPriceExcl,
			Returnable:        item.Returnable,
			ReturnableDeposit: item.ReturnableDeposit,
			ReturnedQty:       int(item.ReturnedQty),
		})
	}
	return out
}

func orderItemsToDocument(items []domain.OrderItem) []orderItemDocument {
	out := make([]orderItemDocument, 0, len(items))
	for _, item := range items {
		out = append(out, orderItemDocument{
			UniqueID:          item.UniqueID,
			VariantID:         item.VariantID,
			Name:              item.Name,
			Qty:               int64(item.Qty),
			UnitPriceExcl:     item.UnitPriceExcl,
			Returnable:        item.Returnable,
			ReturnableDeposit: item.ReturnableDeposit,
			ReturnedQty:       int64(item.ReturnedQty),
		})
	}
	return out
}
