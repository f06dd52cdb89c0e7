package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/trademate/api/internal/domain"
	"github.com/trademate/api/internal/platform/textutil"
	"github.com/trademate/api/internal/repositories"
)

const (
	orderEventStatusChanged = "order.status.changed"
	orderEventCancelled     = "order.cancelled"
	orderEventDeleted       = "order.deleted"
	orderEventInvoiceIssued = "order.invoice.issued"
	orderEventPaymentPaid   = "order.payment.paid"

	maxReasonLength = 500

	editableReasonInvoiced = "invoice issued"
)

var defaultLockReasons = map[domain.OrderStatus]string{
	domain.OrderStatusCompleted: "order completed",
	domain.OrderStatusCancelled: "order cancelled",
}

var (
	// ErrOrderInvalidInput indicates validation failures for order operations.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates no order matched the reference.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderAmbiguous indicates the reference matched more than one order.
	ErrOrderAmbiguous = errors.New("order: ambiguous reference")
	// ErrOrderConflict indicates the order state prevents the operation.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderNotEditable indicates the order is locked against item and total changes.
	ErrOrderNotEditable = errors.New("order: not editable")
	// ErrOrderUnavailable indicates a backing store or gateway failure.
	ErrOrderUnavailable = errors.New("order: unavailable")
)

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Invoices    repositories.InvoiceRepository
	Users       repositories.UserRepository
	Gateway     PaymentGateway
	Events      OrderEventPublisher
	Mailer      InvoiceMailer
	Push        PushNotifier
	Pricer      OrderPricer
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders   repositories.OrderRepository
	invoices repositories.InvoiceRepository
	users    repositories.UserRepository
	gateway  PaymentGateway
	events   OrderEventPublisher
	mailer   InvoiceMailer
	push     PushNotifier
	pricer   OrderPricer
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Invoices == nil {
		return nil, errors.New("order service: invoice repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	pricer := deps.Pricer
	if pricer.currency == "" {
		pricer.currency = "ZAR"
	}
	return &orderService{
		orders:   deps.Orders,
		invoices: deps.Invoices,
		users:    deps.Users,
		gateway:  deps.Gateway,
		events:   deps.Events,
		mailer:   deps.Mailer,
		push:     deps.Push,
		pricer:   pricer,
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

// Resolve looks an order up by id, else by order number, else by merchant transaction id. Lookups by
// number or transaction id must match exactly one order.
func (s *orderService) Resolve(ctx context.Context, ref OrderReference) (Order, error) {
	id := strings.TrimSpace(ref.ID)
	number := strings.TrimSpace(ref.Number)
	merchantTxID := strings.TrimSpace(ref.MerchantTransactionID)

	switch {
	case id != "":
		order, err := s.orders.FindByID(ctx, id)
		if err != nil {
			return Order{}, s.translateRepoError(err)
		}
		return order, nil
	case number != "":
		matches, err := s.orders.FindByNumber(ctx, number)
		if err != nil {
			return Order{}, s.translateRepoError(err)
		}
		return singleOrder(matches, "orderNumber", number)
	case merchantTxID != "":
		matches, err := s.orders.FindByMerchantTransactionID(ctx, merchantTxID)
		if err != nil {
			return Order{}, s.translateRepoError(err)
		}
		return singleOrder(matches, "merchantTransactionId", merchantTxID)
	}
	return Order{}, fmt.Errorf("%w: one of orderId, orderNumber or merchantTransactionId is required", ErrOrderInvalidInput)
}

// UpdateStatus sets any allowed status. Terminal statuses lock the order; the first lock time is kept.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	status, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return Order{}, fmt.Errorf("%w: status %q is not one of %s", ErrOrderInvalidInput, cmd.Status, allowedStatusList())
	}
	order, err := s.Resolve(ctx, cmd.Ref)
	if err != nil {
		return Order{}, err
	}

	now := s.now()
	previous := order.Status
	order.Status = status
	if status.IsTerminal() {
		s.lock(&order, textutil.CleanText(cmd.Reason, maxReasonLength), defaultLockReasons[status], now)
	}
	if status == domain.OrderStatusCancelled {
		order.CancelReason = firstNonEmpty(textutil.CleanText(cmd.Reason, maxReasonLength), order.CancelReason)
	}
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}

	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		PreviousStatus: string(previous),
		CurrentStatus:  string(status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
	})
	if status == domain.OrderStatusDispatched || status == domain.OrderStatusCompleted {
		s.notifyStatus(ctx, order)
	}
	return order, nil
}

// Cancel cancels a non-terminal order. Repeating the call on a cancelled order is a no-op reported
// through AlreadyCancelled.
func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (CancelOrderResult, error) {
	reason := textutil.CleanText(cmd.Reason, maxReasonLength)
	if reason == "" {
		return CancelOrderResult{}, fmt.Errorf("%w: reason is required", ErrOrderInvalidInput)
	}
	order, err := s.Resolve(ctx, cmd.Ref)
	if err != nil {
		return CancelOrderResult{}, err
	}
	switch order.Status {
	case domain.OrderStatusCancelled:
		return CancelOrderResult{Order: order, AlreadyCancelled: true}, nil
	case domain.OrderStatusCompleted:
		return CancelOrderResult{}, fmt.Errorf("%w: completed orders cannot be cancelled", ErrOrderConflict)
	}

	now := s.now()
	previous := order.Status
	order.Status = domain.OrderStatusCancelled
	order.CancelReason = reason
	s.lock(&order, reason, defaultLockReasons[domain.OrderStatusCancelled], now)
	order.UpdatedAt = now

	if err := s.orders.Update(ctx, order); err != nil {
		return CancelOrderResult{}, s.translateRepoError(err)
	}
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventCancelled,
		OrderID:        order.ID,
		OrderNumber:    order.Number,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.Status),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
		Metadata:       map[string]any{"reason": reason},
	})
	return CancelOrderResult{Order: order}, nil
}

// Delete removes an order. Paid orders require Force.
func (s *orderService) Delete(ctx context.Context, cmd DeleteOrderCommand) (Order, error) {
	order, err := s.Resolve(ctx, cmd.Ref)
	if err != nil {
		return Order{}, err
	}
	if strings.EqualFold(order.Payment.Status, domain.OrderPaymentStatusPaid) && !cmd.Force {
		return Order{}, fmt.Errorf("%w: order %s is paid; pass force to delete", ErrOrderConflict, order.ID)
	}
	if err := s.orders.Delete(ctx, order.ID); err != nil {
		return Order{}, s.translateRepoError(err)
	}
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventDeleted,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		CurrentStatus: string(order.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    s.now(),
		Metadata:      map[string]any{"forced": cmd.Force},
	})
	return order, nil
}

// IssueInvoice issues the order's invoice once. Later calls return the existing invoice without
// consuming an invoice number.
func (s *orderService) IssueInvoice(ctx context.Context, cmd IssueInvoiceCommand) (IssueInvoiceResult, error) {
	order, err := s.Resolve(ctx, cmd.Ref)
	if err != nil {
		return IssueInvoiceResult{}, err
	}
	if order.Invoice != nil && strings.TrimSpace(order.Invoice.InvoiceID) != "" {
		return IssueInvoiceResult{Invoice: s.existingInvoice(ctx, order), Order: order, Existing: true}, nil
	}
	if order.Status == domain.OrderStatusCancelled {
		return IssueInvoiceResult{}, fmt.Errorf("%w: cancelled orders cannot be invoiced", ErrOrderConflict)
	}

	now := s.now()
	var locked Order
	build := func(current domain.Order, sequence int64) (domain.Invoice, domain.Order, error) {
		invoice := domain.Invoice{
			ID:               s.newID(),
			Sequence:         sequence,
			Number:           formatInvoiceNumber(sequence),
			OrderID:          current.ID,
			OrderNumber:      current.Number,
			CompanyID:        current.CompanyID,
			CustomerID:       current.CustomerID,
			Status:           domain.InvoiceStatusPending,
			FinalTotal:       current.Totals.FinalTotal,
			Items:            append([]domain.OrderItem(nil), current.Items...),
			Totals:           current.Totals,
			CustomerSnapshot: maps.Clone(current.CustomerSnapshot),
			Delivery:         maps.Clone(current.Delivery),
			PDFPath:          invoicePDFPath(current.ID),
			IssuedAt:         now,
		}
		current.Invoice = &domain.OrderInvoiceRef{InvoiceID: invoice.ID, InvoiceNumber: invoice.Number, IssuedAt: now}
		s.lock(&current, editableReasonInvoiced, editableReasonInvoiced, now)
		current.UpdatedAt = now
		locked = current
		return invoice, current, nil
	}

	invoice, existing, err := s.invoices.Issue(ctx, order.ID, build)
	if err != nil {
		return IssueInvoiceResult{}, s.translateRepoError(err)
	}
	if existing {
		return IssueInvoiceResult{Invoice: invoice, Order: order, Existing: true}, nil
	}

	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventInvoiceIssued,
		OrderID:       locked.ID,
		OrderNumber:   locked.Number,
		CurrentStatus: string(locked.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
		Metadata:      map[string]any{"invoiceId": invoice.ID, "invoiceNumber": invoice.Number},
	})
	s.mailInvoice(ctx, locked, invoice)
	return IssueInvoiceResult{Invoice: invoice, Order: locked}, nil
}

// UpdateItems replaces the items of an editable order and recomputes its totals.
func (s *orderService) UpdateItems(ctx context.Context, cmd UpdateOrderItemsCommand) (Order, error) {
	if len(cmd.Items) == 0 {
		return Order{}, fmt.Errorf("%w: items are required", ErrOrderInvalidInput)
	}
	items := make([]OrderItem, 0, len(cmd.Items))
	for i, item := range cmd.Items {
		item.UniqueID = strings.TrimSpace(item.UniqueID)
		item.Name = textutil.CleanText(item.Name, 200)
		switch {
		case item.UniqueID == "":
			return Order{}, fmt.Errorf("%w: items[%d].unique_id is required", ErrOrderInvalidInput, i)
		case item.Qty <= 0:
			return Order{}, fmt.Errorf("%w: items[%d].qty must be positive", ErrOrderInvalidInput, i)
		case item.UnitPriceExcl < 0 || item.ReturnableDeposit < 0:
			return Order{}, fmt.Errorf("%w: items[%d] amounts must not be negative", ErrOrderInvalidInput, i)
		case item.ReturnedQty < 0 || item.ReturnedQty > item.Qty:
			return Order{}, fmt.Errorf("%w: items[%d].returned_qty must be between 0 and qty", ErrOrderInvalidInput, i)
		}
		items = append(items, item)
	}
	if cmd.DeliveryFeeExcl != nil && *cmd.DeliveryFeeExcl < 0 {
		return Order{}, fmt.Errorf("%w: delivery_fee_excl must not be negative", ErrOrderInvalidInput)
	}

	order, err := s.Resolve(ctx, cmd.Ref)
	if err != nil {
		return Order{}, err
	}
	if !order.Editable {
		reason := firstNonEmpty(order.EditableReason, "locked")
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotEditable, reason)
	}

	deliveryFee := order.Totals.DeliveryFeeExcl
	if cmd.DeliveryFeeExcl != nil {
		deliveryFee = *cmd.DeliveryFeeExcl
	}
	order.Items = items
	order.Totals = s.pricer.Totals(items, deliveryFee, order.Payment.Method)
	order.UpdatedAt = s.now()

	if err := s.orders.UpdateItems(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}
	return order, nil
}

// FinalTotal recomputes the order's final total without writing.
func (s *orderService) FinalTotal(ctx context.Context, ref OrderReference) (FinalTotalBreakdown, error) {
	order, err := s.Resolve(ctx, ref)
	if err != nil {
		return FinalTotalBreakdown{}, err
	}
	return s.pricer.Breakdown(order), nil
}

// SyncPayment marks the order paid when the gateway reports its merchant transaction as paid.
func (s *orderService) SyncPayment(ctx context.Context, cmd SyncOrderPaymentCommand) (SyncOrderPaymentResult, error) {
	if s.gateway == nil {
		return SyncOrderPaymentResult{}, fmt.Errorf("%w: payment gateway is not configured", ErrOrderUnavailable)
	}
	order, err := s.Resolve(ctx, cmd.Ref)
	if err != nil {
		return SyncOrderPaymentResult{}, err
	}
	merchantTxID := strings.TrimSpace(order.MerchantTransactionID)
	if merchantTxID == "" {
		return SyncOrderPaymentResult{}, fmt.Errorf("%w: order %s has no merchant transaction id", ErrOrderInvalidInput, order.ID)
	}

	gw, err := s.gateway.LookupPayment(ctx, merchantTxID)
	if err != nil {
		if errors.Is(err, ErrGatewayPaymentNotFound) {
			return SyncOrderPaymentResult{}, fmt.Errorf("%w: %w", ErrOrderNotFound, err)
		}
		return SyncOrderPaymentResult{}, fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
	}
	result := SyncOrderPaymentResult{Order: order, Gateway: gw}
	if !gw.Paid || strings.EqualFold(order.Payment.Status, domain.OrderPaymentStatusPaid) {
		return result, nil
	}

	now := s.now()
	order.Payment.Status = domain.OrderPaymentStatusPaid
	order.Payment.Method = domain.PaymentMethodCard
	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order); err != nil {
		return SyncOrderPaymentResult{}, s.translateRepoError(err)
	}
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPaymentPaid,
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		CurrentStatus: string(order.Status),
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
		Metadata:      map[string]any{"gatewayReference": gw.Reference},
	})
	result.Order = order
	result.Updated = true
	return result, nil
}

func (s *orderService) lock(order *Order, reason, fallback string, now time.Time) {
	order.Editable = false
	order.EditableReason = firstNonEmpty(reason, fallback)
	if order.LockedAt == nil {
		lockedAt := now
		order.LockedAt = &lockedAt
	}
}

func (s *orderService) existingInvoice(ctx context.Context, order Order) Invoice {
	ref := order.Invoice
	invoice, err := s.invoices.FindByID(ctx, ref.InvoiceID)
	if err != nil {
		if !isRepoNotFound(err) {
			s.logger(ctx, "order.invoice.lookup.failed", map[string]any{
				"orderId":   order.ID,
				"invoiceId": ref.InvoiceID,
				"error":     err.Error(),
			})
		}
		return Invoice{ID: ref.InvoiceID, Number: ref.InvoiceNumber, OrderID: order.ID, IssuedAt: ref.IssuedAt}
	}
	return invoice
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"eventType": event.Type,
			"orderId":   event.OrderID,
			"error":     err.Error(),
		})
	}
}

func (s *orderService) mailInvoice(ctx context.Context, order Order, invoice Invoice) {
	if s.mailer == nil {
		return
	}
	email := snapshotString(order.CustomerSnapshot, "email")
	name := snapshotString(order.CustomerSnapshot, "name")
	if email == "" && s.users != nil && order.UserID != "" {
		if user, err := s.users.FindByID(ctx, order.UserID); err == nil {
			email = user.Email
			name = firstNonEmpty(name, user.DisplayName)
		}
	}
	if email == "" {
		return
	}
	err := s.mailer.SendInvoiceIssued(ctx, InvoiceEmail{
		To:            email,
		CustomerName:  name,
		InvoiceNumber: invoice.Number,
		OrderNumber:   order.Number,
		Total:         invoice.FinalTotal,
		Currency:      s.pricer.Currency(),
	})
	if err != nil {
		s.logger(ctx, "notification.send.failed", map[string]any{
			"channel":   "email",
			"orderId":   order.ID,
			"invoiceId": invoice.ID,
			"error":     err.Error(),
		})
	}
}

func (s *orderService) notifyStatus(ctx context.Context, order Order) {
	if s.push == nil || s.users == nil || order.UserID == "" {
		return
	}
	user, err := s.users.FindByID(ctx, order.UserID)
	if err != nil || len(user.FCMTokens) == 0 {
		return
	}
	err = s.push.NotifyOrderStatus(ctx, OrderStatusPush{
		Tokens:      user.FCMTokens,
		OrderID:     order.ID,
		OrderNumber: order.Number,
		Status:      string(order.Status),
	})
	if err != nil {
		s.logger(ctx, "notification.send.failed", map[string]any{
			"channel": "push",
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %s", ErrOrderNotFound, repoErr.Error())
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %s", ErrOrderConflict, repoErr.Error())
		}
	}
	return fmt.Errorf("%w: %w", ErrOrderUnavailable, err)
}

func singleOrder(matches []Order, field, value string) (Order, error) {
	switch len(matches) {
	case 0:
		return Order{}, fmt.Errorf("%w: no order with %s %q", ErrOrderNotFound, field, value)
	case 1:
		return matches[0], nil
	}
	return Order{}, fmt.Errorf("%w: %d orders match %s %q", ErrOrderAmbiguous, len(matches), field, value)
}

func allowedStatusList() string {
	names := make([]string, 0, len(domain.OrderStatuses))
	for _, status := range domain.OrderStatuses {
		names = append(names, string(status))
	}
	return strings.Join(names, ", ")
}

func formatInvoiceNumber(sequence int64) string {
	return fmt.Sprintf("INV-%06d", sequence)
}

func invoicePDFPath(orderID string) string {
	return "invoices/" + orderID + ".pdf"
}

func snapshotString(values map[string]any, key string) string {
	if v, ok := values[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
