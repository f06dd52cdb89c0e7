package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/trademate/api/internal/domain"
	"github.com/trademate/api/internal/repositories"
)

const reclaimJobName = "cart_reclaim"

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartStockRequired      = errors.New("cart service: stock reservation service is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartNotFound indicates the requested cart does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartItemNotFound indicates the cart has no line with the requested id.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// ErrCartStockUnavailable indicates the stock reservation service rejected or failed a call.
var ErrCartStockUnavailable = errors.New("cart service: stock reservation failed")

// ErrCartUnavailable indicates the cart store failed.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// CartServiceDeps wires the collaborators for cart operations.
type CartServiceDeps struct {
	Carts          repositories.CartRepository
	AbandonedCarts repositories.AbandonedCartRepository
	Stock          StockReservationService
	Metrics        JobMetrics
	Clock          func() time.Time
	IDGenerator    func() string
	Logger         func(context.Context, string, map[string]any)
}

type cartService struct {
	carts     repositories.CartRepository
	abandoned repositories.AbandonedCartRepository
	stock     StockReservationService
	metrics   JobMetrics
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Stock == nil {
		return nil, errCartStockRequired
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
	return &cartService{
		carts:     deps.Carts,
		abandoned: deps.AbandonedCarts,
		stock:     deps.Stock,
		metrics:   deps.Metrics,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
		logger:    logger,
	}, nil
}

// GetCart returns the user's cart, or an empty cart when none exists yet.
func (s *cartService) GetCart(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Cart{UserID: userID, Items: []CartItem{}}, nil
		}
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

// AddItem reserves the requested quantity and then appends the line, merging into an existing line
// for the same product variant.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	uniqueID := strings.TrimSpace(cmd.UniqueID)
	variantID := strings.TrimSpace(cmd.VariantID)
	switch {
	case userID == "":
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	case uniqueID == "":
		return Cart{}, fmt.Errorf("%w: unique_id is required", ErrCartInvalidInput)
	case cmd.Qty <= 0:
		return Cart{}, fmt.Errorf("%w: qty must be positive", ErrCartInvalidInput)
	case cmd.Price < 0:
		return Cart{}, fmt.Errorf("%w: price must not be negative", ErrCartInvalidInput)
	}

	now := s.now()
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if !isRepoNotFound(err) {
			return Cart{}, s.translateRepoError(err)
		}
		cart = Cart{UserID: userID, CreatedAt: now}
	}

	line := StockLine{UniqueID: uniqueID, VariantID: variantID, Qty: cmd.Qty}
	if err := s.stock.Reserve(ctx, line); err != nil {
		return Cart{}, fmt.Errorf("%w: %w", ErrCartStockUnavailable, err)
	}

	if idx := indexOfVariant(cart.Items, uniqueID, variantID); idx >= 0 {
		item := &cart.Items[idx]
		item.SaleQty += cmd.Qty
		item.Price = cmd.Price
		if name := strings.TrimSpace(cmd.Name); name != "" {
			item.Name = name
		}
		if cmd.Inventory != nil {
			item.Inventory = append([]InventoryRecord(nil), cmd.Inventory...)
		}
	} else {
		cart.Items = append(cart.Items, CartItem{
			ItemID:    s.newID(),
			UniqueID:  uniqueID,
			VariantID: variantID,
			Name:      strings.TrimSpace(cmd.Name),
			SaleQty:   cmd.Qty,
			Price:     cmd.Price,
			Inventory: append([]InventoryRecord(nil), cmd.Inventory...),
		})
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = now
	}
	cart.UpdatedAt = now

	if err := s.carts.Save(ctx, cart); err != nil {
		if releaseErr := s.stock.Release(ctx, line); releaseErr != nil {
			s.logger(ctx, "cart.reservation.rollback.failed", map[string]any{
				"userId":   userID,
				"uniqueId": uniqueID,
				"qty":      cmd.Qty,
				"error":    releaseErr.Error(),
			})
		}
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

// RemoveItem releases the line's reserved quantity before removing it. A failed release leaves the
// cart untouched.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	userID := strings.TrimSpace(cmd.UserID)
	itemID := strings.TrimSpace(cmd.ItemID)
	if userID == "" || itemID == "" {
		return Cart{}, fmt.Errorf("%w: user id and item id are required", ErrCartInvalidInput)
	}

	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	idx := indexOfCartItem(cart.Items, itemID)
	if idx < 0 {
		return Cart{}, fmt.Errorf("%w: %s", ErrCartItemNotFound, itemID)
	}

	item := cart.Items[idx]
	if item.SaleQty > 0 {
		if err := s.stock.Release(ctx, stockLineFor(item)); err != nil {
			return Cart{}, fmt.Errorf("%w: %w", ErrCartStockUnavailable, err)
		}
	}

	cart.Items = append(cart.Items[:idx:idx], cart.Items[idx+1:]...)
	cart.UpdatedAt = s.now()
	if err := s.carts.Save(ctx, cart); err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return cart, nil
}

// DeleteCart releases every reserved line and then deletes the cart.
func (s *cartService) DeleteCart(ctx context.Context, userID string) (*Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, nil
		}
		return nil, s.translateRepoError(err)
	}

	deleted := cloneCart(cart)
	if err := s.releaseAll(ctx, &cart); err != nil {
		return nil, err
	}
	if err := s.carts.Delete(ctx, userID); err != nil && !isRepoNotFound(err) {
		return nil, s.translateRepoError(err)
	}
	return &deleted, nil
}

// ReclaimStaleCarts archives and deletes carts older than the staleness window. Each cart is handled
// independently; failures are collected rather than aborting the run.
func (s *cartService) ReclaimStaleCarts(ctx context.Context) (ReclaimResult, error) {
	started := s.now()
	cutoff := started.Add(-domain.CartStalenessWindow)

	carts, err := s.carts.ListCreatedBefore(ctx, cutoff)
	if err != nil {
		return ReclaimResult{}, s.translateRepoError(err)
	}

	result := ReclaimResult{Reclaimed: []string{}, Failed: []ReclaimFailure{}}
	for i := range carts {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		cart := carts[i]
		if err := s.reclaimOne(ctx, cart, started); err != nil {
			s.logger(ctx, "cart.reclaim.failed", map[string]any{
				"userId": cart.UserID,
				"error":  err.Error(),
			})
			result.Failed = append(result.Failed, ReclaimFailure{UserID: cart.UserID, Error: err.Error()})
			continue
		}
		result.Reclaimed = append(result.Reclaimed, cart.UserID)
	}

	if s.metrics != nil {
		s.metrics.ObserveRun(reclaimJobName, s.now().Sub(started), len(result.Reclaimed), len(result.Failed))
	}
	s.logger(ctx, "cart.reclaim.completed", map[string]any{
		"scanned":   len(carts),
		"reclaimed": len(result.Reclaimed),
		"failed":    len(result.Failed),
	})
	return result, nil
}

func (s *cartService) reclaimOne(ctx context.Context, cart Cart, now time.Time) error {
	if s.abandoned == nil {
		return errors.New("abandoned cart store is not configured")
	}
	snapshot := cloneCart(cart)
	if err := s.releaseAll(ctx, &cart); err != nil {
		return err
	}
	archive := domain.AbandonedCart{
		ID:          cart.UserID + "_" + strconv.FormatInt(now.Unix(), 10),
		Cart:        snapshot,
		ReclaimedAt: now,
	}
	if err := s.abandoned.Insert(ctx, archive); err != nil {
		return fmt.Errorf("archive cart: %w", err)
	}
	if err := s.carts.Delete(ctx, cart.UserID); err != nil && !isRepoNotFound(err) {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// releaseAll releases every positive line in order, zeroing each as it succeeds. When a release
// fails after earlier lines were released the partially released cart is saved so a retry does not
// release those lines twice.
func (s *cartService) releaseAll(ctx context.Context, cart *Cart) error {
	released := 0
	for i := range cart.Items {
		item := &cart.Items[i]
		if item.SaleQty <= 0 {
			continue
		}
		if err := s.stock.Release(ctx, stockLineFor(*item)); err != nil {
			if released > 0 {
				cart.UpdatedAt = s.now()
				if saveErr := s.carts.Save(ctx, *cart); saveErr != nil {
					s.logger(ctx, "cart.release.checkpoint.failed", map[string]any{
						"userId": cart.UserID,
						"error":  saveErr.Error(),
					})
				}
			}
			return fmt.Errorf("%w: %w", ErrCartStockUnavailable, err)
		}
		item.SaleQty = 0
		released++
	}
	return nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrCartNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCartUnavailable, err)
}

func cloneCart(cart Cart) Cart {
	clone := cart
	clone.Items = append([]CartItem(nil), cart.Items...)
	return clone
}

func stockLineFor(item CartItem) StockLine {
	return StockLine{UniqueID: item.UniqueID, VariantID: item.VariantID, Qty: item.SaleQty}
}

func indexOfCartItem(items []CartItem, itemID string) int {
	for i, item := range items {
		if item.ItemID == itemID {
			return i
		}
	}
	return -1
}

func indexOfVariant(items []CartItem, uniqueID, variantID string) int {
	for i, item := range items {
		if item.UniqueID == uniqueID && item.VariantID == variantID {
			return i
		}
	}
	return -1
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
