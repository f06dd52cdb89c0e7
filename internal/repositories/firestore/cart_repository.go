package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/trademate/api/internal/domain"
	pfirestore "github.com/trademate/api/internal/platform/firestore"
)

const (
	cartCollection          = "carts"
	abandonedCartCollection = "abandoned_carts"
)

type inventoryDocument struct {
	LocationID   string `firestore:"location_id"`
	QtyAvailable int64  `firestore:"qty_available"`
}

type cartItemDocument struct {
	ItemID    string              `firestore:"item_id"`
	UniqueID  string              `firestore:"unique_id"`
	VariantID string              `firestore:"variant_id"`
	Name      string              `firestore:"name,omitempty"`
	SaleQty   int64               `firestore:"sale_qty"`
	Price     float64             `firestore:"price"`
	Inventory []inventoryDocument `firestore:"inventory,omitempty"`
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"created_at"`
	UpdatedAt time.Time          `firestore:"updated_at"`
}

type abandonedCartDocument struct {
	UserID      string             `firestore:"uid"`
	Items       []cartItemDocument `firestore:"items"`
	CreatedAt   time.Time          `firestore:"created_at"`
	UpdatedAt   time.Time          `firestore:"updated_at"`
	ReclaimedAt time.Time          `firestore:"reclaimed_at"`
}

// CartRepository stores carts under the owning user's id.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)}, nil
}

// Get loads the cart for userID.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Cart{}, err
	}
	return cartFromDocument(doc.ID, doc.Data, doc.CreateTime), nil
}

// Save replaces the cart document.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	uid := strings.TrimSpace(cart.UserID)
	if uid == "" {
		return errors.New("cart repository: user id is required")
	}
	return r.base.Set(ctx, uid, cartDocument{
		Items:     cartItemsToDocument(cart.Items),
		CreatedAt: cart.CreatedAt.UTC(),
		UpdatedAt: cart.UpdatedAt.UTC(),
	})
}

// Delete removes the cart. Deleting a missing cart succeeds.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(userID))
}

// ListCreatedBefore returns carts whose created_at precedes cutoff.
func (r *CartRepository) ListCreatedBefore(ctx context.Context, cutoff time.Time) ([]domain.Cart, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("created_at", "<", cutoff.UTC())
	})
	if err != nil {
		return nil, err
	}
	carts := make([]domain.Cart, 0, len(docs))
	for _, doc := range docs {
		carts = append(carts, cartFromDocument(doc.ID, doc.Data, doc.CreateTime))
	}
	return carts, nil
}

// AbandonedCartRepository archives reclaimed carts.
type AbandonedCartRepository struct {
	base *pfirestore.BaseRepository[abandonedCartDocument]
}

// NewAbandonedCartRepository constructs the archive repository.
func NewAbandonedCartRepository(provider *pfirestore.Provider) (*AbandonedCartRepository, error) {
	if provider == nil {
		return nil, errors.New("abandoned cart repository requires firestore provider")
	}
	return &AbandonedCartRepository{base: pfirestore.NewBaseRepository[abandonedCartDocument](provider, abandonedCartCollection)}, nil
}

// Insert stores the archived copy. The id defaults to uid_unixseconds.
func (r *AbandonedCartRepository) Insert(ctx context.Context, cart domain.AbandonedCart) error {
	id := strings.TrimSpace(cart.ID)
	if id == "" {
		id = fmt.Sprintf("%s_%d", cart.Cart.UserID, cart.ReclaimedAt.Unix())
	}
	return r.base.Set(ctx, id, abandonedCartDocument{
		UserID:      cart.Cart.UserID,
		Items:       cartItemsToDocument(cart.Cart.Items),
		CreatedAt:   cart.Cart.CreatedAt.UTC(),
		UpdatedAt:   cart.Cart.UpdatedAt.UTC(),
		ReclaimedAt: cart.ReclaimedAt.UTC(),
	})
}

func cartFromDocument(id string, doc cartDocument, createTime time.Time) domain.Cart {
	cart := domain.Cart{
		UserID:    id,
		Items:     make([]domain.CartItem, 0, len(doc.Items)),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = createTime
	}
	for _, item := range doc.Items {
		converted := domain.CartItem{
			ItemID:    item.ItemID,
			UniqueID:  item.UniqueID,
			VariantID: item.VariantID,
			Name:      item.Name,
			SaleQty:   int(item.SaleQty),
			Price:     item.Price,
		}
		for _, inv := range item.Inventory {
			converted.Inventory = append(converted.Inventory, domain.InventoryRecord{
				LocationID:   inv.LocationID,
				QtyAvailable: int(inv.QtyAvailable),
			})
		}
		cart.Items = append(cart.Items, converted)
	}
	return cart
}

func cartItemsToDocument(items []domain.CartItem) []cartItemDocument {
	out := make([]cartItemDocument, 0, len(items))
	for _, item := range items {
		doc := cartItemDocument{
			ItemID:    item.ItemID,
			UniqueID:  item.UniqueID,
			VariantID: item.VariantID,
			Name:      item.Name,
			SaleQty:   int64(item.SaleQty),
			Price:     item.Price,
		}
		for _, inv := range item.Inventory {
			doc.Inventory = append(doc.Inventory, inventoryDocument{
				LocationID:   inv.LocationID,
				QtyAvailable: int64(inv.QtyAvailable),
			})
		}
		out = append(out, doc)
	}
	return out
}
