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

const (
	userCollection     = "users"
	customerCollection = "customers"
)

type deliveryLocationDocument struct {
	ID           string    `firestore:"id"`
	Label        string    `firestore:"label,omitempty"`
	Street       string    `firestore:"street"`
	Suburb       string    `firestore:"suburb,omitempty"`
	City         string    `firestore:"city"`
	PostalCode   string    `firestore:"postal_code,omitempty"`
	ContactName  string    `firestore:"contact_name,omitempty"`
	ContactPhone string    `firestore:"contact_phone,omitempty"`
	Instructions string    `firestore:"instructions,omitempty"`
	IsDefault    bool      `firestore:"is_default"`
	CreatedAt    time.Time `firestore:"created_at"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

type userDocument struct {
	Email             string                     `firestore:"email"`
	DisplayName       string                     `firestore:"display_name,omitempty"`
	CompanyID         string                     `firestore:"company_id,omitempty"`
	CustomerID        string                     `firestore:"customer_id,omitempty"`
	CreditLimit       *float64                   `firestore:"credit_limit"`
	FCMTokens         []string                   `firestore:"fcm_tokens,omitempty"`
	DeliveryLocations []deliveryLocationDocument `firestore:"delivery_locations,omitempty"`
}

type customerDocument struct {
	CompanyID   string   `firestore:"company_id"`
	Name        string   `firestore:"name,omitempty"`
	Email       string   `firestore:"email,omitempty"`
	CreditLimit *float64 `firestore:"credit_limit"`
}

// UserRepository reads user profiles and writes their delivery locations.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{base: pfirestore.NewBaseRepository[userDocument](provider, userCollection)}, nil
}

// FindByID loads the user profile by uid.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.User, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.User{}, err
	}
	user := domain.User{
		UID:         doc.ID,
		Email:       strings.TrimSpace(doc.Data.Email),
		DisplayName: doc.Data.DisplayName,
		CompanyID:   doc.Data.CompanyID,
		CustomerID:  doc.Data.CustomerID,
		CreditLimit: doc.Data.CreditLimit,
		FCMTokens:   doc.Data.FCMTokens,
	}
	for _, loc := range doc.Data.DeliveryLocations {
		user.DeliveryLocations = append(user.DeliveryLocations, domain.DeliveryLocation(loc))
	}
	return user, nil
}

// ReplaceDeliveryLocations writes the full delivery_locations array in one update.
func (r *UserRepository) ReplaceDeliveryLocations(ctx context.Context, userID string, locations []domain.DeliveryLocation) error {
	docs := make([]deliveryLocationDocument, 0, len(locations))
	for _, loc := range locations {
		docs = append(docs, deliveryLocationDocument(loc))
	}
	return r.base.Set(ctx, strings.TrimSpace(userID), userDocument{DeliveryLocations: docs},
		firestore.Merge([]string{"delivery_locations"}))
}

// CustomerRepository reads customer accounts.
type CustomerRepository struct {
	base *pfirestore.BaseRepository[customerDocument]
}

// NewCustomerRepository constructs a Firestore-backed customer repository.
func NewCustomerRepository(provider *pfirestore.Provider) (*CustomerRepository, error) {
	if provider == nil {
		return nil, errors.New("customer repository requires firestore provider")
	}
	return &CustomerRepository{base: pfirestore.NewBaseRepository[customerDocument](provider, customerCollection)}, nil
}

// FindByID loads one customer.
func (r *CustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(customerID))
	if err != nil {
		return domain.Customer{}, err
	}
	return customerFromDocument(doc.ID, doc.Data), nil
}

// FindByCompany returns the customers belonging to companyID.
func (r *CustomerRepository) FindByCompany(ctx context.Context, companyID string) ([]domain.Customer, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("company_id", "==", strings.TrimSpace(companyID))
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Customer, 0, len(docs))
	for _, doc := range docs {
		out = append(out, customerFromDocument(doc.ID, doc.Data))
	}
	return out, nil
}

func customerFromDocument(id string, doc customerDocument) domain.Customer {
	return domain.Customer{
		ID:          id,
		CompanyID:   doc.CompanyID,
		Name:        doc.Name,
		Email:       doc.Email,
		CreditLimit: doc.CreditLimit,
	}
}
