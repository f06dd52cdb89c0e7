package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/trademate/api/internal/domain"
	pfirestore "github.com/trademate/api/internal/platform/firestore"
)

const expenseCollection = "expenses"

type expenseDocument struct {
	Amount      float64   `firestore:"amount"`
	Category    string    `firestore:"category"`
	AccountCode string    `firestore:"account_code"`
	Description string    `firestore:"description,omitempty"`
	Date        time.Time `firestore:"date"`
}

// ExpenseRepository reads expense lines.
type ExpenseRepository struct {
	base *pfirestore.BaseRepository[expenseDocument]
}

// NewExpenseRepository constructs a Firestore-backed expense repository.
func NewExpenseRepository(provider *pfirestore.Provider) (*ExpenseRepository, error) {
	if provider == nil {
		return nil, errors.New("expense repository requires firestore provider")
	}
	return &ExpenseRepository{base: pfirestore.NewBaseRepository[expenseDocument](provider, expenseCollection)}, nil
}

// List returns expenses dated within [from, to]. Nil bounds are open.
func (r *ExpenseRepository) List(ctx context.Context, from, to *time.Time) ([]domain.Expense, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if from != nil {
			q = q.Where("date", ">=", from.UTC())
		}
		if to != nil {
			q = q.Where("date", "<=", to.UTC())
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Expense, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.Expense{
			ID:          doc.ID,
			Amount:      doc.Data.Amount,
			Category:    doc.Data.Category,
			AccountCode: doc.Data.AccountCode,
			Description: doc.Data.Description,
			Date:        doc.Data.Date,
		})
	}
	return out, nil
}
