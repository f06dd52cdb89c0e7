package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/trademate/api/internal/domain"
	pfirestore "github.com/trademate/api/internal/platform/firestore"
	"github.com/trademate/api/internal/repositories"
)

const transactionCollection = "transactions"

type transactionDocument struct {
	UserID    string    `firestore:"uid"`
	Amount    float64   `firestore:"amount"`
	CreatedAt time.Time `firestore:"created_at"`
}

// TransactionRepository reserves merchant transaction numbers.
type TransactionRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[transactionDocument]
}

// NewTransactionRepository constructs a Firestore-backed transaction repository.
func NewTransactionRepository(provider *pfirestore.Provider) (*TransactionRepository, error) {
	if provider == nil {
		return nil, errors.New("transaction repository requires firestore provider")
	}
	return &TransactionRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[transactionDocument](provider, transactionCollection),
	}, nil
}

// Reserve claims record.Number. The existence check and the write share one transaction, which is
// attempted once so a collision surfaces to the caller instead of being retried here.
func (r *TransactionRepository) Reserve(ctx context.Context, record domain.TransactionRecord) error {
	ref, err := r.base.DocumentRef(ctx, strings.TrimSpace(record.Number))
	if err != nil {
		return err
	}
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		_, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
		case codes.OK:
			return repositories.ErrTransactionNumberTaken
		default:
			return err
		}
		return tx.Create(ref, transactionDocument{
			UserID:    record.UserID,
			Amount:    record.Amount,
			CreatedAt: record.CreatedAt.UTC(),
		})
	}, pfirestore.WithTxAttempts(1))
	if errors.Is(err, repositories.ErrTransactionNumberTaken) {
		return repositories.ErrTransactionNumberTaken
	}
	return err
}
