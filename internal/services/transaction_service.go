package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	domain "github.com/trademate/api/internal/domain"
	"github.com/trademate/api/internal/repositories"
)

const (
	defaultTransactionAttempts = 5
	transactionNumberDigits    = 10
)

var (
	// ErrTransactionInvalidInput indicates validation failures.
	ErrTransactionInvalidInput = errors.New("transaction: invalid input")
	// ErrTransactionNumberExhausted indicates every generated number collided.
	ErrTransactionNumberExhausted = errors.New("transaction: could not reserve a unique number")
	// ErrTransactionUnavailable indicates a backing store failure.
	ErrTransactionUnavailable = errors.New("transaction: unavailable")
)

// TransactionServiceDeps wires the transaction number collaborators.
type TransactionServiceDeps struct {
	Transactions repositories.TransactionRepository
	MaxAttempts  int
	Generator    func() (string, error)
	Clock        func() time.Time
	Logger       func(context.Context, string, map[string]any)
}

type transactionService struct {
	transactions repositories.TransactionRepository
	maxAttempts  int
	generate     func() (string, error)
	now          func() time.Time
	logger       func(context.Context, string, map[string]any)
}

// NewTransactionService constructs the transaction number service.
func NewTransactionService(deps TransactionServiceDeps) (TransactionService, error) {
	if deps.Transactions == nil {
		return nil, errors.New("transaction service: transaction repository is required")
	}
	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultTransactionAttempts
	}
	generator := deps.Generator
	if generator == nil {
		generator = randomTransactionNumber
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &transactionService{
		transactions: deps.Transactions,
		maxAttempts:  attempts,
		generate:     generator,
		now:          func() time.Time { return clock().UTC() },
		logger:       logger,
	}, nil
}

// Create reserves a fresh random number. Only collisions are retried.
func (s *transactionService) Create(ctx context.Context, cmd CreateTransactionCommand) (TransactionResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return TransactionResult{}, fmt.Errorf("%w: uid is required", ErrTransactionInvalidInput)
	}
	if math.IsNaN(cmd.Amount) || math.IsInf(cmd.Amount, 0) || cmd.Amount <= 0 {
		return TransactionResult{}, fmt.Errorf("%w: amount must be greater than 0", ErrTransactionInvalidInput)
	}
	amount := roundMoney(money(cmd.Amount))

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		number, err := s.generate()
		if err != nil {
			return TransactionResult{}, fmt.Errorf("%w: %w", ErrTransactionUnavailable, err)
		}
		record := domain.TransactionRecord{
			Number:    number,
			UserID:    userID,
			Amount:    amount,
			CreatedAt: s.now(),
		}
		err = s.transactions.Reserve(ctx, record)
		if err == nil {
			return TransactionResult{Number: number, Attempts: attempt}, nil
		}
		if !errors.Is(err, repositories.ErrTransactionNumberTaken) {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return TransactionResult{}, err
			}
			return TransactionResult{}, fmt.Errorf("%w: %w", ErrTransactionUnavailable, err)
		}
		s.logger(ctx, "transaction.number.collision", map[string]any{
			"attempt": attempt,
			"userId":  userID,
		})
	}
	return TransactionResult{}, fmt.Errorf("%w after %d attempts", ErrTransactionNumberExhausted, s.maxAttempts)
}

func randomTransactionNumber() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(transactionNumberDigits), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", transactionNumberDigits, n), nil
}
