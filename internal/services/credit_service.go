package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/trademate/api/internal/domain"
	"github.com/trademate/api/internal/repositories"
)

var (
	// ErrCreditInvalidInput indicates validation failures for credit checks.
	ErrCreditInvalidInput = errors.New("credit: invalid input")
	// ErrCreditLimitNotFound indicates neither the user nor the customer carries a credit limit.
	ErrCreditLimitNotFound = errors.New("credit: no credit limit on record")
	// ErrCreditUnavailable indicates a backing store failure.
	ErrCreditUnavailable = errors.New("credit: unavailable")
)

// CreditServiceDeps wires the credit check collaborators.
type CreditServiceDeps struct {
	Users     repositories.UserRepository
	Customers repositories.CustomerRepository
	Invoices  repositories.InvoiceRepository
}

type creditService struct {
	users     repositories.UserRepository
	customers repositories.CustomerRepository
	invoices  repositories.InvoiceRepository
}

// NewCreditService constructs the credit checker.
func NewCreditService(deps CreditServiceDeps) (CreditService, error) {
	if deps.Invoices == nil {
		return nil, errors.New("credit service: invoice repository is required")
	}
	if deps.Users == nil && deps.Customers == nil {
		return nil, errors.New("credit service: user or customer repository is required")
	}
	return &creditService{users: deps.Users, customers: deps.Customers, invoices: deps.Invoices}, nil
}

// Check compares the company's pending invoices plus the proposed cart against its credit limit.
func (s *creditService) Check(ctx context.Context, cmd CreditCheckCommand) (CreditCheckResult, error) {
	if math.IsNaN(cmd.CartValue) || math.IsInf(cmd.CartValue, 0) || cmd.CartValue < 0 {
		return CreditCheckResult{}, fmt.Errorf("%w: cartValue must be a non-negative number", ErrCreditInvalidInput)
	}
	userID := strings.TrimSpace(cmd.UserID)
	customerID := strings.TrimSpace(cmd.CustomerID)
	companyID := strings.TrimSpace(cmd.CompanyID)
	if userID == "" && customerID == "" && companyID == "" {
		return CreditCheckResult{}, fmt.Errorf("%w: uid, customerId or companyId is required", ErrCreditInvalidInput)
	}

	var limit *float64
	if userID != "" && s.users != nil {
		user, err := s.users.FindByID(ctx, userID)
		switch {
		case err == nil:
			limit = user.CreditLimit
			companyID = firstNonEmpty(companyID, user.CompanyID)
			customerID = firstNonEmpty(customerID, user.CustomerID)
		case !isRepoNotFound(err):
			return CreditCheckResult{}, translateCreditError(err)
		}
	}
	if limit == nil && s.customers != nil {
		customer, err := s.findCustomer(ctx, customerID, companyID)
		if err != nil {
			return CreditCheckResult{}, err
		}
		if customer != nil {
			limit = customer.CreditLimit
			companyID = firstNonEmpty(companyID, customer.CompanyID)
		}
	}
	if limit == nil {
		return CreditCheckResult{}, ErrCreditLimitNotFound
	}
	if companyID == "" {
		return CreditCheckResult{}, fmt.Errorf("%w: company could not be determined", ErrCreditInvalidInput)
	}

	pending, err := s.invoices.List(ctx, repositories.InvoiceFilter{CompanyID: companyID, Status: domain.InvoiceStatusPending})
	if err != nil {
		return CreditCheckResult{}, translateCreditError(err)
	}
	outstanding := decimal.Zero
	for _, invoice := range pending {
		outstanding = outstanding.Add(money(invoice.FinalTotal))
	}

	creditLimit := money(*limit)
	cart := money(cmd.CartValue)
	exposure := outstanding.Add(cart)
	result := CreditCheckResult{
		CompanyID:       companyID,
		CreditLimit:     roundMoney(creditLimit),
		Outstanding:     roundMoney(outstanding),
		RemainingCredit: roundMoney(creditLimit.Sub(outstanding)),
		CartValue:       roundMoney(cart),
		CanCheckout:     exposure.LessThanOrEqual(creditLimit),
		PendingInvoices: len(pending),
	}
	if !result.CanCheckout {
		result.OverBy = roundMoney(exposure.Sub(creditLimit))
	}
	return result, nil
}

func (s *creditService) findCustomer(ctx context.Context, customerID, companyID string) (*domain.Customer, error) {
	if customerID != "" {
		customer, err := s.customers.FindByID(ctx, customerID)
		if err == nil {
			return &customer, nil
		}
		if !isRepoNotFound(err) {
			return nil, translateCreditError(err)
		}
	}
	if companyID == "" {
		return nil, nil
	}
	customers, err := s.customers.FindByCompany(ctx, companyID)
	if err != nil {
		return nil, translateCreditError(err)
	}
	for i := range customers {
		if customers[i].CreditLimit != nil {
			return &customers[i], nil
		}
	}
	return nil, nil
}

func translateCreditError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCreditUnavailable, err)
}
