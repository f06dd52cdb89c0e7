package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	domain "github.com/trademate/api/internal/domain"
	"github.com/trademate/api/internal/repositories"
)

var (
	// ErrReportInvalidInput indicates an invalid report filter.
	ErrReportInvalidInput = errors.New("report: invalid input")
	// ErrReportUnavailable indicates a backing store failure.
	ErrReportUnavailable = errors.New("report: unavailable")
)

const uncategorised = "uncategorised"

// ReportServiceDeps wires the report collaborators.
type ReportServiceDeps struct {
	Invoices repositories.InvoiceRepository
	Expenses repositories.ExpenseRepository
}

type reportService struct {
	invoices repositories.InvoiceRepository
	expenses repositories.ExpenseRepository
}

// NewReportService constructs the accounting reporter.
func NewReportService(deps ReportServiceDeps) (ReportService, error) {
	if deps.Invoices == nil || deps.Expenses == nil {
		return nil, errors.New("report service: invoice and expense repositories are required")
	}
	return &reportService{invoices: deps.Invoices, expenses: deps.Expenses}, nil
}

// ProfitAndLoss sums live invoices as income and all expenses in the range as costs. Expenses are
// not scoped to a company.
func (s *reportService) ProfitAndLoss(ctx context.Context, filter ProfitAndLossFilter) (ProfitAndLossReport, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return ProfitAndLossReport{}, fmt.Errorf("%w: to must not be before from", ErrReportInvalidInput)
	}
	companyID := strings.TrimSpace(filter.CompanyID)

	invoices, err := s.invoices.List(ctx, repositories.InvoiceFilter{CompanyID: companyID, From: filter.From, To: filter.To})
	if err != nil {
		return ProfitAndLossReport{}, fmt.Errorf("%w: %w", ErrReportUnavailable, err)
	}
	income := decimal.Zero
	count := 0
	for _, invoice := range invoices {
		if invoice.Status == domain.InvoiceStatusCancelled || invoice.Status == domain.InvoiceStatusDeleted {
			continue
		}
		income = income.Add(money(invoice.FinalTotal))
		count++
	}

	expenses, err := s.expenses.List(ctx, filter.From, filter.To)
	if err != nil {
		return ProfitAndLossReport{}, fmt.Errorf("%w: %w", ErrReportUnavailable, err)
	}
	type groupKey struct{ category, account string }
	totals := make(map[groupKey]decimal.Decimal)
	counts := make(map[groupKey]int)
	spent := decimal.Zero
	for _, expense := range expenses {
		key := groupKey{
			category: firstNonEmpty(expense.Category, uncategorised),
			account:  strings.TrimSpace(expense.AccountCode),
		}
		amount := money(expense.Amount)
		totals[key] = totals[key].Add(amount)
		counts[key]++
		spent = spent.Add(amount)
	}

	groups := make([]ExpenseGroup, 0, len(totals))
	for key, total := range totals {
		groups = append(groups, ExpenseGroup{
			Category:    key.category,
			AccountCode: key.account,
			Total:       roundMoney(total),
			Count:       counts[key],
		})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Category != groups[j].Category {
			return groups[i].Category < groups[j].Category
		}
		return groups[i].AccountCode < groups[j].AccountCode
	})

	return ProfitAndLossReport{
		CompanyID:     companyID,
		From:          filter.From,
		To:            filter.To,
		Income:        roundMoney(income),
		InvoiceCount:  count,
		Expenses:      roundMoney(spent),
		ExpenseGroups: groups,
		Net:           roundMoney(income.Sub(spent)),
	}, nil
}
