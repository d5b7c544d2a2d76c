package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/starford/tirelire/internal/apperr"
	"github.com/starford/tirelire/internal/events"
	"github.com/starford/tirelire/internal/models"
)

// ListExpenses returns transactions matching f.
func (s *Service) ListExpenses(ctx context.Context, f models.ExpenseFilter) ([]models.Expense, error) {
	if f.Type != "" && f.Type != models.TypeExpense && f.Type != models.TypeIncome {
		return nil, fmt.Errorf("%w: type must be either %q or %q", apperr.ErrInvalidInput, models.TypeExpense, models.TypeIncome)
	}
	return s.db.ListExpenses(ctx, f)
}

// GetExpense returns one transaction.
func (s *Service) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	return s.db.GetExpense(ctx, id)
}

// CreateExpense validates and stores a transaction.
func (s *Service) CreateExpense(ctx context.Context, e models.Expense) (*models.Expense, error) {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&e.Amount, validation.By(positive)),
		validation.Field(&e.CategoryID, validation.Required),
		validation.Field(&e.Date, validation.By(requiredDate)),
		validation.Field(&e.Type, validation.Required, validation.In(validTypes...)),
		validation.Field(&e.RecurringFrequency, validation.In(validFrequencies...)),
	)
	if err != nil {
		return nil, invalid(err)
	}
	if err := s.requireCategory(ctx, e.CategoryID); err != nil {
		return nil, err
	}

	created, err := s.db.CreateExpense(ctx, e)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EntityExpense, events.Created, created.ID)
	return created, nil
}

// UpdateExpense applies a partial update.
func (s *Service) UpdateExpense(ctx context.Context, id int64, p models.ExpensePatch) (*models.Expense, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: no valid fields to update", apperr.ErrInvalidInput)
	}
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&p.Amount, validation.By(positive)),
		validation.Field(&p.Date, validation.By(requiredDate)),
		validation.Field(&p.Type, validation.In(validTypes...)),
		validation.Field(&p.RecurringFrequency, validation.In(validFrequencies...)),
	)
	if err != nil {
		return nil, invalid(err)
	}
	if p.CategoryID != nil {
		if err := s.requireCategory(ctx, *p.CategoryID); err != nil {
			return nil, err
		}
	}

	updated, err := s.db.UpdateExpense(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EntityExpense, events.Updated, id)
	return updated, nil
}

// DeleteExpense permanently removes a transaction.
func (s *Service) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.db.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.EntityExpense, events.Deleted, id)
	return nil
}

// ExpensesByMonth lists every transaction dated inside the given month.
func (s *Service) ExpensesByMonth(ctx context.Context, year int, month time.Month) ([]models.Expense, error) {
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: month must be between 1 and 12", apperr.ErrInvalidInput)
	}
	from, to := models.MonthBounds(year, month)
	return s.QueryByDateRange(ctx, from, to)
}

// RecurringExpenses lists every transaction flagged as recurring.
func (s *Service) RecurringExpenses(ctx context.Context) ([]models.Expense, error) {
	recurring := true
	return s.db.ListExpenses(ctx, models.ExpenseFilter{IsRecurring: &recurring, Limit: -1})
}

// Summary totals transactions between from and to; nil bounds are open.
func (s *Service) Summary(ctx context.Context, from, to *models.Date) (*models.Summary, error) {
	rows, err := s.db.ListExpenses(ctx, models.ExpenseFilter{DateFrom: from, DateTo: to, Limit: -1})
	if err != nil {
		return nil, err
	}
	return summarize(rows), nil
}

func summarize(rows []models.Expense) *models.Summary {
	var sum models.Summary
	for _, e := range rows {
		switch e.Type {
		case models.TypeIncome:
			sum.TotalIncome = sum.TotalIncome.Add(e.Amount)
			sum.IncomeCount++
		default:
			sum.TotalExpenses = sum.TotalExpenses.Add(e.Amount)
			sum.ExpenseCount++
		}
	}
	if sum.ExpenseCount > 0 {
		sum.AverageExpense = sum.TotalExpenses.Div(decimal.NewFromInt(int64(sum.ExpenseCount))).Round(2)
	}
	if sum.IncomeCount > 0 {
		sum.AverageIncome = sum.TotalIncome.Div(decimal.NewFromInt(int64(sum.IncomeCount))).Round(2)
	}
	sum.NetAmount = sum.TotalIncome.Sub(sum.TotalExpenses)
	return &sum
}

// QueryByDateRange lists every transaction dated between start and end inclusive.
func (s *Service) QueryByDateRange(ctx context.Context, start, end models.Date) ([]models.Expense, error) {
	return s.db.ListExpenses(ctx, models.ExpenseFilter{DateFrom: &start, DateTo: &end, Limit: -1})
}

// Create stores a transaction produced by the recurring materializer.
func (s *Service) Create(ctx context.Context, e models.Expense) (*models.Expense, error) {
	return s.CreateExpense(ctx, e)
}

func (s *Service) requireCategory(ctx context.Context, id int64) error {
	_, err := s.db.GetCategory(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("%w: category %d not found", apperr.ErrInvalidInput, id)
	}
	return err
}
