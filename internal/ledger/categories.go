package ledger

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/starford/tirelire/internal/apperr"
	"github.com/starford/tirelire/internal/events"
	"github.com/starford/tirelire/internal/models"
)

var hundred = decimal.NewFromInt(100)

// SpendingReport is the budget view of one month.
type SpendingReport struct {
	Year        int                       `json:"year"`
	Month       int                       `json:"month"`
	Categories  []models.CategorySpending `json:"categories"`
	Utilization models.BudgetUtilization  `json:"utilization"`
}

// ListCategories returns categories matching f.
func (s *Service) ListCategories(ctx context.Context, f models.CategoryFilter) ([]models.Category, error) {
	return s.db.ListCategories(ctx, f)
}

// GetCategory returns one category.
func (s *Service) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	return s.db.GetCategory(ctx, id)
}

// CreateCategory validates and stores a new category. New categories are
// always active and visible.
func (s *Service) CreateCategory(ctx context.Context, c models.Category) (*models.Category, error) {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&c.Color, validation.Required),
		validation.Field(&c.Budget, validation.By(nonNegative)),
	)
	if err != nil {
		return nil, invalid(err)
	}
	c.IsActive, c.Show = true, true

	created, err := s.db.CreateCategory(ctx, c)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EntityCategory, events.Created, created.ID)
	return created, nil
}

// UpdateCategory applies a partial update.
func (s *Service) UpdateCategory(ctx context.Context, id int64, p models.CategoryPatch) (*models.Category, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: no valid fields to update", apperr.ErrInvalidInput)
	}
	err := validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.NilOrNotEmpty, validation.Length(1, 100)),
		validation.Field(&p.Color, validation.NilOrNotEmpty),
		validation.Field(&p.Budget, validation.By(nonNegative)),
	)
	if err != nil {
		return nil, invalid(err)
	}

	updated, err := s.db.UpdateCategory(ctx, id, p)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EntityCategory, events.Updated, id)
	return updated, nil
}

// DeleteCategory removes a category without expenses.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	if err := s.db.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, events.EntityCategory, events.Deleted, id)
	return nil
}

// CategoryExpenses lists every transaction filed under a category.
func (s *Service) CategoryExpenses(ctx context.Context, id int64) ([]models.Expense, error) {
	if _, err := s.db.GetCategory(ctx, id); err != nil {
		return nil, err
	}
	return s.db.ListExpenses(ctx, models.ExpenseFilter{CategoryID: id, Limit: -1})
}

// Spending reports budget usage of every active, visible category for the
// given month. A zero year or month means the current one.
func (s *Service) Spending(ctx context.Context, year int, month time.Month) (*SpendingReport, error) {
	now := s.now()
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = now.Month()
	}
	if month < time.January || month > time.December {
		return nil, fmt.Errorf("%w: month must be between 1 and 12", apperr.ErrInvalidInput)
	}

	active, visible := true, true
	cats, err := s.db.ListCategories(ctx, models.CategoryFilter{IsActive: &active, Show: &visible})
	if err != nil {
		return nil, err
	}
	from, to := models.MonthBounds(year, month)
	spent, err := s.db.CategorySpent(ctx, from, to)
	if err != nil {
		return nil, err
	}

	report := &SpendingReport{Year: year, Month: int(month), Categories: make([]models.CategorySpending, 0, len(cats))}
	for _, c := range cats {
		cs := categorySpending(c, spent[c.ID])
		report.Categories = append(report.Categories, cs)
	}
	report.Utilization = utilization(report.Categories)
	return report, nil
}

func categorySpending(c models.Category, spent decimal.Decimal) models.CategorySpending {
	cs := models.CategorySpending{
		Category:     c,
		Spent:        spent,
		Remaining:    c.Budget.Sub(spent),
		IsOverBudget: spent.GreaterThan(c.Budget),
	}
	cs.PercentageUsed = percentage(spent, c.Budget)
	cs.IsCloseToBudget = !cs.IsOverBudget && cs.PercentageUsed.GreaterThanOrEqual(closeToBudget)
	return cs
}

func utilization(cats []models.CategorySpending) models.BudgetUtilization {
	var u models.BudgetUtilization
	for _, c := range cats {
		u.TotalBudget = u.TotalBudget.Add(c.Budget)
		u.TotalSpent = u.TotalSpent.Add(c.Spent)
		if c.IsOverBudget {
			u.OverBudgetCategories++
		}
		if c.IsCloseToBudget {
			u.CloseToBudgetCategories++
		}
	}
	u.TotalRemaining = u.TotalBudget.Sub(u.TotalSpent)
	u.OverallPercentage = percentage(u.TotalSpent, u.TotalBudget)
	return u
}

// percentage returns part/whole*100 rounded to two places. A zero budget
// that has been spent against counts as 100%.
func percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		if part.IsPositive() {
			return hundred
		}
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}
