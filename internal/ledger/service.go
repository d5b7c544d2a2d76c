// Package ledger implements the category and expense use cases: validation,
// budget spending, summaries and spreadsheet export.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/starford/tirelire/internal/apperr"
	"github.com/starford/tirelire/internal/database"
	"github.com/starford/tirelire/internal/events"
	"github.com/starford/tirelire/internal/models"
)

// closeToBudget is the share of a budget, in percent, from which a category is flagged.
var closeToBudget = decimal.NewFromInt(80)

// Service coordinates category and expense storage.
type Service struct {
	db     *database.DB
	events events.Publisher
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for "current month" defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a ledger service. A nil publisher discards changes.
func NewService(db *database.DB, pub events.Publisher, opts ...Option) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	s := &Service{db: db, events: pub, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) publish(ctx context.Context, entity events.Entity, kind events.Kind, id int64) {
	s.events.PublishChange(ctx, events.NewChange(entity, kind, id))
}

// invalid turns an ozzo validation failure into an apperr.ErrInvalidInput.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return fmt.Errorf("%w: %s", apperr.ErrInvalidInput, verrs.Error())
	}
	return fmt.Errorf("%w: %s", apperr.ErrInvalidInput, err.Error())
}

func positive(value any) error {
	if d, ok := decimalValue(value); ok && !d.IsPositive() {
		return errors.New("must be greater than 0")
	}
	return nil
}

func nonNegative(value any) error {
	if d, ok := decimalValue(value); ok && d.IsNegative() {
		return errors.New("cannot be negative")
	}
	return nil
}

// decimalValue unwraps a decimal field or a non-nil patch pointer.
func decimalValue(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, true
	case *decimal.Decimal:
		if v != nil {
			return *v, true
		}
	}
	return decimal.Decimal{}, false
}

func requiredDate(value any) error {
	var d models.Date
	switch v := value.(type) {
	case models.Date:
		d = v
	case *models.Date:
		if v == nil {
			return nil
		}
		d = *v
	}
	if d.IsZero() {
		return errors.New("cannot be blank")
	}
	return nil
}

var (
	validTypes       = []any{models.TypeExpense, models.TypeIncome}
	validFrequencies = []any{models.Daily, models.Weekly, models.Monthly, models.Yearly}
)
