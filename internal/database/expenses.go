package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/starford/tirelire/internal/apperr"
	"github.com/starford/tirelire/internal/models"
)

const expenseSelect = `
	SELECT e.id, e.title, e.amount, e.category_id, COALESCE(c.name, ''), COALESCE(c.color, ''),
	       e.date, e.type, e.payment_method, e.tags, e.is_recurring, e.recurring_frequency,
	       e.created_at, e.updated_at
	FROM expenses e
	LEFT JOIN categories c ON c.id = e.category_id`

// DefaultExpenseLimit caps listings when no limit is given. A negative limit
// lists everything.
const DefaultExpenseLimit = 100

// ListExpenses returns expenses matching f, newest date first.
func (db *DB) ListExpenses(ctx context.Context, f models.ExpenseFilter) ([]models.Expense, error) {
	var where []string
	var args []any
	if f.CategoryID != 0 {
		where = append(where, "e.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.Type != "" {
		where = append(where, "e.type = ?")
		args = append(args, string(f.Type))
	}
	if f.DateFrom != nil {
		where = append(where, "e.date >= ?")
		args = append(args, *f.DateFrom)
	}
	if f.DateTo != nil {
		where = append(where, "e.date <= ?")
		args = append(args, *f.DateTo)
	}
	if f.MinAmount != nil {
		where = append(where, "CAST(e.amount AS REAL) >= ?")
		args = append(args, f.MinAmount.InexactFloat64())
	}
	if f.MaxAmount != nil {
		where = append(where, "CAST(e.amount AS REAL) <= ?")
		args = append(args, f.MaxAmount.InexactFloat64())
	}
	if f.Search != "" {
		where = append(where, "(e.title LIKE ? OR e.payment_method LIKE ?)")
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}
	for _, tag := range f.Tags {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(e.tags) WHERE json_each.value = ?)")
		args = append(args, tag)
	}
	if f.IsRecurring != nil {
		where = append(where, "e.is_recurring = ?")
		args = append(args, boolInt(*f.IsRecurring))
	}

	query := expenseSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY e.date DESC, e.id DESC LIMIT ? OFFSET ?`
	limit := f.Limit
	if limit == 0 {
		limit = DefaultExpenseLimit
	} else if limit < 0 {
		limit = -1
	}
	args = append(args, limit, max(f.Offset, 0))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database: list expenses: %w", err)
	}
	defer rows.Close()

	out := []models.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("database: scan expense: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// GetExpense returns one expense or apperr.ErrNotFound.
func (db *DB) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx, expenseSelect+` WHERE e.id = ?`, id)
	e, err := scanExpense(row)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// CreateExpense inserts e and returns the stored row.
func (db *DB) CreateExpense(ctx context.Context, e models.Expense) (*models.Expense, error) {
	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO expenses (title, amount, category_id, date, type, payment_method, tags,
		                      is_recurring, recurring_frequency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Title, e.Amount.String(), e.CategoryID, e.Date, string(e.Type), e.PaymentMethod, tagsJSON(e.Tags),
		boolInt(e.IsRecurring), string(e.RecurringFrequency), now, now)
	if err != nil {
		return nil, fmt.Errorf("database: insert expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("database: expense id: %w", err)
	}
	return db.GetExpense(ctx, id)
}

// UpdateExpense applies the non-nil fields of p.
func (db *DB) UpdateExpense(ctx context.Context, id int64, p models.ExpensePatch) (*models.Expense, error) {
	var set []string
	var args []any
	add := func(col string, v any) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}
	if p.Title != nil {
		add("title", *p.Title)
	}
	if p.Amount != nil {
		add("amount", p.Amount.String())
	}
	if p.CategoryID != nil {
		add("category_id", *p.CategoryID)
	}
	if p.Date != nil {
		add("date", *p.Date)
	}
	if p.Type != nil {
		add("type", string(*p.Type))
	}
	if p.PaymentMethod != nil {
		add("payment_method", *p.PaymentMethod)
	}
	if p.Tags != nil {
		add("tags", tagsJSON(*p.Tags))
	}
	if p.IsRecurring != nil {
		add("is_recurring", boolInt(*p.IsRecurring))
	}
	if p.RecurringFrequency != nil {
		add("recurring_frequency", string(*p.RecurringFrequency))
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: no valid fields to update", apperr.ErrInvalidInput)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	res, err := db.conn.ExecContext(ctx, `UPDATE expenses SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("database: update expense: %w", err)
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return db.GetExpense(ctx, id)
}

// DeleteExpense permanently removes an expense.
func (db *DB) DeleteExpense(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("database: delete expense: %w", err)
	}
	return requireRow(res)
}

func scanExpense(s rowScanner) (*models.Expense, error) {
	var e models.Expense
	var typ, freq, tags string
	if err := s.Scan(&e.ID, &e.Title, &e.Amount, &e.CategoryID, &e.CategoryName, &e.CategoryColor,
		&e.Date, &typ, &e.PaymentMethod, &tags, &e.IsRecurring, &freq,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Type = models.TransactionType(typ)
	e.RecurringFrequency = models.Frequency(freq)
	e.Tags = parseTags(tags)
	return &e, nil
}
