package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/starford/tirelire/internal/apperr"
	"github.com/starford/tirelire/internal/models"
)

const categoryColumns = `id, name, budget, color, icon, description, is_active, show, created_at, updated_at`

// ListCategories returns categories matching f ordered by name.
func (db *DB) ListCategories(ctx context.Context, f models.CategoryFilter) ([]models.Category, error) {
	var where []string
	var args []any
	if f.IsActive != nil {
		where = append(where, "is_active = ?")
		args = append(args, boolInt(*f.IsActive))
	}
	if f.Show != nil {
		where = append(where, "show = ?")
		args = append(args, boolInt(*f.Show))
	}
	if f.Search != "" {
		where = append(where, "(name LIKE ? OR description LIKE ?)")
		like := "%" + f.Search + "%"
		args = append(args, like, like)
	}

	query := `SELECT ` + categoryColumns + ` FROM categories`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY name ASC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database: list categories: %w", err)
	}
	defer rows.Close()

	out := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("database: scan category: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetCategory returns one category or apperr.ErrNotFound.
func (db *DB) GetCategory(ctx context.Context, id int64) (*models.Category, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// CreateCategory inserts c and returns the stored row.
func (db *DB) CreateCategory(ctx context.Context, c models.Category) (*models.Category, error) {
	now := time.Now().UTC()
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO categories (name, budget, color, icon, description, is_active, show, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.Name, c.Budget.String(), c.Color, c.Icon, c.Description, boolInt(c.IsActive), boolInt(c.Show), now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("category %q: %w", c.Name, apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("database: insert category: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("database: category id: %w", err)
	}
	return db.GetCategory(ctx, id)
}

// UpdateCategory applies the non-nil fields of p.
func (db *DB) UpdateCategory(ctx context.Context, id int64, p models.CategoryPatch) (*models.Category, error) {
	var set []string
	var args []any
	add := func(col string, v any) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Budget != nil {
		add("budget", p.Budget.String())
	}
	if p.Color != nil {
		add("color", *p.Color)
	}
	if p.Icon != nil {
		add("icon", *p.Icon)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.IsActive != nil {
		add("is_active", boolInt(*p.IsActive))
	}
	if p.Show != nil {
		add("show", boolInt(*p.Show))
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("%w: no valid fields to update", apperr.ErrInvalidInput)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	res, err := db.conn.ExecContext(ctx, `UPDATE categories SET `+strings.Join(set, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("category name: %w", apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("database: update category: %w", err)
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return db.GetCategory(ctx, id)
}

// DeleteCategory removes a category that has no expenses. A category still in
// use yields apperr.ErrConflict.
func (db *DB) DeleteCategory(ctx context.Context, id int64) error {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM expenses WHERE category_id = ?`, id).Scan(&n); err != nil {
		return fmt.Errorf("database: count category expenses: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("category has %d expenses: %w", n, apperr.ErrConflict)
	}
	res, err := db.conn.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("database: delete category: %w", err)
	}
	return requireRow(res)
}

// CategorySpent sums expense-type amounts per category between from and to inclusive.
func (db *DB) CategorySpent(ctx context.Context, from, to models.Date) (map[int64]decimal.Decimal, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT category_id, amount FROM expenses
		WHERE type = 'expense' AND date >= ? AND date <= ?
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("database: category spent: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var id int64
		var amount decimal.Decimal
		if err := rows.Scan(&id, &amount); err != nil {
			return nil, fmt.Errorf("database: scan spent: %w", err)
		}
		out[id] = out[id].Add(amount)
	}
	return out, rows.Err()
}

func scanCategory(s rowScanner) (*models.Category, error) {
	var c models.Category
	if err := s.Scan(&c.ID, &c.Name, &c.Budget, &c.Color, &c.Icon, &c.Description,
		&c.IsActive, &c.Show, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
