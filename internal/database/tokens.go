package database

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/tirelire/internal/models"
)

// InsertToken stores a freshly issued auth token.
func (db *DB) InsertToken(ctx context.Context, t models.AuthToken) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO auth_tokens (token, expires_at, created_at) VALUES (?, ?, ?)`,
		t.Token, t.ExpiresAt.UTC(), t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("database: insert token: %w", err)
	}
	return nil
}

// GetToken returns a stored token or apperr.ErrNotFound.
func (db *DB) GetToken(ctx context.Context, token string) (*models.AuthToken, error) {
	var t models.AuthToken
	err := db.conn.QueryRowContext(ctx,
		`SELECT token, expires_at, created_at FROM auth_tokens WHERE token = ?`, token).
		Scan(&t.Token, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// DeleteToken removes a token. It reports apperr.ErrNotFound when nothing was deleted.
func (db *DB) DeleteToken(ctx context.Context, token string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM auth_tokens WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("database: delete token: %w", err)
	}
	return requireRow(res)
}

// DeleteExpiredTokens removes tokens that expired before now and returns how many.
func (db *DB) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM auth_tokens WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("database: delete expired tokens: %w", err)
	}
	return res.RowsAffected()
}
