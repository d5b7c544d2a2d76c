package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Settings is a key/value view over the settings table.
type Settings struct {
	db *DB
}

// Settings returns the key/value store backed by db.
func (db *DB) Settings() *Settings {
	return &Settings{db: db}
}

// Get returns the value for key and whether it was set.
func (s *Settings) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.conn.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("database: get setting %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Settings) Set(ctx context.Context, key, value string) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("database: set setting %s: %w", key, err)
	}
	return nil
}
