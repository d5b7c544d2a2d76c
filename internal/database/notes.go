package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// NoteRow is a row of the notes table. Title, BodyText and Tags are derived
// from Content and kept for listing and search.
type NoteRow struct {
	ID        int64
	Content   string
	Title     string
	BodyText  string
	Tags      []string
	Checksum  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SearchResult represents one note search hit.
type SearchResult struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

const noteColumns = `id, content, title, body_text, tags, checksum, created_at, updated_at`

// InsertNote stores a new note and returns its id.
func (db *DB) InsertNote(ctx context.Context, n NoteRow) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("database: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO notes (content, title, body_text, tags, checksum, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, n.Content, n.Title, n.BodyText, tagsJSON(n.Tags), n.Checksum, now, now)
	if err != nil {
		return 0, fmt.Errorf("database: insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("database: note id: %w", err)
	}
	if err := ftsUpsert(tx, id, n.Title, n.BodyText, n.Tags); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// UpdateNote replaces the content and derived columns of an existing note.
func (db *DB) UpdateNote(ctx context.Context, n NoteRow) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE notes
		SET content = ?, title = ?, body_text = ?, tags = ?, checksum = ?, updated_at = ?
		WHERE id = ?
	`, n.Content, n.Title, n.BodyText, tagsJSON(n.Tags), n.Checksum, time.Now().UTC(), n.ID)
	if err != nil {
		return fmt.Errorf("database: update note: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	if err := ftsUpsert(tx, n.ID, n.Title, n.BodyText, n.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

// GetNote returns one note or apperr.ErrNotFound.
func (db *DB) GetNote(ctx context.Context, id int64) (*NoteRow, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

// ListNotes returns notes, most recently updated first, optionally restricted to a tag.
func (db *DB) ListNotes(ctx context.Context, tag string) ([]NoteRow, error) {
	query := `SELECT ` + noteColumns + ` FROM notes`
	var args []any
	if tag != "" {
		query += ` WHERE EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE json_each.value = ?)`
		args = append(args, tag)
	}
	query += ` ORDER BY updated_at DESC, id DESC`

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("database: list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("database: scan note: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// DeleteNote removes a note and its search entry.
func (db *DB) DeleteNote(ctx context.Context, id int64) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("database: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, id)
	res, err := tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("database: delete note: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(s rowScanner) (*NoteRow, error) {
	var n NoteRow
	var tags string
	if err := s.Scan(&n.ID, &n.Content, &n.Title, &n.BodyText, &tags, &n.Checksum, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Tags = parseTags(tags)
	return &n, nil
}

func tagsJSON(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	data, _ := json.Marshal(tags)
	return string(data)
}

func parseTags(raw string) []string {
	tags := []string{}
	if raw == "" {
		return tags
	}
	_ = json.Unmarshal([]byte(raw), &tags)
	return tags
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("database: rows affected: %w", err)
	}
	if n == 0 {
		return notFound(sql.ErrNoRows)
	}
	return nil
}
