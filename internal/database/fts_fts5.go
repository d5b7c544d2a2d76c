//go:build sqlite_fts5

package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// note_search is keyed by note id through its rowid. Column order matters
// for the bm25 weights in SearchNotes.
func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS note_search USING fts5(
			title,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, id int64, title, body string, tags []string) error {
	ftsDelete(tx, id)
	_, err := tx.Exec(`INSERT INTO note_search (rowid, title, body, tags) VALUES (?, ?, ?, ?)`,
		id, title, body, strings.Join(tags, " "))
	if err != nil {
		return fmt.Errorf("database: index note %d: %w", id, err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, id int64) {
	_, _ = tx.Exec(`DELETE FROM note_search WHERE rowid = ?`, id)
}

// matchExpr quotes every word as a prefix phrase and scopes #tags to the
// tags column, so user input never reaches FTS5 query syntax.
func matchExpr(q searchQuery) string {
	parts := make([]string, 0, len(q.words)+len(q.tags))
	for _, w := range q.words {
		parts = append(parts, ftsQuote(w)+"*")
	}
	for _, t := range q.tags {
		parts = append(parts, "tags : "+ftsQuote(t))
	}
	return strings.Join(parts, " AND ")
}

func ftsQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// SearchNotes ranks notes by bm25 with title hits above tag hits above body
// hits. Snippets come from whichever column matched best.
func (db *DB) SearchNotes(query string, limit int) ([]SearchResult, error) {
	q := parseSearch(query)
	if q.empty() {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	rows, err := db.conn.Query(`
		SELECT rowid, title, snippet(note_search, -1, '<b>', '</b>', '…', 24)
		FROM note_search
		WHERE note_search MATCH ?
		ORDER BY bm25(note_search, 8.0, 1.0, 4.0), rowid DESC
		LIMIT ?
	`, matchExpr(q), limit)
	if err != nil {
		return nil, fmt.Errorf("database: search notes: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
