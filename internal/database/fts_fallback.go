//go:build !sqlite_fts5

package database

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(_ *sql.DB) error { return nil }

func ftsUpsert(_ *sql.Tx, _ int64, _, _ string, _ []string) error { return nil }

func ftsDelete(_ *sql.Tx, _ int64) {}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchNotes matches every word against title, text or tags with LIKE and
// every #tag exactly. Title hits sort first, then the most recently updated.
func (db *DB) SearchNotes(query string, limit int) ([]SearchResult, error) {
	q := parseSearch(query)
	if q.empty() {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var (
		where []string
		args  []any
	)
	for _, w := range q.words {
		like := "%" + likeEscaper.Replace(w) + "%"
		where = append(where, `(title LIKE ? ESCAPE '\' OR body_text LIKE ? ESCAPE '\' OR tags LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}
	for _, t := range q.tags {
		where = append(where, `EXISTS (SELECT 1 FROM json_each(notes.tags) WHERE json_each.value = ? COLLATE NOCASE)`)
		args = append(args, t)
	}

	order := "updated_at DESC"
	if len(q.words) > 0 {
		order = "(title LIKE ? ESCAPE '\\') DESC, " + order
		args = append(args, "%"+likeEscaper.Replace(q.words[0])+"%")
	}
	args = append(args, limit)

	rows, err := db.conn.Query(`
		SELECT id, title, body_text
		FROM notes
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY `+order+`
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("database: search notes: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var (
			r    SearchResult
			body string
		)
		if err := rows.Scan(&r.ID, &r.Title, &body); err != nil {
			return nil, err
		}
		r.Snippet = excerpt(body, q.words)
		out = append(out, r)
	}
	return out, rows.Err()
}
