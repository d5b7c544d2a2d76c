package database

import (
	"strings"
	"unicode/utf8"
)

const (
	defaultSearchLimit = 20
	excerptBefore      = 60
	excerptLen         = 200
)

// searchQuery is a note search split into free words and #tag filters.
// Every part must match.
type searchQuery struct {
	words []string
	tags  []string
}

func (q searchQuery) empty() bool { return len(q.words) == 0 && len(q.tags) == 0 }

func parseSearch(raw string) searchQuery {
	var q searchQuery
	for _, f := range strings.Fields(raw) {
		f = strings.Trim(f, `"'`)
		if tag, ok := strings.CutPrefix(f, "#"); ok {
			if tag != "" {
				q.tags = append(q.tags, tag)
			}
			continue
		}
		if f != "" {
			q.words = append(q.words, f)
		}
	}
	return q
}

// excerpt returns up to excerptLen bytes of body around the first word found,
// or its start when none is.
func excerpt(body string, words []string) string {
	start := 0
	lower := strings.ToLower(body)
	for _, w := range words {
		if i := strings.Index(lower, strings.ToLower(w)); i >= 0 {
			start = max(i-excerptBefore, 0)
			break
		}
	}
	for start > 0 && !utf8.RuneStart(body[start]) {
		start--
	}
	end := min(start+excerptLen, len(body))
	for end < len(body) && !utf8.RuneStart(body[end]) {
		end--
	}
	out := strings.TrimSpace(body[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(body) {
		out += "…"
	}
	return out
}
