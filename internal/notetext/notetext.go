// Package notetext derives plain text, a title and #tags from note HTML.
package notetext

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxTitle   = 80
	maxExcerpt = 200
)

var (
	blockRe   = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/h[1-6]|/tr|/blockquote|/pre)\b[^>]*>`)
	tagRe     = regexp.MustCompile(`<[^>]*>`)
	headingRe = regexp.MustCompile(`(?is)<h1\b[^>]*>(.*?)</h1>`)
	hashtagRe = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	spaceRe   = regexp.MustCompile(`[ \t\f\v]+`)
)

// Result holds the text derived from one note body.
type Result struct {
	Title   string
	Body    string
	Excerpt string
	Tags    []string
}

// Parse extracts text, title, excerpt and tags from an HTML or plain-text body.
func Parse(markup string) Result {
	body := plainText(markup)
	return Result{
		Title:   deriveTitle(markup, body),
		Body:    body,
		Excerpt: truncate(strings.Join(strings.Fields(body), " "), maxExcerpt),
		Tags:    extractTags(body),
	}
}

func plainText(markup string) string {
	s := blockRe.ReplaceAllString(markup, "\n")
	s = tagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// deriveTitle returns the first <h1> text if present, otherwise the first line of body.
func deriveTitle(markup, body string) string {
	if m := headingRe.FindStringSubmatch(markup); m != nil {
		if t := strings.TrimSpace(plainText(m[1])); t != "" {
			return truncate(t, maxTitle)
		}
	}
	first, _, _ := strings.Cut(body, "\n")
	return truncate(first, maxTitle)
}

func extractTags(body string) []string {
	seen := make(map[string]struct{})
	out := []string{}
	for _, m := range hashtagRe.FindAllStringSubmatch(body, -1) {
		t := strings.ToLower(m[1])
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}
