// Package envelope encodes and decodes the versioned JSON wrapper stored as note content.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/tirelire/internal/attachment"
)

// Version is the envelope version written by Encode.
const Version = 2

// Format identifies how stored note content was interpreted.
type Format int

const (
	RichV2 Format = iota
	LegacyPlain
	LegacyHTML
)

func (f Format) String() string {
	switch f {
	case RichV2:
		return "rich_v2"
	case LegacyHTML:
		return "legacy_html"
	default:
		return "legacy_plain"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Envelope is the structured note body.
type Envelope struct {
	Version     int                     `json:"version"`
	HTML        string                  `json:"html"`
	Attachments []attachment.Attachment `json:"attachments"`
}

// Decoded is the result of Decode. Envelope is always normalised to the
// current version, whatever the source format.
type Decoded struct {
	Format   Format
	Envelope Envelope
}

var htmlTagRe = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9-]*(\s[^<>]*)?/?>`)

type rawEnvelope struct {
	Version     json.RawMessage         `json:"version"`
	HTML        *string                 `json:"html"`
	Attachments []attachment.Attachment `json:"attachments"`
}

// Decode interprets stored note content. It never fails: content that is not a
// well-formed envelope is treated as legacy text or HTML with no attachments.
func Decode(content string) Decoded {
	if env, ok := decodeRich(content); ok {
		return Decoded{Format: RichV2, Envelope: env}
	}
	format := LegacyPlain
	if htmlTagRe.MatchString(content) {
		format = LegacyHTML
	}
	return Decoded{
		Format: format,
		Envelope: Envelope{
			Version:     Version,
			HTML:        content,
			Attachments: []attachment.Attachment{},
		},
	}
}

func decodeRich(content string) (Envelope, bool) {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "{") {
		return Envelope{}, false
	}
	var raw rawEnvelope
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return Envelope{}, false
	}
	if raw.HTML == nil || !isNumber(raw.Version) {
		return Envelope{}, false
	}
	atts := raw.Attachments
	if atts == nil {
		atts = []attachment.Attachment{}
	}
	return Envelope{Version: Version, HTML: *raw.HTML, Attachments: atts}, true
}

func isNumber(raw json.RawMessage) bool {
	var n float64
	return len(raw) > 0 && raw[0] != '"' && string(raw) != "null" && json.Unmarshal(raw, &n) == nil
}

// Encode serialises env at the current version.
func Encode(env Envelope) (string, error) {
	env.Version = Version
	if env.Attachments == nil {
		env.Attachments = []attachment.Attachment{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(env); err != nil {
		return "", fmt.Errorf("envelope: encode: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
