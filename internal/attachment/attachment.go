// Package attachment reconciles a note's attachment list against blob storage.
package attachment

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/tirelire/internal/apperr"
	"github.com/starford/tirelire/internal/storage"
)

// URLPrefix is the public mount point of the uploads root.
const URLPrefix = "/uploads/"

var (
	ErrMalformedAttachment = fmt.Errorf("%w: malformed attachment", apperr.ErrInvalidInput)
	ErrMalformedDataURL    = fmt.Errorf("%w: invalid attachment data URL", apperr.ErrInvalidInput)
	ErrTempMissing         = errors.New("attachment: staged upload missing")
)

// Attachment is the wire form stored inside a note envelope. Which optional
// fields are set decides its Variant; see Classify.
type Attachment struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Size        int64  `json:"size"`
	URL         string `json:"url,omitempty"`
	StoragePath string `json:"storagePath,omitempty"`
	IsTemp      bool   `json:"isTemp,omitempty"`
	DataURL     string `json:"dataUrl,omitempty"`
}

// Meta is the part shared by every variant.
type Meta struct {
	ID   string
	Name string
	Type string
	Size int64
}

// Variant is one of Pending, Inline, Final or Reference.
type Variant interface {
	meta() Meta
}

// Pending is a staged upload waiting to be adopted into a note.
type Pending struct {
	Meta
	TempPath string
}

// Inline carries its bytes as a base64 data URL.
type Inline struct {
	Meta
	DataURL string
}

// Final points at a blob already stored under a note directory.
type Final struct {
	Meta
	StoragePath string
}

// Reference names an existing attachment by id only.
type Reference struct {
	Meta
}

func (v Pending) meta() Meta   { return v.Meta }
func (v Inline) meta() Meta    { return v.Meta }
func (v Final) meta() Meta     { return v.Meta }
func (v Reference) meta() Meta { return v.Meta }

// Classify maps a wire record to its variant.
func Classify(a Attachment) (Variant, error) {
	m := Meta{ID: strings.TrimSpace(a.ID), Name: a.Name, Type: a.Type, Size: a.Size}
	switch {
	case a.IsTemp:
		if a.StoragePath == "" {
			return nil, fmt.Errorf("%w: temp attachment %q has no storage path", ErrMalformedAttachment, a.Name)
		}
		return Pending{Meta: m, TempPath: cleanRel(a.StoragePath)}, nil
	case a.DataURL != "":
		return Inline{Meta: m, DataURL: a.DataURL}, nil
	case a.StoragePath != "":
		if m.ID == "" {
			return nil, fmt.Errorf("%w: stored attachment %q has no id", ErrMalformedAttachment, a.Name)
		}
		return Final{Meta: m, StoragePath: cleanRel(a.StoragePath)}, nil
	case m.ID != "":
		return Reference{Meta: m}, nil
	default:
		return nil, fmt.Errorf("%w: attachment %q has neither id nor payload", ErrMalformedAttachment, a.Name)
	}
}

// Record renders a Final variant back to its wire form.
func (v Final) Record() Attachment {
	return Attachment{
		ID:          v.ID,
		Name:        v.Name,
		Type:        v.Type,
		Size:        v.Size,
		URL:         PublicURL(v.StoragePath),
		StoragePath: v.StoragePath,
	}
}

// PublicURL returns the URL a blob is served under.
func PublicURL(rel string) string {
	return URLPrefix + strings.TrimPrefix(cleanRel(rel), "/")
}

// NoteDir returns the permanent directory of a note.
func NoteDir(noteID int64) string {
	return path.Join(storage.NotesDir, strconv.FormatInt(noteID, 10))
}

// TempPath returns where a staged upload with the given id and extension lives.
func TempPath(id, ext string) string {
	return path.Join(storage.TempDir, id+ext)
}

var extRe = regexp.MustCompile(`[^a-zA-Z0-9.]`)

// SafeExt returns the sanitised extension of name, including the dot.
func SafeExt(name string) string {
	ext := path.Ext(strings.ReplaceAll(name, `\`, "/"))
	if ext == "." {
		return ""
	}
	return extRe.ReplaceAllString(ext, "")
}

func cleanRel(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}

func underDir(p, dir string) bool {
	return strings.HasPrefix(p, dir+"/") && len(p) > len(dir)+1
}
