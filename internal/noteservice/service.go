// Package noteservice stores notes and keeps their attachments in step with blob storage.
package noteservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/tirelire/internal/apperr"
	"github.com/starford/tirelire/internal/attachment"
	"github.com/starford/tirelire/internal/database"
	"github.com/starford/tirelire/internal/envelope"
	"github.com/starford/tirelire/internal/events"
	"github.com/starford/tirelire/internal/notetext"
	"github.com/starford/tirelire/internal/storage"
)

// DefaultSearchLimit caps search hits when no limit is given.
const DefaultSearchLimit = 50

// ErrChecksumMismatch is returned when an If-Match checksum is stale.
var ErrChecksumMismatch = fmt.Errorf("%w: checksum mismatch", apperr.ErrConflict)

// NoteDetail is the full representation of a note. Content is always the
// normalised version 2 envelope, whatever format is stored.
type NoteDetail struct {
	ID          int64                   `json:"id"`
	Content     string                  `json:"content"`
	HTML        string                  `json:"html"`
	Attachments []attachment.Attachment `json:"attachments"`
	Format      envelope.Format         `json:"format"`
	Title       string                  `json:"title"`
	Excerpt     string                  `json:"excerpt"`
	Tags        []string                `json:"tags"`
	Checksum    string                  `json:"checksum"`
	CreatedAt   time.Time               `json:"createdAt"`
	UpdatedAt   time.Time               `json:"updatedAt"`
}

// ListOptions narrows List.
type ListOptions struct {
	Tag    string
	Search string
}

// Service coordinates the note table, the envelope codec and the reconciler.
type Service struct {
	db         *database.DB
	store      storage.Provider
	reconciler *attachment.Reconciler
	events     events.Publisher
	logger     *slog.Logger
}

// NewService creates a new note service. A nil publisher discards changes.
func NewService(db *database.DB, store storage.Provider, reconciler *attachment.Reconciler, pub events.Publisher, logger *slog.Logger) *Service {
	if pub == nil {
		pub = events.Discard{}
	}
	return &Service{db: db, store: store, reconciler: reconciler, events: pub, logger: logger}
}

// GetNote returns a note, migrating legacy content on the fly.
func (s *Service) GetNote(ctx context.Context, id int64) (*NoteDetail, error) {
	row, err := s.db.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	return buildNoteDetail(row)
}

// ListNotes returns notes, most recently updated first. A search query
// returns full-text hits in rank order instead.
func (s *Service) ListNotes(ctx context.Context, opts ListOptions) ([]NoteDetail, error) {
	if opts.Search != "" {
		return s.searchDetails(ctx, opts.Search)
	}
	rows, err := s.db.ListNotes(ctx, opts.Tag)
	if err != nil {
		return nil, err
	}
	out := make([]NoteDetail, 0, len(rows))
	for i := range rows {
		d, err := buildNoteDetail(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

func (s *Service) searchDetails(ctx context.Context, query string) ([]NoteDetail, error) {
	hits, err := s.db.SearchNotes(query, DefaultSearchLimit)
	if err != nil {
		return nil, err
	}
	out := make([]NoteDetail, 0, len(hits))
	for _, h := range hits {
		d, err := s.GetNote(ctx, h.ID)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// Search delegates full-text search to the database.
func (s *Service) Search(_ context.Context, query string, limit int) ([]database.SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	return s.db.SearchNotes(query, limit)
}

// CreateNote stores a new note. The row is inserted first so attachments can
// be filed under its id; if reconciliation fails the row is removed again.
func (s *Service) CreateNote(ctx context.Context, content string) (*NoteDetail, error) {
	in := envelope.Decode(content)

	id, err := s.db.InsertNote(ctx, database.NoteRow{})
	if err != nil {
		return nil, err
	}
	row, err := s.save(ctx, id, in.Envelope, nil)
	if err != nil {
		if derr := s.db.DeleteNote(ctx, id); derr != nil {
			s.logger.ErrorContext(ctx, "note placeholder cleanup failed",
				slog.Int64("id", id),
				slog.String("error", derr.Error()))
		}
		return nil, err
	}
	s.events.PublishChange(ctx, events.NewChange(events.EntityNote, events.Created, id))
	return buildNoteDetail(row)
}

// UpdateNote replaces a note's content. When ifMatch is set it must equal
// the checksum of the stored content, otherwise ErrChecksumMismatch is returned.
func (s *Service) UpdateNote(ctx context.Context, id int64, content, ifMatch string) (*NoteDetail, error) {
	existing, err := s.db.GetNote(ctx, id)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != Checksum(existing.Content) {
		return nil, ErrChecksumMismatch
	}

	prev := envelope.Decode(existing.Content).Envelope.Attachments
	row, err := s.save(ctx, id, envelope.Decode(content).Envelope, prev)
	if err != nil {
		return nil, err
	}
	s.events.PublishChange(ctx, events.NewChange(events.EntityNote, events.Updated, id))
	return buildNoteDetail(row)
}

// DeleteNote removes every blob the note references, then the note itself.
// Blob failures are logged and do not stop the deletion.
func (s *Service) DeleteNote(ctx context.Context, id int64) error {
	row, err := s.db.GetNote(ctx, id)
	if err != nil {
		return err
	}
	atts := envelope.Decode(row.Content).Envelope.Attachments
	res := s.reconciler.Purge(ctx, atts)
	if err := s.store.RemoveDirIfEmpty(attachment.NoteDir(id)); err != nil {
		s.logger.WarnContext(ctx, "note directory cleanup failed",
			slog.Int64("id", id),
			slog.String("error", err.Error()))
	}
	if err := s.db.DeleteNote(ctx, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "note deleted",
		slog.Int64("id", id),
		slog.Int("blobs_deleted", res.Deleted),
		slog.Int("blobs_absent", res.AlreadyAbsent),
		slog.Int("blobs_failed", res.Failed))
	s.events.PublishChange(ctx, events.NewChange(events.EntityNote, events.Deleted, id))
	return nil
}

func (s *Service) save(ctx context.Context, id int64, env envelope.Envelope, prev []attachment.Attachment) (*database.NoteRow, error) {
	atts, err := s.reconciler.Reconcile(ctx, id, env.Attachments, prev)
	if err != nil {
		return nil, fmt.Errorf("reconcile note %d: %w", id, err)
	}
	env.Attachments = atts
	content, err := envelope.Encode(env)
	if err != nil {
		return nil, err
	}
	text := notetext.Parse(env.HTML)
	row := database.NoteRow{
		ID:       id,
		Content:  content,
		Title:    text.Title,
		BodyText: text.Body,
		Tags:     text.Tags,
		Checksum: Checksum(content),
	}
	if err := s.db.UpdateNote(ctx, row); err != nil {
		return nil, err
	}
	return s.db.GetNote(ctx, id)
}

func buildNoteDetail(row *database.NoteRow) (*NoteDetail, error) {
	dec := envelope.Decode(row.Content)
	content, err := envelope.Encode(dec.Envelope)
	if err != nil {
		return nil, err
	}
	text := notetext.Parse(dec.Envelope.HTML)
	return &NoteDetail{
		ID:          row.ID,
		Content:     content,
		HTML:        dec.Envelope.HTML,
		Attachments: dec.Envelope.Attachments,
		Format:      dec.Format,
		Title:       text.Title,
		Excerpt:     text.Excerpt,
		Tags:        text.Tags,
		Checksum:    Checksum(row.Content),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// Checksum returns the hex-encoded SHA-256 digest of stored note content.
func Checksum(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
