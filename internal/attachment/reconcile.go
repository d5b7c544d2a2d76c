package attachment

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"

	"github.com/starford/tirelire/internal/storage"
)

// BlobStore is the subset of storage.Provider the reconciler needs.
type BlobStore interface {
	Write(path string, content []byte) error
	Move(oldPath, newPath string) error
	Delete(path string) (storage.DeleteResult, error)
	Exists(path string) (bool, error)
}

// Reconciler makes blob storage match a note's desired attachment list.
type Reconciler struct {
	store  BlobStore
	logger *slog.Logger
	newID  func() string
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithIDGenerator replaces the generator used for attachments that arrive without an id.
func WithIDGenerator(fn func() string) Option {
	return func(r *Reconciler) {
		r.newID = fn
	}
}

// NewReconciler creates a Reconciler over store.
func NewReconciler(store BlobStore, logger *slog.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		store:  store,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile returns the authoritative attachment list for noteID and applies the
// writes, moves and deletes needed to back it. Entries are processed in order and
// the output keeps that order. Existing blobs are deleted only after every entry
// succeeded; on error, blobs written earlier in the same call are left in place.
func (r *Reconciler) Reconcile(ctx context.Context, noteID int64, incoming, existing []Attachment) ([]Attachment, error) {
	byID := make(map[string]Attachment, len(existing))
	for _, e := range existing {
		if e.ID != "" {
			byID[e.ID] = e
		}
	}

	dir := NoteDir(noteID)
	out := make([]Attachment, 0, len(incoming))
	kept := make(map[string]struct{}, len(incoming))
	claimed := make(map[string]struct{}, len(incoming))

	for i, in := range incoming {
		v, err := Classify(in)
		if err != nil {
			return nil, fmt.Errorf("attachment: entry %d: %w", i, err)
		}

		var rec Attachment
		switch v := v.(type) {
		case Pending:
			rec, err = r.adopt(ctx, dir, v)
		case Inline:
			rec, err = r.materialize(dir, v)
		case Final:
			rec, err = r.passThrough(dir, in, v)
		case Reference:
			prev, ok := byID[v.ID]
			if !ok {
				r.logger.WarnContext(ctx, "attachment: dropping reference to unknown attachment",
					slog.Int64("note_id", noteID),
					slog.String("attachment_id", v.ID))
				continue
			}
			rec = prev
		}
		if err != nil {
			return nil, fmt.Errorf("attachment: entry %d: %w", i, err)
		}
		if _, dup := kept[rec.ID]; dup {
			return nil, fmt.Errorf("attachment: entry %d: %w: duplicate id %s", i, ErrMalformedAttachment, rec.ID)
		}
		kept[rec.ID] = struct{}{}
		if rec.StoragePath != "" {
			key := cleanRel(rec.StoragePath)
			if _, dup := claimed[key]; dup {
				return nil, fmt.Errorf("attachment: entry %d: %w: %s is used twice", i, ErrMalformedAttachment, key)
			}
			claimed[key] = struct{}{}
		}
		out = append(out, rec)
	}

	// A blob goes away only when no output entry points at it, whatever id
	// owned it before.
	for _, e := range existing {
		if e.StoragePath == "" {
			continue
		}
		if _, ok := claimed[cleanRel(e.StoragePath)]; ok {
			continue
		}
		if err := r.remove(ctx, e.StoragePath); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (r *Reconciler) adopt(ctx context.Context, dir string, v Pending) (Attachment, error) {
	if v.Name == "" || !underDir(v.TempPath, storage.TempDir) {
		return Attachment{}, fmt.Errorf("%w: staged upload %q", ErrMalformedAttachment, v.TempPath)
	}
	ok, err := r.store.Exists(v.TempPath)
	if err != nil {
		return Attachment{}, err
	}
	if !ok {
		return Attachment{}, fmt.Errorf("%w: %s", ErrTempMissing, v.TempPath)
	}

	v.ID = r.ensureID(v.ID)
	ext := SafeExt(v.Name)
	if ext == "" {
		ext = SafeExt(v.TempPath)
	}
	dst := path.Join(dir, v.ID+ext)
	if err := r.store.Move(v.TempPath, dst); err != nil {
		return Attachment{}, err
	}
	r.logger.DebugContext(ctx, "attachment: adopted staged upload",
		slog.String("from", v.TempPath),
		slog.String("to", dst))
	return Final{Meta: v.Meta, StoragePath: dst}.Record(), nil
}

func (r *Reconciler) materialize(dir string, v Inline) (Attachment, error) {
	if v.Name == "" {
		return Attachment{}, fmt.Errorf("%w: inline attachment has no name", ErrMalformedAttachment)
	}
	mimeType, data, err := DecodeDataURL(v.DataURL)
	if err != nil {
		return Attachment{}, err
	}

	v.ID = r.ensureID(v.ID)
	ext := SafeExt(v.Name)
	if ext == "" {
		ext = ExtForMIME(mimeType)
	}
	dst := path.Join(dir, v.ID+ext)
	if err := r.store.Write(dst, data); err != nil {
		return Attachment{}, err
	}
	if v.Type == "" {
		v.Type = mimeType
	}
	v.Size = int64(len(data))
	return Final{Meta: v.Meta, StoragePath: dst}.Record(), nil
}

// passThrough keeps an already stored attachment. Its blob must exist under
// the note's directory.
func (r *Reconciler) passThrough(dir string, in Attachment, v Final) (Attachment, error) {
	if !underDir(v.StoragePath, dir) {
		return Attachment{}, fmt.Errorf("%w: %s is outside %s", ErrMalformedAttachment, v.StoragePath, dir)
	}
	ok, err := r.store.Exists(v.StoragePath)
	if err != nil {
		return Attachment{}, err
	}
	if !ok {
		return Attachment{}, fmt.Errorf("%w: %s does not exist", ErrMalformedAttachment, v.StoragePath)
	}
	in.StoragePath = v.StoragePath
	if in.URL == "" {
		in.URL = PublicURL(v.StoragePath)
	}
	return in, nil
}

func (r *Reconciler) remove(ctx context.Context, p string) error {
	res, err := r.store.Delete(p)
	switch res {
	case storage.Deleted:
		r.logger.DebugContext(ctx, "attachment: blob deleted", slog.String("path", p))
		return nil
	case storage.AlreadyAbsent:
		r.logger.WarnContext(ctx, "attachment: blob already absent", slog.String("path", p))
		return nil
	default:
		return fmt.Errorf("attachment: delete %s: %w", p, err)
	}
}

func (r *Reconciler) ensureID(id string) string {
	if id != "" {
		return id
	}
	return r.newID()
}

// PurgeResult counts the outcomes of Purge.
type PurgeResult struct {
	Deleted       int
	AlreadyAbsent int
	Failed        int
}

// Purge deletes every stored blob in atts. Failures are logged and counted,
// never returned, so one bad file does not block the rest.
func (r *Reconciler) Purge(ctx context.Context, atts []Attachment) PurgeResult {
	var res PurgeResult
	for _, a := range atts {
		if a.StoragePath == "" {
			continue
		}
		out, err := r.store.Delete(a.StoragePath)
		switch out {
		case storage.Deleted:
			res.Deleted++
		case storage.AlreadyAbsent:
			res.AlreadyAbsent++
			r.logger.WarnContext(ctx, "attachment: blob already absent", slog.String("path", a.StoragePath))
		default:
			res.Failed++
			r.logger.ErrorContext(ctx, "attachment: purge failed",
				slog.String("path", a.StoragePath),
				slog.String("error", err.Error()))
		}
	}
	return res
}
