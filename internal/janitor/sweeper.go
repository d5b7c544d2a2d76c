// Package janitor removes staged uploads that were never attached to a note.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/tirelire/internal/storage"
)

// Store is the part of the blob store the sweeper needs.
type Store interface {
	List(dir string) ([]storage.FileInfo, error)
	Delete(path string) (storage.DeleteResult, error)
	Abs(rel string) (string, error)
}

// Sweeper deletes files under temp/ older than a TTL.
type Sweeper struct {
	store    Store
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu  sync.Mutex
	due time.Time
}

// NewSweeper creates a sweeper. interval caps how far ahead a sweep is armed.
func NewSweeper(store Store, ttl, interval time.Duration, logger *slog.Logger) *Sweeper {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{store: store, ttl: ttl, interval: interval, logger: logger, now: time.Now}
}

// Sweep deletes expired staged uploads. It returns how many were removed and
// when the oldest remaining one expires (zero if none remain).
func (s *Sweeper) Sweep(ctx context.Context) (int, time.Time, error) {
	files, err := s.store.List(storage.TempDir)
	if err != nil {
		return 0, time.Time{}, err
	}
	now := s.now()
	removed := 0
	var next time.Time
	for _, f := range files {
		expires := f.ModTime.Add(s.ttl)
		if expires.After(now) {
			if next.IsZero() || expires.Before(next) {
				next = expires
			}
			continue
		}
		res, err := s.store.Delete(f.Path)
		switch res {
		case storage.Deleted:
			removed++
			s.logger.DebugContext(ctx, "janitor: removed stale upload", slog.String("path", f.Path))
		case storage.AlreadyAbsent:
		default:
			s.logger.WarnContext(ctx, "janitor: delete failed",
				slog.String("path", f.Path),
				slog.String("error", err.Error()))
		}
	}
	return removed, next, nil
}

// Pending reports when the next sweep is due, or the zero time when none is
// armed.
func (s *Sweeper) Pending() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.due
}

func (s *Sweeper) setDue(t time.Time) {
	s.mu.Lock()
	s.due = t
	s.mu.Unlock()
}

// Run sweeps once and then watches temp/. A sweep is armed only while staged
// uploads exist: for the oldest one's expiry, or ttl after a new upload
// appears, never further out than interval. Run returns when ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	dir, err := s.store.Abs(storage.TempDir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("janitor: create temp dir: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("janitor: watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("janitor: watch %s: %w", dir, err)
	}
	s.logger.Info("janitor: started", slog.String("dir", dir), slog.Duration("ttl", s.ttl))

	var (
		timer *time.Timer
		fire  <-chan time.Time
		due   time.Time
	)
	disarm := func() {
		if timer != nil {
			timer.Stop()
		}
		timer, fire, due = nil, nil, time.Time{}
		s.setDue(due)
	}
	arm := func(at time.Time) {
		if limit := s.now().Add(s.interval); at.After(limit) {
			at = limit
		}
		if timer != nil {
			timer.Stop()
		}
		due = at
		timer = time.NewTimer(time.Until(at))
		fire = timer.C
		s.setDue(due)
	}
	defer disarm()

	sweep := func() {
		n, next, err := s.Sweep(ctx)
		switch {
		case err != nil:
			s.logger.Warn("janitor: sweep failed", slog.String("error", err.Error()))
			arm(s.now().Add(s.interval))
			return
		case n > 0:
			s.logger.Info("janitor: swept uploads", slog.Int("removed", n))
		}
		if next.IsZero() {
			disarm()
			return
		}
		arm(next)
	}
	sweep()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("janitor: stopped")
			return nil

		case <-fire:
			sweep()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create == 0 {
				continue
			}
			if at := s.now().Add(s.ttl); due.IsZero() || at.Before(due) {
				arm(at)
			}

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("janitor: watcher error", slog.String("error", werr.Error()))
		}
	}
}
