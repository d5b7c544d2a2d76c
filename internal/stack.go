package internal

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/tirelire/internal/attachment"
	"github.com/starford/tirelire/internal/auth"
	"github.com/starford/tirelire/internal/database"
	"github.com/starford/tirelire/internal/events"
	"github.com/starford/tirelire/internal/ledger"
	"github.com/starford/tirelire/internal/noteservice"
	"github.com/starford/tirelire/internal/recurring"
	"github.com/starford/tirelire/internal/storage"
)

// stack is the set of stores and services shared by every entry point.
type stack struct {
	db        *database.DB
	store     *storage.FS
	ledger    *ledger.Service
	notes     *noteservice.Service
	auth      *auth.Service
	recurring *recurring.Materializer
	closers   []func() error
}

// newStack opens storage and the database and builds the services. Changes
// go to local (may be nil) and, when configured, to the AMQP exchange.
func newStack(app *application, logger *slog.Logger, local events.Publisher) (*stack, error) {
	cfg := app.config
	st := &stack{}

	if err := os.MkdirAll(cfg.Uploads.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Uploads.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	st.store = store

	db, err := database.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	st.db = db
	st.closers = append(st.closers, db.Close)

	pub := events.Fanout{}
	if local != nil {
		pub = append(pub, local)
	}
	if cfg.AMQP.Enabled() {
		amqpPub, err := events.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("init amqp: %w", err)
		}
		pub = append(pub, amqpPub)
		st.closers = append(st.closers, amqpPub.Close)
		logger.Info("Publishing change events", slog.String("exchange", cfg.AMQP.Exchange))
	}

	var markers recurring.MarkerStore = db.Settings()
	if app.markerFile != "" {
		markers = recurring.NewFileMarkerStore(app.markerFile)
	}

	st.ledger = ledger.NewService(db, pub)
	st.notes = noteservice.NewService(db, store, attachment.NewReconciler(store, logger), pub, logger)
	st.auth = auth.NewService(db, auth.Options{
		PIN:      cfg.Auth.PIN,
		PINHash:  cfg.Auth.PINHash,
		TokenTTL: cfg.Auth.TokenTTL,
	})
	st.recurring = recurring.New(st.ledger, markers, recurring.WithLogger(logger))
	return st, nil
}

// Close releases resources in reverse order of acquisition.
func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			slog.Warn("close failed", slog.String("error", err.Error()))
		}
	}
}
