// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tirelire/internal/api"
	"github.com/starford/tirelire/internal/janitor"
	"github.com/starford/tirelire/internal/mcpserver"
	"github.com/starford/tirelire/internal/sse"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
}

// Run starts the HTTP server and the background workers and blocks until a
// shutdown signal arrives or one of them fails.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.newLogger()
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("uploads_path", cfg.Uploads.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(cfg.Events.SummaryThrottle, sse.WithHeartbeat(cfg.Events.Heartbeat))
	defer broker.Close()

	st, err := newStack(app, logger, broker)
	if err != nil {
		return err
	}
	defer st.Close()

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHandler(cfg, st, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		cancel()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	// Expired token cleanup.
	if cfg.Auth.AuthEnabled() {
		g.Go(func() error {
			return st.auth.RunCleanup(gCtx, cfg.Auth.CleanupInterval)
		})
	}

	// Staged upload sweeper.
	g.Go(func() error {
		sweeper := janitor.NewSweeper(st.store, cfg.Uploads.TempTTL, cfg.Uploads.SweepInterval, logger)
		if err := sweeper.Run(gCtx); err != nil {
			logger.Warn("upload sweeper disabled", slog.String("error", err.Error()))
		}
		return nil
	})

	// Recurring transaction check once the server has settled.
	if cfg.Recurring.Enabled {
		g.Go(func() error {
			return st.recurring.Start(gCtx, cfg.Recurring.SettleDelay)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// newHandler builds the root router: health probes, static uploads and the
// API under /api.
func newHandler(cfg *Config, st *stack, broker *sse.Broker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := st.db.Ping(r.Context()); err != nil {
			slog.Error("readiness check failed", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	r.Handle("/uploads/*", api.UploadsHandler("/uploads/", st.store.Root()))

	var verifier api.TokenVerifier
	if cfg.Auth.AuthEnabled() {
		verifier = st.auth
	}
	var events http.Handler
	if broker != nil {
		events = broker
	}
	r.Mount("/api", api.NewRouter(api.Services{
		Ledger:         st.ledger,
		Notes:          st.notes,
		Auth:           st.auth,
		Recurring:      st.recurring,
		Store:          st.store,
		MaxUploadBytes: cfg.Uploads.MaxUploadBytes,
	}, verifier, events))

	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// RunMCP serves the MCP tools over stdio. Logs go to stderr unless
// overridden, since stdout carries the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()
	slog.SetDefault(logger)

	st, err := newStack(app, logger, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	logger.Info("Starting MCP server on stdio")
	return mcpserver.New(st.ledger, st.notes, st.recurring).ServeStdio()
}

// Recurring actions for RunRecurring.
const (
	RecurringCheck  = "check"
	RecurringAccept = "accept"
	RecurringSkip   = "skip"
)

// RunRecurring performs one recurring-offer action and writes the outcome to
// out as JSON.
func RunRecurring(ctx context.Context, action string, out io.Writer, opts ...Option) error {
	switch action {
	case RecurringCheck, RecurringAccept, RecurringSkip:
	default:
		return fmt.Errorf("unknown recurring action %q", action)
	}
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()

	st, err := newStack(app, logger, nil)
	if err != nil {
		return err
	}
	defer st.Close()

	offer, err := st.recurring.Check(ctx)
	if err != nil {
		return err
	}

	var result any = offer
	switch action {
	case RecurringAccept:
		res, err := st.recurring.Accept(ctx)
		if err != nil {
			return err
		}
		result = res
	case RecurringSkip:
		if err := st.recurring.Skip(ctx); err != nil {
			return err
		}
		result = map[string]string{"skipped": offer.Month}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
