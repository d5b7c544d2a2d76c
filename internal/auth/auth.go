// Package auth issues and checks the opaque session tokens handed out after a PIN login.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/tirelire/internal/apperr"
	"github.com/starford/tirelire/internal/models"
)

// DefaultTokenTTL is how long a token stays valid after login.
const DefaultTokenTTL = 30 * 24 * time.Hour

var (
	ErrPINRequired  = fmt.Errorf("%w: PIN code is required", apperr.ErrInvalidInput)
	ErrInvalidPIN   = fmt.Errorf("%w: invalid PIN code", apperr.ErrUnauthorized)
	ErrInvalidToken = errors.New("invalid or expired token")
)

// TokenStore persists issued tokens.
type TokenStore interface {
	InsertToken(ctx context.Context, t models.AuthToken) error
	GetToken(ctx context.Context, token string) (*models.AuthToken, error)
	DeleteToken(ctx context.Context, token string) error
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// Options configures a Service. PINHash, a bcrypt hash, takes precedence over PIN.
type Options struct {
	PIN      string
	PINHash  string
	TokenTTL time.Duration
	Now      func() time.Time
}

// Service checks PINs and manages tokens.
type Service struct {
	store   TokenStore
	pin     string
	pinHash []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewService creates an auth service.
func NewService(store TokenStore, opts Options) *Service {
	s := &Service{store: store, pin: opts.PIN, ttl: opts.TokenTTL, now: opts.Now}
	if opts.PINHash != "" {
		s.pinHash = []byte(opts.PINHash)
	}
	if s.ttl <= 0 {
		s.ttl = DefaultTokenTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// HashPIN returns the bcrypt hash to put in auth.pin_hash.
func HashPIN(pin string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash pin: %w", err)
	}
	return string(h), nil
}

// Login checks pin and issues a new token.
func (s *Service) Login(ctx context.Context, pin string) (*models.AuthToken, error) {
	if pin == "" {
		return nil, ErrPINRequired
	}
	if !s.checkPIN(pin) {
		return nil, ErrInvalidPIN
	}
	now := s.now().UTC().Truncate(time.Second)
	tok := models.AuthToken{
		Token:     uuid.NewString(),
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	if err := s.store.InsertToken(ctx, tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func (s *Service) checkPIN(pin string) bool {
	if s.pinHash != nil {
		return bcrypt.CompareHashAndPassword(s.pinHash, []byte(pin)) == nil
	}
	return s.pin != "" && subtle.ConstantTimeCompare([]byte(pin), []byte(s.pin)) == 1
}

// Logout revokes token. Unknown tokens yield apperr.ErrNotFound.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.DeleteToken(ctx, token)
}

// Verify reports whether token is known and unexpired.
func (s *Service) Verify(ctx context.Context, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	t, err := s.store.GetToken(ctx, token)
	if errors.Is(err, apperr.ErrNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return err
	}
	if !s.now().Before(t.ExpiresAt) {
		return ErrInvalidToken
	}
	return nil
}

// Cleanup deletes expired tokens.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredTokens(ctx, s.now())
}

// RunCleanup calls Cleanup every interval until ctx is done.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.Cleanup(ctx)
			if err != nil {
				slog.Error("token cleanup failed", slog.String("error", err.Error()))
				continue
			}
			if n > 0 {
				slog.Info("expired tokens removed", slog.Int64("count", n))
			}
		}
	}
}
