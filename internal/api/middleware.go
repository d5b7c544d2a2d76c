// Package api implements the tirelire REST API using chi.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/tirelire/internal/auth"
)

// TokenVerifier checks a bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) error
}

// AuthMiddleware returns middleware that validates a Bearer token.
// A nil verifier disables authentication. A missing header yields 401; an
// unknown or expired token yields 403.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r)
				return
			}
			token, ok := bearerToken(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, errorBody("access token required"))
				return
			}
			if err := verifier.Verify(r.Context(), token); err != nil {
				if errors.Is(err, auth.ErrInvalidToken) {
					writeJSON(w, http.StatusForbidden, errorBody("invalid or expired token"))
					return
				}
				slog.Error("token verification failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return token, token != ""
}
