package api

import (
	"net/http"
)

// Login handles POST /api/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tok, err := h.Auth.Login(r.Context(), req.PIN)
	if err != nil {
		writeError(w, err, "login", "not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     tok.Token,
		"expiresAt": tok.ExpiresAt,
	})
}

// Logout handles POST /api/auth/logout. It is public so an expired token can
// still be revoked.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorBody("no token provided"))
		return
	}
	if err := h.Auth.Logout(r.Context(), token); err != nil {
		writeError(w, err, "logout", "token not found or already invalidated")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "successfully logged out"})
}

// Verify handles GET /api/auth/verify. Reaching it means the middleware
// accepted the token.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}
