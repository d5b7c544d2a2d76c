package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/tirelire/internal/apperr"
	"github.com/starford/tirelire/internal/attachment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

type messageResponse struct {
	Message string `json:"message"`
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeError maps a service error onto a status code. Anything unrecognised
// is logged and reported as a 500 without detail.
func writeError(w http.ResponseWriter, err error, op string, notFound string, attrs ...any) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(notFound))
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(clientMessage(err)))
	case errors.Is(err, apperr.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, errorBody(clientMessage(err)))
	case errors.Is(err, attachment.ErrTempMissing):
		writeJSON(w, http.StatusBadRequest, errorBody("uploaded attachment is no longer available"))
	case errors.Is(err, apperr.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, errorBody(clientMessage(err)))
	default:
		slog.Error(op+" failed", append(attrs, slog.String("error", err.Error()))...)
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// clientMessage strips the sentinel prefix from a wrapped error so the
// response reads "amount: must be greater than 0" rather than
// "invalid input: amount: ...".
func clientMessage(err error) string {
	msg := err.Error()
	for _, s := range []error{apperr.ErrInvalidInput, apperr.ErrConflict, apperr.ErrUnauthorized} {
		msg = strings.TrimPrefix(msg, s.Error()+": ")
	}
	return msg
}
