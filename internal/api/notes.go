package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/tirelire/internal/noteservice"
)

// ListNotes handles GET /api/notes?search=&tag=.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	notes, err := h.Notes.ListNotes(r.Context(), noteservice.ListOptions{
		Tag:    q.Get("tag"),
		Search: q.Get("search"),
	})
	if err != nil {
		writeError(w, err, "list notes", "note not found")
		return
	}
	writeJSON(w, http.StatusOK, notes)
}

// GetNote handles GET /api/notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	note, err := h.Notes.GetNote(r.Context(), id)
	if err != nil {
		writeError(w, err, "get note", "note not found", slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// CreateNote handles POST /api/notes.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	note, err := h.Notes.CreateNote(r.Context(), req.Content)
	if err != nil {
		writeError(w, err, "create note", "note not found")
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/{id}. An If-Match header carrying the
// note's checksum turns the write into a compare-and-swap.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req NoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ifMatch := strings.Trim(r.Header.Get("If-Match"), `"`)

	note, err := h.Notes.UpdateNote(r.Context(), id, req.Content, ifMatch)
	if err != nil {
		writeError(w, err, "update note", "note not found", slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// DeleteNote handles DELETE /api/notes/{id}.
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Notes.DeleteNote(r.Context(), id); err != nil {
		writeError(w, err, "delete note", "note not found", slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "note deleted successfully"})
}
