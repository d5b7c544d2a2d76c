package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/starford/tirelire/internal/attachment"
)

const multipartMemory = 8 << 20

// Upload handles POST /api/uploads (multipart/form-data, field "file"). The
// blob is staged under temp/ until a note save adopts it.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart framing around the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes+1<<20)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody(tooLargeMessage(h.MaxUploadBytes)))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody("invalid multipart form"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("no file provided"))
		return
	}
	defer file.Close()

	if header.Size > h.MaxUploadBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody(tooLargeMessage(h.MaxUploadBytes)))
		return
	}

	id := uuid.NewString()
	rel := attachment.TempPath(id, attachment.SafeExt(header.Filename))
	size, err := h.Store.WriteStream(rel, file)
	if err != nil {
		slog.Error("upload failed", slog.String("name", header.Filename), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	writeJSON(w, http.StatusCreated, UploadResponse{
		ID:          id,
		Name:        header.Filename,
		Type:        mimeType,
		Size:        size,
		URL:         attachment.PublicURL(rel),
		StoragePath: rel,
		IsTemp:      true,
	})
}

func tooLargeMessage(limit int64) string {
	return fmt.Sprintf("file too large, maximum size is %d MB", limit>>20)
}
