package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/starford/tirelire/internal/auth"
	"github.com/starford/tirelire/internal/ledger"
	"github.com/starford/tirelire/internal/models"
	"github.com/starford/tirelire/internal/noteservice"
	"github.com/starford/tirelire/internal/recurring"
	"github.com/starford/tirelire/internal/storage"
)

// DefaultMaxUploadBytes bounds a single upload when Services leaves it unset.
const DefaultMaxUploadBytes = 100 << 20

// Services are the domain services the handlers call.
type Services struct {
	Ledger         *ledger.Service
	Notes          *noteservice.Service
	Auth           *auth.Service
	Recurring      *recurring.Materializer
	Store          storage.Provider
	MaxUploadBytes int64
}

// Handler holds API route handlers.
type Handler struct {
	Services
	now func() time.Time
}

// NewHandler creates a new Handler.
func NewHandler(svc Services) *Handler {
	if svc.MaxUploadBytes <= 0 {
		svc.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{Services: svc, now: time.Now}
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// idParam parses the {id} URL parameter, writing a 400 when it is not a
// positive integer.
func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return 0, false
	}
	return id, true
}

// query wraps URL query parsing and remembers the first bad parameter.
type query struct {
	r   *http.Request
	bad string
}

func (q *query) str(name string) string {
	return q.r.URL.Query().Get(name)
}

func (q *query) integer(name string) int {
	v := q.str(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		q.fail(name)
	}
	return n
}

func (q *query) boolPtr(name string) *bool {
	v := q.str(name)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		q.fail(name)
		return nil
	}
	return &b
}

func (q *query) date(name string) *models.Date {
	v := q.str(name)
	if v == "" {
		return nil
	}
	d, err := models.ParseDate(v)
	if err != nil {
		q.fail(name)
		return nil
	}
	return &d
}

func (q *query) amount(name string) *decimal.Decimal {
	v := q.str(name)
	if v == "" {
		return nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		q.fail(name)
		return nil
	}
	return &d
}

func (q *query) fail(name string) {
	if q.bad == "" {
		q.bad = name
	}
}

// ok writes a 400 naming the first malformed parameter, if any.
func (q *query) ok(w http.ResponseWriter) bool {
	if q.bad != "" {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid query parameter: "+q.bad))
		return false
	}
	return true
}
