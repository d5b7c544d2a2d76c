package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/starford/tirelire/internal/models"
)

// ListCategories handles GET /api/categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	f := models.CategoryFilter{
		IsActive: q.boolPtr("isActive"),
		Show:     q.boolPtr("show"),
		Search:   q.str("search"),
	}
	if !q.ok(w) {
		return
	}
	cats, err := h.Ledger.ListCategories(r.Context(), f)
	if err != nil {
		writeError(w, err, "list categories", "category not found")
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

// GetCategory handles GET /api/categories/{id}.
func (h *Handler) GetCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	c, err := h.Ledger.GetCategory(r.Context(), id)
	if err != nil {
		writeError(w, err, "get category", "category not found", slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CreateCategory handles POST /api/categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.Ledger.CreateCategory(r.Context(), req.category())
	if err != nil {
		writeError(w, err, "create category", "category not found")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateCategory handles PUT /api/categories/{id}. Only fields present in
// the body change.
func (h *Handler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var patch models.CategoryPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	c, err := h.Ledger.UpdateCategory(r.Context(), id, patch)
	if err != nil {
		writeError(w, err, "update category", "category not found", slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteCategory handles DELETE /api/categories/{id}. Categories that still
// have expenses are refused with 409.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.DeleteCategory(r.Context(), id); err != nil {
		writeError(w, err, "delete category", "category not found", slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "category deleted successfully"})
}

// CategoryExpenses handles GET /api/categories/{id}/expenses.
func (h *Handler) CategoryExpenses(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	rows, err := h.Ledger.CategoryExpenses(r.Context(), id)
	if err != nil {
		writeError(w, err, "category expenses", "category not found", slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// CategorySpending handles GET /api/categories/spending?year=&month=.
// Missing values default to the current month.
func (h *Handler) CategorySpending(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	year, month := q.integer("year"), q.integer("month")
	if !q.ok(w) {
		return
	}
	report, err := h.Ledger.Spending(r.Context(), year, time.Month(month))
	if err != nil {
		writeError(w, err, "category spending", "category not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
