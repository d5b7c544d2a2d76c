package api

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tirelire/internal/ledger"
	"github.com/starford/tirelire/internal/models"
)

// ListExpenses handles GET /api/expenses. Results are newest first; limit
// defaults to 100.
func (h *Handler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	f := models.ExpenseFilter{
		CategoryID:  int64(q.integer("categoryId")),
		Type:        models.TransactionType(q.str("type")),
		DateFrom:    q.date("dateFrom"),
		DateTo:      q.date("dateTo"),
		MinAmount:   q.amount("minAmount"),
		MaxAmount:   q.amount("maxAmount"),
		Search:      q.str("search"),
		Tags:        splitTags(q.str("tags")),
		IsRecurring: q.boolPtr("isRecurring"),
		Limit:       q.integer("limit"),
		Offset:      q.integer("offset"),
	}
	if !q.ok(w) {
		return
	}
	if f.Limit < 0 || f.Offset < 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("limit and offset must not be negative"))
		return
	}
	rows, err := h.Ledger.ListExpenses(r.Context(), f)
	if err != nil {
		writeError(w, err, "list expenses", "expense not found")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// GetExpense handles GET /api/expenses/{id}.
func (h *Handler) GetExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	e, err := h.Ledger.GetExpense(r.Context(), id)
	if err != nil {
		writeError(w, err, "get expense", "expense not found", slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// CreateExpense handles POST /api/expenses.
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	e, err := h.Ledger.CreateExpense(r.Context(), req.expense())
	if err != nil {
		writeError(w, err, "create expense", "expense not found")
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// UpdateExpense handles PUT /api/expenses/{id}.
func (h *Handler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var patch models.ExpensePatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	e, err := h.Ledger.UpdateExpense(r.Context(), id, patch)
	if err != nil {
		writeError(w, err, "update expense", "expense not found", slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// DeleteExpense handles DELETE /api/expenses/{id}.
func (h *Handler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	if err := h.Ledger.DeleteExpense(r.Context(), id); err != nil {
		writeError(w, err, "delete expense", "expense not found", slog.Int64("id", id))
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "expense deleted successfully"})
}

// ExpensesByType handles GET /api/expenses/type/{type}.
func (h *Handler) ExpensesByType(w http.ResponseWriter, r *http.Request) {
	t := models.TransactionType(chi.URLParam(r, "type"))
	rows, err := h.Ledger.ListExpenses(r.Context(), models.ExpenseFilter{Type: t, Limit: -1})
	if err != nil {
		writeError(w, err, "expenses by type", "expense not found", slog.String("type", string(t)))
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// ExpensesByMonth handles GET /api/expenses/month/{year}/{month}.
func (h *Handler) ExpensesByMonth(w http.ResponseWriter, r *http.Request) {
	year, yerr := strconv.Atoi(chi.URLParam(r, "year"))
	month, merr := strconv.Atoi(chi.URLParam(r, "month"))
	if yerr != nil || merr != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("year and month must be numbers"))
		return
	}
	rows, err := h.Ledger.ExpensesByMonth(r.Context(), year, time.Month(month))
	if err != nil {
		writeError(w, err, "expenses by month", "expense not found")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// ExpenseSummary handles GET /api/expenses/summary?dateFrom=&dateTo=.
func (h *Handler) ExpenseSummary(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	from, to := q.date("dateFrom"), q.date("dateTo")
	if !q.ok(w) {
		return
	}
	sum, err := h.Ledger.Summary(r.Context(), from, to)
	if err != nil {
		writeError(w, err, "expense summary", "expense not found")
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// RecurringExpenses handles GET /api/expenses/recurring.
func (h *Handler) RecurringExpenses(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Ledger.RecurringExpenses(r.Context())
	if err != nil {
		writeError(w, err, "recurring expenses", "expense not found")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// ExportExpenses handles GET /api/expenses/export.xlsx?dateFrom=&dateTo=.
func (h *Handler) ExportExpenses(w http.ResponseWriter, r *http.Request) {
	q := query{r: r}
	from, to := q.date("dateFrom"), q.date("dateTo")
	if !q.ok(w) {
		return
	}
	var buf bytes.Buffer
	if err := h.Ledger.ExportXLSX(r.Context(), &buf, from, to); err != nil {
		writeError(w, err, "export expenses", "expense not found")
		return
	}
	w.Header().Set("Content-Type", ledger.XLSXContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="expenses.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
