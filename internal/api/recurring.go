package api

import (
	"net/http"
)

// RecurringOffer handles GET /api/recurring/offer. It runs a check when idle
// and returns the pending offer, if any.
func (h *Handler) RecurringOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := h.Recurring.Check(r.Context())
	if err != nil {
		writeError(w, err, "recurring check", "no offer")
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// AcceptRecurring handles POST /api/recurring/accept.
func (h *Handler) AcceptRecurring(w http.ResponseWriter, r *http.Request) {
	res, err := h.Recurring.Accept(r.Context())
	if err != nil {
		writeError(w, err, "recurring accept", "no offer")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// SkipRecurring handles POST /api/recurring/skip.
func (h *Handler) SkipRecurring(w http.ResponseWriter, r *http.Request) {
	if err := h.Recurring.Skip(r.Context()); err != nil {
		writeError(w, err, "recurring skip", "no offer")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": h.Recurring.State()})
}
