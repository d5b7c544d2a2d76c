package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted. Login, logout
// and health are public; everything else goes through AuthMiddleware with
// the given verifier (nil disables auth). sse, if non-nil, is mounted at
// GET /events.
func NewRouter(svc Services, verifier TokenVerifier, sse http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Get("/health", h.Health)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(verifier))

		r.Get("/auth/verify", h.Verify)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Post("/", h.CreateCategory)
			r.Get("/spending", h.CategorySpending)
			r.Get("/{id}", h.GetCategory)
			r.Put("/{id}", h.UpdateCategory)
			r.Delete("/{id}", h.DeleteCategory)
			r.Get("/{id}/expenses", h.CategoryExpenses)
		})

		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", h.ListExpenses)
			r.Post("/", h.CreateExpense)
			r.Get("/summary", h.ExpenseSummary)
			r.Get("/recurring", h.RecurringExpenses)
			r.Get("/export.xlsx", h.ExportExpenses)
			r.Get("/type/{type}", h.ExpensesByType)
			r.Get("/month/{year}/{month}", h.ExpensesByMonth)
			r.Get("/{id}", h.GetExpense)
			r.Put("/{id}", h.UpdateExpense)
			r.Delete("/{id}", h.DeleteExpense)
		})

		r.Route("/notes", func(r chi.Router) {
			r.Get("/", h.ListNotes)
			r.Post("/", h.CreateNote)
			r.Get("/{id}", h.GetNote)
			r.Put("/{id}", h.UpdateNote)
			r.Delete("/{id}", h.DeleteNote)
		})

		r.Post("/uploads", h.Upload)

		r.Route("/recurring", func(r chi.Router) {
			r.Get("/offer", h.RecurringOffer)
			r.Post("/accept", h.AcceptRecurring)
			r.Post("/skip", h.SkipRecurring)
		})

		if sse != nil {
			r.Get("/events", sse.ServeHTTP)
		}
	})

	return r
}

// UploadsHandler serves stored blobs read-only below prefix (e.g. "/uploads/").
// Directory listings are not exposed.
func UploadsHandler(prefix, root string) http.Handler {
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(root)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
