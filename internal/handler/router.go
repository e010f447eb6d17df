package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/ironlibrary/loan-service/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса выдачи книг.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.RequestID)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/loans", func(r chi.Router) {
		r.Get("/", h.GetLoans)
		r.Post("/", h.CreateLoan)
		r.Post("/quick", h.CreateQuickLoan)

		r.Get("/overdue", h.GetOverdueLoans)
		r.Get("/due-soon", h.GetLoansDueSoon)
		r.Get("/stats", h.GetStatistics)
		r.Get("/health", h.Health)
		r.Get("/events", h.StreamEvents)

		r.Get("/user/{userID}", h.GetLoansByUser)
		r.Get("/user/{userID}/active", h.GetActiveLoansByUser)
		r.Get("/book/{bookID}", h.GetLoansByBook)

		r.Get("/{id}", h.GetLoan)
		r.Put("/{id}", h.UpdateLoan)
		r.Delete("/{id}", h.DeleteLoan)
		r.Patch("/{id}/return", h.ReturnLoan)
		r.Patch("/{id}/extend", h.ExtendLoan)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
