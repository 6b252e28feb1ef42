package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/order-replacement/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса замены товаров.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/orders/{orderName}", func(r chi.Router) {
		r.Post("/responses", h.SubmitResponse)
		r.Get("/proposals", h.GetProposals)
	})

	r.Route("/api/staff", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/orders/{orderID}/proposals", h.BuildProposal)
		r.Post("/orders/{orderID}/reconcile", h.Reconcile)
		r.Get("/batches", h.ListBatches)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
