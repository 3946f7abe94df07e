package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the ledger routes under /api/v2
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Get("/metrics", h.HandleMetrics)
		r.Get("/days", h.HandleDays)
		r.Delete("/{id}", h.HandleDelete)
	})
}
