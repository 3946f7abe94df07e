package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the portfolio routes under /api/v2
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.HandleGetState)

	r.Get("/portfolio", h.HandleGetPortfolio)
	r.Put("/portfolio", h.HandlePutPortfolio)

	r.Route("/assets", func(r chi.Router) {
		r.Post("/", h.HandleCreateAsset)
		r.Post("/batch", h.HandleBatchUpdate)
		r.Put("/{id}", h.HandleUpdateAsset)
		r.Delete("/{id}", h.HandleDeleteAsset)
		r.Post("/{id}/move", h.HandleMoveAsset)
	})
}
