package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the allocation routes under /api/v2
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/allocation", func(r chi.Router) {
		r.Get("/suggest", h.HandleSuggest)
		r.Get("/suggest-after-crypto", h.HandleSuggestAfterCrypto)
		r.Post("/apply", h.HandleApply)
	})

	r.Get("/crypto/snapshot", h.HandleCryptoSnapshot)
}
