// Package handlers provides HTTP handlers for rebalance status.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/httpapi"
	"github.com/aristath/permanent/internal/modules/rebalancing"
	"github.com/aristath/permanent/internal/services"
)

// Engine is the part of services.Engine these handlers use
type Engine interface {
	GetView(ctx context.Context) (services.Valuation, error)
	BalanceNeeded(ctx context.Context) (rebalancing.BalanceNeeded, error)
}

// Handler handles rebalance HTTP requests
type Handler struct {
	engine Engine
	log    zerolog.Logger
}

// NewHandler creates a new rebalance handler
func NewHandler(engine Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		log:    log.With().Str("handler", "rebalancing").Logger(),
	}
}

// HandleGetReport handles GET /api/v2/rebalance
func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	val, err := h.engine.GetView(r.Context())
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"needs_rebalance": val.Rebalance.NeedsRebalance(),
		"report":          val.Rebalance,
		"messages":        val.Rebalance.Messages(),
	})
}

// HandleBalanceNeeded handles GET /api/v2/rebalance/balance-needed
func (h *Handler) HandleBalanceNeeded(w http.ResponseWriter, r *http.Request) {
	need, err := h.engine.BalanceNeeded(r.Context())
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"balance_needed": need,
	})
}

// RegisterRoutes registers the rebalance routes under /api/v2
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/rebalance", func(r chi.Router) {
		r.Get("/", h.HandleGetReport)
		r.Get("/balance-needed", h.HandleBalanceNeeded)
	})
}
