// Package handlers provides the total-value history endpoint.
package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/httpapi"
	"github.com/aristath/permanent/internal/modules/history"
)

const (
	minPoints = 10
	maxPoints = 2000
)

// SeriesSource loads the recorded history
type SeriesSource interface {
	Series(window string, maxPoints, smooth int, current *float64) (*history.Series, error)
}

// TotalSource supplies the live portfolio total appended to the series
type TotalSource interface {
	CurrentTotal(ctx context.Context) (*float64, error)
}

// Handler handles history HTTP requests
type Handler struct {
	series SeriesSource
	totals TotalSource
	log    zerolog.Logger
}

// NewHandler creates a new history handler
func NewHandler(series SeriesSource, totals TotalSource, log zerolog.Logger) *Handler {
	return &Handler{
		series: series,
		totals: totals,
		log:    log.With().Str("handler", "history").Logger(),
	}
}

// HandleTotalHistory handles GET /api/v2/total-history?window=&max_points=&smooth=
func (h *Handler) HandleTotalHistory(w http.ResponseWriter, r *http.Request) {
	window := strings.TrimSpace(r.URL.Query().Get("window"))
	if window == "" {
		window = "24h"
	}
	points := httpapi.QueryInt(r, "max_points", history.DefaultMaxPoints, minPoints, maxPoints)
	smooth := httpapi.QueryInt(r, "smooth", 0, 0, maxPoints)

	current, err := h.totals.CurrentTotal(r.Context())
	if err != nil {
		h.log.Warn().Err(err).Msg("Current total unavailable, serving recorded history only")
		current = nil
	}

	series, err := h.series.Series(window, points, smooth, current)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, series)
}

// RegisterRoutes registers the history routes under /api/v2
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/total-history", h.HandleTotalHistory)
}
