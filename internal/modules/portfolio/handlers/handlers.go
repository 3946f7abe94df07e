// Package handlers provides HTTP handlers for the portfolio configuration
// and the combined client state.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/httpapi"
	"github.com/aristath/permanent/internal/modules/portfolio"
	"github.com/aristath/permanent/internal/services"
)

// PortfolioService edits the stored configuration
type PortfolioService interface {
	Current() (*domain.PortfolioConfig, error)
	Save(cfg *domain.PortfolioConfig) (bool, error)
	AddAsset(asset domain.Asset) (*domain.Asset, error)
	UpdateAsset(id string, asset domain.Asset) (*domain.Asset, error)
	DeleteAsset(id string) error
	MoveAsset(id string, bucketID *string) error
	BatchUpdate(patches []portfolio.AssetPatch) (*portfolio.BatchResult, error)
}

// StateSource builds the client state payload
type StateSource interface {
	State(ctx context.Context) (*services.State, error)
}

// Handler handles portfolio HTTP requests
type Handler struct {
	portfolio PortfolioService
	state     StateSource
	log       zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(portfolioSvc PortfolioService, state StateSource, log zerolog.Logger) *Handler {
	return &Handler{
		portfolio: portfolioSvc,
		state:     state,
		log:       log.With().Str("handler", "portfolio").Logger(),
	}
}

// MoveRequest assigns an asset to a bucket; null or "" unassigns it
type MoveRequest struct {
	CategoryID *string `json:"category_id"`
}

// HandleGetState handles GET /api/v2/state
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	st, err := h.state.State(r.Context())
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, st)
}

// HandleGetPortfolio handles GET /api/v2/portfolio
func (h *Handler) HandleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.portfolio.Current()
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, cfg)
}

// HandlePutPortfolio handles PUT /api/v2/portfolio
func (h *Handler) HandlePutPortfolio(w http.ResponseWriter, r *http.Request) {
	var cfg domain.PortfolioConfig
	if err := httpapi.Decode(r, &cfg); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}

	changed, err := h.portfolio.Save(&cfg)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	current, err := h.portfolio.Current()
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}

	h.log.Info().Bool("changed", changed).Int("assets", len(current.Assets)).Msg("Portfolio replaced")
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"changed":   changed,
		"portfolio": current,
	})
}

// HandleCreateAsset handles POST /api/v2/assets
func (h *Handler) HandleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var asset domain.Asset
	if err := httpapi.Decode(r, &asset); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}

	added, err := h.portfolio.AddAsset(asset)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusCreated, map[string]interface{}{"ok": true, "asset": added})
}

// HandleUpdateAsset handles PUT /api/v2/assets/{id}
func (h *Handler) HandleUpdateAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var asset domain.Asset
	if err := httpapi.Decode(r, &asset); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}

	updated, err := h.portfolio.UpdateAsset(id, asset)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{"ok": true, "asset": updated})
}

// HandleDeleteAsset handles DELETE /api/v2/assets/{id}
func (h *Handler) HandleDeleteAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.portfolio.DeleteAsset(id); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{"ok": true})
}

// HandleMoveAsset handles POST /api/v2/assets/{id}/move
func (h *Handler) HandleMoveAsset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req MoveRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	if err := h.portfolio.MoveAsset(id, req.CategoryID); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{"ok": true})
}

// HandleBatchUpdate handles POST /api/v2/assets/batch. The body is a list
// of partial asset updates keyed by asset_id; unknown ids are reported in
// not_found and do not fail the batch.
func (h *Handler) HandleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	var patches []portfolio.AssetPatch
	if err := httpapi.Decode(r, &patches); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}

	res, err := h.portfolio.BatchUpdate(patches)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	h.log.Info().Int("updated", len(res.Updated)).Int("not_found", len(res.NotFound)).Msg("Assets batch updated")
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"ok":        true,
		"updated":   res.Updated,
		"not_found": res.NotFound,
	})
}
