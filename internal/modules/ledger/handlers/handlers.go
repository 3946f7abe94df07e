// Package handlers provides HTTP handlers for ledger entries and metrics.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/httpapi"
	"github.com/aristath/permanent/internal/modules/ledger"
)

// LedgerService stores entries
type LedgerService interface {
	ParseDate(value string) (time.Time, error)
	List(assetID *string) ([]domain.LedgerEntry, error)
	Add(entry domain.LedgerEntry) (*domain.LedgerEntry, error)
	Delete(id string) error
}

// MetricsSource values the ledger against the current portfolio
type MetricsSource interface {
	GetLedgerMetrics(ctx context.Context) (*ledger.Report, error)
	LedgerDays(ctx context.Context, withEntries bool) ([]ledger.Day, error)
}

// Handler handles ledger HTTP requests
type Handler struct {
	ledger  LedgerService
	metrics MetricsSource
	log     zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(ledgerSvc LedgerService, metrics MetricsSource, log zerolog.Logger) *Handler {
	return &Handler{
		ledger:  ledgerSvc,
		metrics: metrics,
		log:     log.With().Str("handler", "ledger").Logger(),
	}
}

// CreateEntryRequest is the body of POST /api/v2/ledger
type CreateEntryRequest struct {
	Date      string  `json:"date" validate:"required"`
	Direction string  `json:"direction" validate:"required"`
	Amount    float64 `json:"amount"`
	AssetID   *string `json:"asset_id"`
	Note      string  `json:"note"`
}

// HandleList handles GET /api/v2/ledger?asset_id=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var assetID *string
	if v := strings.TrimSpace(r.URL.Query().Get("asset_id")); v != "" {
		assetID = &v
	}

	entries, err := h.ledger.List(assetID)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	if entries == nil {
		entries = []domain.LedgerEntry{}
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// HandleCreate handles POST /api/v2/ledger
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}

	date, err := h.ledger.ParseDate(req.Date)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}

	saved, err := h.ledger.Add(domain.LedgerEntry{
		Date:      date,
		Direction: domain.LedgerDirection(strings.ToLower(strings.TrimSpace(req.Direction))),
		Amount:    req.Amount,
		AssetID:   req.AssetID,
		Note:      req.Note,
	})
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusCreated, map[string]interface{}{"ok": true, "entry": saved})
}

// HandleDelete handles DELETE /api/v2/ledger/{id}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.Delete(chi.URLParam(r, "id")); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{"ok": true})
}

// HandleMetrics handles GET /api/v2/ledger/metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	report, err := h.metrics.GetLedgerMetrics(r.Context())
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, report)
}

// HandleDays handles GET /api/v2/ledger/days?manage=1. manage adds each
// day's entries with their asset names.
func (h *Handler) HandleDays(w http.ResponseWriter, r *http.Request) {
	manage, _ := strconv.ParseBool(strings.TrimSpace(r.URL.Query().Get("manage")))

	days, err := h.metrics.LedgerDays(r.Context(), manage)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{"days": days})
}
