// Package handlers provides HTTP handlers for contribution suggestions and
// the two-phase crypto confirmation.
package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/httpapi"
	"github.com/aristath/permanent/internal/modules/allocation"
	"github.com/aristath/permanent/internal/services"
)

// Engine is the part of services.Engine these handlers use
type Engine interface {
	GetSuggestion(ctx context.Context, contribution float64, prefill map[string]float64) (*allocation.ContributionSuggestion, error)
	CryptoBaseline(ctx context.Context, contribution float64) (*allocation.CryptoPlan, error)
	ConfirmAfterCrypto(ctx context.Context, req allocation.ConfirmRequest, slippage *float64) (*allocation.ContributionSuggestion, error)
	ApplySuggestion(ctx context.Context, contribution float64, prefill map[string]float64) (*services.ApplyResult, error)
}

// ApplyRequest is the body of POST /api/v2/allocation/apply
type ApplyRequest struct {
	Contribution  float64                `json:"contribution" validate:"gt=0"`
	PrefillAssets map[string]interface{} `json:"prefill_assets"`
}

// Handler handles allocation HTTP requests
type Handler struct {
	engine Engine
	log    zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(engine Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		log:    log.With().Str("handler", "allocation").Logger(),
	}
}

func contribution(r *http.Request) (float64, error) {
	v, err := httpapi.QueryFloat(r, "contribution")
	if err != nil {
		return 0, err
	}
	amount, err := httpapi.Required(v, "contribution")
	if err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, domain.InvalidInput("contribution must be a positive amount")
	}
	return amount, nil
}

// HandleSuggest handles GET /api/v2/allocation/suggest?contribution=&prefill=
// prefill is a JSON object of asset id to amount already bought.
func (h *Handler) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	amount, err := contribution(r)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	prefill, err := httpapi.QueryAmounts(r, "prefill")
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}

	suggestion, err := h.engine.GetSuggestion(r.Context(), amount, prefill)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, suggestion)
}

// HandleCryptoSnapshot handles GET /api/v2/crypto/snapshot?contribution=
// It is phase one: the plan holds the baseline the client sends back.
func (h *Handler) HandleCryptoSnapshot(w http.ResponseWriter, r *http.Request) {
	amount, err := contribution(r)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}

	plan, err := h.engine.CryptoBaseline(r.Context(), amount)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, plan)
}

// HandleSuggestAfterCrypto handles
// GET /api/v2/allocation/suggest-after-crypto?contribution=&baseline=&expected=&slippage=
func (h *Handler) HandleSuggestAfterCrypto(w http.ResponseWriter, r *http.Request) {
	amount, err := contribution(r)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	baseline, err := httpapi.QueryAmounts(r, "baseline")
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	expected, err := httpapi.QueryAmounts(r, "expected")
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	slippage, err := httpapi.QueryFloat(r, "slippage")
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}

	out, err := h.engine.ConfirmAfterCrypto(r.Context(), allocation.ConfirmRequest{
		Contribution: amount,
		Baseline:     baseline,
		Expected:     expected,
	}, slippage)
	if err != nil {
		h.log.Warn().Err(err).Float64("contribution", amount).Msg("Crypto confirmation rejected")
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, out)
}

// HandleApply handles POST /api/v2/allocation/apply. The suggestion for the
// contribution is recorded as bought: holdings grow and deposits are added
// to the ledger. No orders are placed.
func (h *Handler) HandleApply(w http.ResponseWriter, r *http.Request) {
	var req ApplyRequest
	if err := httpapi.DecodeJSON(r, &req); err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	prefill, err := httpapi.Amounts("prefill_assets", req.PrefillAssets)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}

	res, err := h.engine.ApplySuggestion(r.Context(), req.Contribution, prefill)
	if err != nil {
		httpapi.WriteError(w, h.log, err)
		return
	}
	httpapi.WriteJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"applied":        res.Applied,
		"ledger_entries": res.LedgerEntries,
		"suggestion":     res.Suggestion,
	})
}
