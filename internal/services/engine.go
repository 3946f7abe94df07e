// Package services holds the engine that turns the quote snapshot and the
// portfolio configuration into views, suggestions and ledger metrics.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/modules/allocation"
	"github.com/aristath/permanent/internal/modules/history"
	"github.com/aristath/permanent/internal/modules/ledger"
	"github.com/aristath/permanent/internal/modules/portfolio"
	"github.com/aristath/permanent/internal/modules/quotes"
	"github.com/aristath/permanent/internal/modules/rebalancing"
)

const thresholdCheckTimeout = time.Minute

// QuoteCache is the part of quotes.Cache the engine uses
type QuoteCache interface {
	Snapshot() *quotes.Snapshot
	Refresh(ctx context.Context, force bool) (quotes.RefreshStats, error)
	OnRefresh(l quotes.Listener)
}

// ConfigSource supplies and persists the portfolio configuration
type ConfigSource interface {
	Current() (*domain.PortfolioConfig, error)
	Save(cfg *domain.PortfolioConfig) (bool, error)
}

// Policy supplies the runtime crypto slippage
type Policy interface {
	Slippage() float64
}

// HistoryRecorder stores valuation snapshots
type HistoryRecorder interface {
	Record(view *portfolio.PortfolioView) (bool, error)
}

// ThresholdChecker sends rebalance alerts
type ThresholdChecker interface {
	CheckThreshold(ctx context.Context, view *portfolio.PortfolioView, alerts []string, reason string) (bool, error)
}

// TotalRecorder receives the latest portfolio total
type TotalRecorder interface {
	RecordPortfolioTotal(total float64)
}

// Valuation is one consistent evaluation: the view with rebalance warnings
// applied and the report they came from
type Valuation struct {
	View      *portfolio.PortfolioView `json:"view"`
	Rebalance rebalancing.Report       `json:"rebalance"`
}

// CacheState describes the quote cache for clients
type CacheState struct {
	RefreshedAt   *time.Time `json:"updated_at"`
	Assets        int        `json:"assets"`
	AssetsInError int        `json:"assets_in_error"`
	Ready         bool       `json:"ready"`
}

// State is the full client payload: configuration, valuation and cache status
type State struct {
	Portfolio *domain.PortfolioConfig  `json:"portfolio"`
	View      *portfolio.PortfolioView `json:"view"`
	Rebalance rebalancing.Report       `json:"rebalance"`
	Cache     CacheState               `json:"cache"`
}

// Engine evaluates the portfolio. Each call reads one snapshot and one
// configuration and computes from those alone.
type Engine struct {
	cache     QuoteCache
	config    ConfigSource
	ledger    *ledger.Service
	policy    Policy
	history   HistoryRecorder
	notifier  ThresholdChecker
	recorder  TotalRecorder
	now       func() time.Time
	log       zerolog.Logger
	checking  atomic.Bool
	refreshes atomic.Bool
}

// Option customizes an Engine
type Option func(*Engine)

// WithHistory records a snapshot after each cache refresh
func WithHistory(h HistoryRecorder) Option {
	return func(e *Engine) { e.history = h }
}

// WithNotifier checks rebalance thresholds after each cache refresh
func WithNotifier(n ThresholdChecker) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithTotalRecorder publishes the portfolio total after each cache refresh
func WithTotalRecorder(r TotalRecorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates the engine and subscribes it to cache refreshes
func NewEngine(cache QuoteCache, cfg ConfigSource, ledgerSvc *ledger.Service, policy Policy, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cache:  cache,
		config: cfg,
		ledger: ledgerSvc,
		policy: policy,
		now:    time.Now,
		log:    log.With().Str("service", "engine").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	cache.OnRefresh(e.onRefresh)
	return e
}

// evaluate values cfg against snap and applies rebalance warnings
func evaluate(cfg *domain.PortfolioConfig, snap *quotes.Snapshot) Valuation {
	view := portfolio.BuildView(cfg, snap)
	report := rebalancing.Detect(view)
	return Valuation{View: rebalancing.Apply(view, report), Rebalance: report}
}

func (e *Engine) valuation() (Valuation, error) {
	cfg, err := e.config.Current()
	if err != nil {
		return Valuation{}, err
	}
	return evaluate(cfg, e.cache.Snapshot()), nil
}

// GetView returns the current valuation
func (e *Engine) GetView(ctx context.Context) (Valuation, error) {
	return e.valuation()
}

// State returns configuration, valuation and cache status. Before the first
// refresh it kicks one off in the background instead of blocking.
func (e *Engine) State(ctx context.Context) (*State, error) {
	cfg, err := e.config.Current()
	if err != nil {
		return nil, err
	}
	snap := e.cache.Snapshot()
	val := evaluate(cfg, snap)

	st := &State{
		Portfolio: cfg,
		View:      val.View,
		Rebalance: val.Rebalance,
		Cache: CacheState{
			Assets:        snap.Len(),
			AssetsInError: snap.ErrorCount(),
		},
	}
	if at := snap.RefreshedAt(); !at.IsZero() {
		st.Cache.RefreshedAt = &at
		st.Cache.Ready = true
	} else {
		e.refreshInBackground()
	}
	return st, nil
}

func (e *Engine) refreshInBackground() {
	if !e.refreshes.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer e.refreshes.Store(false)
		if _, err := e.cache.Refresh(context.Background(), true); err != nil {
			e.log.Error().Err(err).Msg("Background refresh failed")
		}
	}()
}

// GetSuggestion splits contribution across buckets. prefill may be nil.
func (e *Engine) GetSuggestion(ctx context.Context, contribution float64, prefill map[string]float64) (*allocation.ContributionSuggestion, error) {
	val, err := e.valuation()
	if err != nil {
		return nil, err
	}
	return allocation.Suggest(val.View, contribution, prefill, allocation.Options{})
}

// ApplyResult reports what ApplySuggestion recorded
type ApplyResult struct {
	Applied       allocation.ApplyCounts             `json:"applied"`
	LedgerEntries int                                `json:"ledger_entries"`
	Suggestion    *allocation.ContributionSuggestion `json:"suggestion"`
}

// ApplySuggestion records a contribution as bought: the suggestion's lines
// are added to the configured holdings and appended to the ledger as
// deposits. No orders are placed. Prefill amounts are purchases already
// made, so the cache is refreshed first and they are read from the view.
func (e *Engine) ApplySuggestion(ctx context.Context, contribution float64, prefill map[string]float64) (*ApplyResult, error) {
	if len(prefill) > 0 {
		if _, err := e.cache.Refresh(ctx, true); err != nil {
			return nil, err
		}
	}
	cfg, err := e.config.Current()
	if err != nil {
		return nil, err
	}
	val := evaluate(cfg, e.cache.Snapshot())

	suggestion, err := allocation.Suggest(val.View, contribution, prefill, allocation.Options{PrefillInView: len(prefill) > 0})
	if err != nil {
		return nil, err
	}

	plan := allocation.PlanApply(cfg, val.View, suggestion, e.now())
	if _, err := e.config.Save(plan.Config); err != nil {
		return nil, fmt.Errorf("failed to save applied holdings: %w", err)
	}

	recorded := 0
	for _, entry := range plan.Entries {
		if _, err := e.ledger.Add(entry); err != nil {
			e.log.Error().Err(err).Str("asset_id", *entry.AssetID).Msg("Failed to record applied deposit")
			continue
		}
		recorded++
	}

	e.log.Info().
		Float64("contribution", contribution).
		Int("listed", plan.Applied.Listed).
		Int("cash", plan.Applied.Cash).
		Int("crypto_manual", plan.Applied.CryptoManual).
		Int("crypto_ledger", plan.Applied.CryptoLedger).
		Int("skipped", plan.Applied.Skipped).
		Int("ledger_entries", recorded).
		Msg("Allocation applied")

	return &ApplyResult{Applied: plan.Applied, LedgerEntries: recorded, Suggestion: suggestion}, nil
}

// CryptoBaseline is phase one of the crypto flow: a suggestion plus the
// expected crypto amounts and the balance baseline
func (e *Engine) CryptoBaseline(ctx context.Context, contribution float64) (*allocation.CryptoPlan, error) {
	val, err := e.valuation()
	if err != nil {
		return nil, err
	}
	return allocation.PlanCrypto(val.View, contribution, allocation.Options{})
}

// ConfirmAfterCrypto is phase two. It forces a refresh so the current
// balances are read after the on-chain purchase. A nil slippage uses the
// configured tolerance.
func (e *Engine) ConfirmAfterCrypto(ctx context.Context, req allocation.ConfirmRequest, slippage *float64) (*allocation.ContributionSuggestion, error) {
	if req.Baseline == nil {
		return nil, domain.ErrMissingBaseline
	}
	if slippage != nil {
		req.Slippage = *slippage
	} else {
		req.Slippage = e.policy.Slippage()
	}

	if _, err := e.cache.Refresh(ctx, true); err != nil {
		return nil, err
	}
	val, err := e.valuation()
	if err != nil {
		return nil, err
	}
	return allocation.ConfirmAfterCrypto(val.View, req, allocation.Options{})
}

// GetLedgerMetrics returns principal, profit and XIRR totals and per asset
func (e *Engine) GetLedgerMetrics(ctx context.Context) (*ledger.Report, error) {
	val, err := e.valuation()
	if err != nil {
		return nil, err
	}
	return e.ledger.Metrics(val.View, e.now())
}

// LedgerDays groups the ledger by calendar day against the current buckets
func (e *Engine) LedgerDays(ctx context.Context, withEntries bool) ([]ledger.Day, error) {
	val, err := e.valuation()
	if err != nil {
		return nil, err
	}
	return e.ledger.Days(val.View, withEntries)
}

// BalanceNeeded returns the smallest contribution that restores every target
func (e *Engine) BalanceNeeded(ctx context.Context) (rebalancing.BalanceNeeded, error) {
	val, err := e.valuation()
	if err != nil {
		return rebalancing.BalanceNeeded{}, err
	}
	if val.View.TotalValue <= 0 {
		return rebalancing.BalanceNeeded{}, domain.InsufficientData("portfolio has no value yet")
	}
	return rebalancing.ComputeBalanceNeeded(val.View), nil
}

// CurrentTotal returns the portfolio total, or nil before the first refresh
func (e *Engine) CurrentTotal(ctx context.Context) (*float64, error) {
	if e.cache.Snapshot().RefreshedAt().IsZero() {
		return nil, nil
	}
	val, err := e.valuation()
	if err != nil {
		return nil, err
	}
	total := val.View.TotalValue
	return &total, nil
}

// ReportView implements notifications.ReportSource. A cache that has never
// refreshed is refreshed first.
func (e *Engine) ReportView(ctx context.Context) (*portfolio.PortfolioView, []string, error) {
	if e.cache.Snapshot().RefreshedAt().IsZero() {
		if _, err := e.cache.Refresh(ctx, true); err != nil {
			return nil, nil, err
		}
	}
	val, err := e.valuation()
	if err != nil {
		return nil, nil, err
	}
	return val.View, val.Rebalance.Messages(), nil
}

// onRefresh runs after every completed cache refresh. Alert emails are sent
// off the refresh path; a check still in flight makes the next one a no-op.
func (e *Engine) onRefresh(snap *quotes.Snapshot) {
	cfg, err := e.config.Current()
	if err != nil {
		e.log.Warn().Err(err).Msg("No portfolio config for refresh follow-up")
		return
	}
	val := evaluate(cfg, snap)

	if e.recorder != nil {
		e.recorder.RecordPortfolioTotal(val.View.TotalValue)
	}

	if e.history != nil {
		if _, err := e.history.Record(val.View); err != nil {
			e.log.Error().Err(err).Msg("Failed to record valuation snapshot")
		}
	}

	if e.notifier == nil || !val.Rebalance.NeedsRebalance() {
		return
	}
	if !e.checking.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer e.checking.Store(false)
		ctx, cancel := context.WithTimeout(context.Background(), thresholdCheckTimeout)
		defer cancel()
		if _, err := e.notifier.CheckThreshold(ctx, val.View, val.Rebalance.Messages(), "refresh"); err != nil && !errors.Is(err, context.Canceled) {
			e.log.Warn().Err(err).Msg("Threshold notification failed")
		}
	}()
}

var _ HistoryRecorder = (*history.Service)(nil)
