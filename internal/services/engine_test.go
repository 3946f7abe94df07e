package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/permanent/internal/database"
	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/modules/allocation"
	"github.com/aristath/permanent/internal/modules/ledger"
	"github.com/aristath/permanent/internal/modules/portfolio"
	"github.com/aristath/permanent/internal/modules/quotes"
	testingpkg "github.com/aristath/permanent/internal/testing"
)

type fixedPolicy struct{ slippage float64 }

func (p fixedPolicy) Slippage() float64 { return p.slippage }

type recordingHistory struct {
	mu    sync.Mutex
	views []*portfolio.PortfolioView
}

func (h *recordingHistory) Record(view *portfolio.PortfolioView) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.views = append(h.views, view)
	return true, nil
}

func (h *recordingHistory) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.views)
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts [][]string
}

func (n *recordingNotifier) CheckThreshold(ctx context.Context, view *portfolio.PortfolioView, alerts []string, reason string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alerts)
	return true, nil
}

func (n *recordingNotifier) calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

type totalRecorder struct {
	mu    sync.Mutex
	total float64
}

func (r *totalRecorder) RecordPortfolioTotal(total float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
}

func (r *totalRecorder) last() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

type fixture struct {
	engine    *Engine
	cache     *quotes.Cache
	portfolio *portfolio.Service
	ledger    *ledger.Service
	listed    *testingpkg.StubQuoteSource
	crypto    *testingpkg.StubQuoteSource
	chain     *testingpkg.StubChainReader
	wallet    domain.Asset
}

// newFixture builds an engine over the four listed fixture assets plus an
// "eth" wallet in the equity bucket. Equity is 100 (stock 50, eth 50) and
// every other bucket holds 150, so the total is 550.
func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	log := zerolog.Nop()

	cfgDB := testingpkg.NewTestDB(t, database.NameConfig)
	portfolioSvc := portfolio.NewService(portfolio.NewRepository(cfgDB.Conn(), log), "", log)
	require.NoError(t, portfolioSvc.Init())

	wallet := testingpkg.WalletAsset("eth", "equity", "ethereum")
	cfg := testingpkg.FourBucketConfig()
	cfg.Assets = append(cfg.Assets, wallet)
	_, err := portfolioSvc.Save(cfg)
	require.NoError(t, err)

	listed := testingpkg.NewStubQuoteSource("listed")
	listed.SetPrice("stock", 50)
	listed.SetPrice("mmf", 150)
	listed.SetPrice("gld", 150)
	listed.SetPrice("tlt", 150)
	crypto := testingpkg.NewStubQuoteSource("crypto")
	crypto.SetPrice("eth", 640)
	chain := testingpkg.NewStubChainReader()
	chain.SetBalance(wallet, 0.078125)

	cache := quotes.NewCache(quotes.Config{
		FetchTimeout: time.Second,
		Concurrency:  4,
	}, portfolioSvc, quotes.Sources{Listed: listed, Crypto: crypto, Chain: chain}, log)

	ledgerDB := testingpkg.NewTestDB(t, database.NameLedger)
	ledgerSvc := ledger.NewService(ledger.NewRepository(ledgerDB.Conn(), time.UTC, log), time.UTC, log)

	opts = append([]Option{WithClock(func() time.Time { return testingpkg.FixedTime })}, opts...)
	engine := NewEngine(cache, portfolioSvc, ledgerSvc, fixedPolicy{slippage: 0.01}, log, opts...)

	return &fixture{
		engine:    engine,
		cache:     cache,
		portfolio: portfolioSvc,
		ledger:    ledgerSvc,
		listed:    listed,
		crypto:    crypto,
		chain:     chain,
		wallet:    wallet,
	}
}

func (f *fixture) refresh(t *testing.T) {
	t.Helper()
	_, err := f.cache.Refresh(context.Background(), true)
	require.NoError(t, err)
}

func TestEngine_GetView(t *testing.T) {
	f := newFixture(t)
	f.refresh(t)

	val, err := f.engine.GetView(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 550, val.View.TotalValue, 1e-9)
	assert.False(t, val.Rebalance.NeedsRebalance())

	eth := val.View.Asset("eth")
	require.NotNil(t, eth)
	assert.True(t, eth.WalletTracked)
	assert.InDelta(t, 50, eth.Value, 1e-9)
}

func TestEngine_StateBeforeFirstRefresh(t *testing.T) {
	f := newFixture(t)

	st, err := f.engine.State(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Cache.Ready)
	assert.Nil(t, st.Cache.RefreshedAt)
	assert.Len(t, st.Portfolio.Assets, 5)

	assert.Eventually(t, func() bool {
		return !f.cache.Snapshot().RefreshedAt().IsZero()
	}, 2*time.Second, 10*time.Millisecond)

	st, err = f.engine.State(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Cache.Ready)
	assert.Equal(t, 5, st.Cache.Assets)
	assert.Zero(t, st.Cache.AssetsInError)
}

func TestEngine_GetSuggestion(t *testing.T) {
	f := newFixture(t)
	f.refresh(t)

	s, err := f.engine.GetSuggestion(context.Background(), 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, allocation.ModeDeficit, s.Mode)

	var sum float64
	for _, b := range s.Buckets {
		sum += b.AllocateAmount
	}
	assert.InDelta(t, 1000, sum, 1e-9)
	assert.InDelta(t, 287.5, s.Bucket("equity").AllocateAmount, 1e-9)
	assert.InDelta(t, 237.5, s.Bucket("gold").AllocateAmount, 1e-9)
}

func TestEngine_CryptoFlow(t *testing.T) {
	f := newFixture(t)
	f.refresh(t)
	ctx := context.Background()

	plan, err := f.engine.CryptoBaseline(ctx, 1000)
	require.NoError(t, err)
	require.Empty(t, plan.BaselineError)
	assert.InDelta(t, 50, plan.Baseline["eth"], 1e-9)
	require.Contains(t, plan.Expected, "eth")
	assert.InDelta(t, 143.75, plan.Expected["eth"], 1e-9)

	// The purchase lands on-chain: 0.21875 ETH worth 140
	f.chain.SetBalance(f.wallet, 0.296875)

	out, err := f.engine.ConfirmAfterCrypto(ctx, allocation.ConfirmRequest{
		Contribution: 1000,
		Baseline:     plan.Baseline,
		Expected:     plan.Expected,
	}, nil)
	require.NoError(t, err)
	assert.True(t, out.BaselineUsed)
	require.NotNil(t, out.SlippageTolerance)
	assert.InDelta(t, 0.01, *out.SlippageTolerance, 1e-12)
	assert.InDelta(t, 141.4, out.PrefillAssets["eth"], 1e-9)
	assert.InDelta(t, 858.6, out.ContributionRemaining, 1e-9)

	var sum float64
	for _, b := range out.Buckets {
		sum += b.AllocateAmount
	}
	assert.InDelta(t, out.ContributionRemaining, sum, 1e-9)
	assert.Zero(t, out.AssetAmount("eth"))
}

func TestEngine_ConfirmAfterCryptoExplicitSlippage(t *testing.T) {
	f := newFixture(t)
	f.refresh(t)
	ctx := context.Background()

	plan, err := f.engine.CryptoBaseline(ctx, 1000)
	require.NoError(t, err)
	f.chain.SetBalance(f.wallet, 0.296875)

	out, err := f.engine.ConfirmAfterCrypto(ctx, allocation.ConfirmRequest{
		Contribution: 1000,
		Baseline:     plan.Baseline,
		Expected:     plan.Expected,
	}, testingpkg.Ptr(0.0))
	require.NoError(t, err)
	assert.InDelta(t, 140, out.PrefillAssets["eth"], 1e-9)
}

func TestEngine_ConfirmAfterCryptoMissingBaseline(t *testing.T) {
	f := newFixture(t)
	f.refresh(t)
	calls := f.listed.Calls()

	_, err := f.engine.ConfirmAfterCrypto(context.Background(), allocation.ConfirmRequest{
		Contribution: 1000,
		Expected:     map[string]float64{"eth": 100},
	}, nil)
	assert.ErrorIs(t, err, domain.ErrMissingBaseline)
	assert.ErrorIs(t, err, domain.ErrInconsistentState)
	assert.Equal(t, calls, f.listed.Calls(), "rejected request must not refresh")
}

func TestEngine_BalanceNeeded(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.BalanceNeeded(context.Background())
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	f.refresh(t)
	need, err := f.engine.BalanceNeeded(context.Background())
	require.NoError(t, err)
	// Cash, gold and bond each hold 150 at a 25% target: T' = 600
	assert.InDelta(t, 50, need.Amount, 1e-9)
	assert.InDelta(t, 600, need.TotalAfter, 1e-9)
}

func TestEngine_GetLedgerMetrics(t *testing.T) {
	f := newFixture(t)
	f.refresh(t)

	_, err := f.ledger.Add(domain.LedgerEntry{
		Date:      testingpkg.FixedTime.AddDate(-1, 0, 0),
		Direction: domain.LedgerDeposit,
		Amount:    500,
	})
	require.NoError(t, err)

	report, err := f.engine.GetLedgerMetrics(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 500, report.Total.Principal, 1e-9)
	assert.InDelta(t, 50, report.Total.Profit, 1e-9)
	require.NotNil(t, report.Total.XIRRAnnual)
	assert.InDelta(t, 0.1, *report.Total.XIRRAnnual, 0.002)
}

func TestEngine_ApplySuggestion(t *testing.T) {
	f := newFixture(t)
	f.refresh(t)

	res, err := f.engine.ApplySuggestion(context.Background(), 1000, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, res.LedgerEntries)
	assert.Equal(t, 4, res.Applied.Listed)
	assert.Equal(t, 1, res.Applied.CryptoLedger)

	cfg, err := f.portfolio.Current()
	require.NoError(t, err)
	gld, ok := cfg.Asset("gld")
	require.True(t, ok)
	assert.InDelta(t, 1+237.5/150, gld.Quantity, 1e-9)
	eth, ok := cfg.Asset("eth")
	require.True(t, ok)
	assert.True(t, eth.WalletTracked())

	entries, err := f.ledger.List(nil)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	var total float64
	for _, e := range entries {
		assert.Equal(t, domain.LedgerDeposit, e.Direction)
		assert.Contains(t, e.Note, "apply allocation")
		total += e.Amount
	}
	assert.InDelta(t, 1000, total, 1e-9)
}

func TestEngine_ApplySuggestionRejectsBadContribution(t *testing.T) {
	f := newFixture(t)
	f.refresh(t)

	_, err := f.engine.ApplySuggestion(context.Background(), 0, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	entries, err := f.ledger.List(nil)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEngine_CurrentTotal(t *testing.T) {
	f := newFixture(t)

	total, err := f.engine.CurrentTotal(context.Background())
	require.NoError(t, err)
	assert.Nil(t, total)

	f.refresh(t)
	total, err = f.engine.CurrentTotal(context.Background())
	require.NoError(t, err)
	require.NotNil(t, total)
	assert.InDelta(t, 550, *total, 1e-9)
}

func TestEngine_ReportViewRefreshesFirst(t *testing.T) {
	f := newFixture(t)

	view, alerts, err := f.engine.ReportView(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 550, view.TotalValue, 1e-9)
	assert.Empty(t, alerts)
	assert.False(t, f.cache.Snapshot().RefreshedAt().IsZero())
}

func TestEngine_OnRefreshFollowUps(t *testing.T) {
	hist := &recordingHistory{}
	notifier := &recordingNotifier{}
	totals := &totalRecorder{}
	f := newFixture(t, WithHistory(hist), WithNotifier(notifier), WithTotalRecorder(totals))

	f.refresh(t)
	assert.Equal(t, 1, hist.count())
	assert.InDelta(t, 550, totals.last(), 1e-9)
	assert.Zero(t, notifier.calls(), "balanced portfolio sends no alert")

	// Equity jumps far above its band
	f.listed.SetPrice("stock", 5000)
	f.refresh(t)
	assert.Equal(t, 2, hist.count())
	assert.InDelta(t, 5500, totals.last(), 1e-9)
	assert.Eventually(t, func() bool { return notifier.calls() == 1 }, 2*time.Second, 10*time.Millisecond)
}
