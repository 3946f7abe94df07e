package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/permanent/internal/domain"
)

// Config controls refresh cadence and per-call limits
type Config struct {
	ActiveInterval time.Duration // Refresh interval while clients are reading
	IdleInterval   time.Duration // Refresh interval when nobody has read for IdleAfter
	IdleAfter      time.Duration
	MinRefreshGap  time.Duration // Non-forced refreshes closer than this to the previous one are skipped
	FetchTimeout   time.Duration // Deadline for each individual source call
	StaleAfter     time.Duration // Quotes older than this are downgraded to warn; 0 disables
	Concurrency    int           // Max concurrent asset fetches
}

// AssetProvider supplies the assets to track on each refresh
type AssetProvider interface {
	Assets() ([]domain.Asset, error)
}

// Sources groups the adapters the cache pulls from. Any may be nil, in which
// case assets depending on it end up in error state.
type Sources struct {
	Listed domain.QuoteSource  // Prices for listed securities
	Crypto domain.QuoteSource  // Prices for tokens, keyed by CoinID
	Chain  domain.ChainReader // Wallet balances
}

// Recorder receives refresh metrics
type Recorder interface {
	RecordRefresh(d time.Duration, skipped bool)
	RecordSourceError(source string)
	RecordAssetsInError(n int)
}

// Listener is called with the latest snapshot after every completed refresh
type Listener func(*Snapshot)

// RefreshStats describes one Refresh call
type RefreshStats struct {
	Skipped    bool          `json:"skipped"`
	SkipReason string        `json:"skip_reason,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Assets     int           `json:"assets"`
	Failed     int           `json:"failed"`
}

// Skip reasons
const (
	SkipInProgress = "refresh_in_progress"
	SkipMinGap     = "min_refresh_gap"
)

// Cache is the quote cache. Snapshot reads are lock-free.
type Cache struct {
	cfg      Config
	assets   AssetProvider
	sources  Sources
	recorder Recorder
	log      zerolog.Logger
	now      func() time.Time

	current atomic.Pointer[Snapshot]
	writeMu sync.Mutex // serializes snapshot swaps

	refreshMu     sync.Mutex // held for the duration of a refresh
	lastRefreshAt atomic.Int64
	lastAccessAt  atomic.Int64
	wake          chan struct{}

	listenersMu sync.RWMutex
	listeners   []Listener
}

// Option customizes a Cache
type Option func(*Cache)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(c *Cache) { c.recorder = r }
}

// NewCache creates an empty cache. Call Refresh or Run to populate it.
func NewCache(cfg Config, assets AssetProvider, sources Sources, log zerolog.Logger, opts ...Option) *Cache {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 8 * time.Second
	}
	c := &Cache{
		cfg:     cfg,
		assets:  assets,
		sources: sources,
		log:     log.With().Str("service", "quote_cache").Logger(),
		now:     time.Now,
		wake:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.current.Store(emptySnapshot())
	return c
}

// Snapshot returns the current immutable snapshot
func (c *Cache) Snapshot() *Snapshot {
	return c.current.Load()
}

// OnRefresh registers a listener called after each completed refresh
func (c *Cache) OnRefresh(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Touch records client activity. An idle cache wakes the Run loop so the
// next refresh happens now instead of after the idle interval.
func (c *Cache) Touch() {
	wasIdle := c.idle(c.now())
	c.lastAccessAt.Store(c.now().UnixNano())
	if wasIdle {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// LastRefreshAt returns when the last refresh started (zero if never)
func (c *Cache) LastRefreshAt() time.Time {
	ns := c.lastRefreshAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (c *Cache) idle(now time.Time) bool {
	last := c.lastAccessAt.Load()
	if last == 0 {
		return true
	}
	return now.Sub(time.Unix(0, last)) >= c.cfg.IdleAfter
}

// NextInterval returns the delay before the next scheduled refresh
func (c *Cache) NextInterval() time.Duration {
	if c.idle(c.now()) {
		return c.cfg.IdleInterval
	}
	return c.cfg.ActiveInterval
}

// Run refreshes immediately and then on the adaptive cadence until ctx is done
func (c *Cache) Run(ctx context.Context) {
	c.log.Info().
		Dur("active_interval", c.cfg.ActiveInterval).
		Dur("idle_interval", c.cfg.IdleInterval).
		Msg("Quote cache started")

	for {
		if _, err := c.Refresh(ctx, false); err != nil && ctx.Err() == nil {
			c.log.Error().Err(err).Msg("Quote refresh failed")
		}

		timer := time.NewTimer(c.NextInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			c.log.Info().Msg("Quote cache stopped")
			return
		case <-c.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Refresh fetches every tracked asset once.
//
// A non-forced call is skipped when another refresh is running or when the
// previous one started less than MinRefreshGap ago. A forced call waits for
// any running refresh to finish and then always runs.
//
// The returned error is structural only (the asset list could not be loaded);
// per-asset source failures are recorded on the quotes themselves.
func (c *Cache) Refresh(ctx context.Context, force bool) (RefreshStats, error) {
	if force {
		c.refreshMu.Lock()
	} else if !c.refreshMu.TryLock() {
		return c.skip(SkipInProgress), nil
	}
	defer c.refreshMu.Unlock()

	start := c.now()
	if !force {
		if last := c.LastRefreshAt(); !last.IsZero() && start.Sub(last) < c.cfg.MinRefreshGap {
			return c.skip(SkipMinGap), nil
		}
	}
	c.lastRefreshAt.Store(start.UnixNano())

	assets, err := c.assets.Assets()
	if err != nil {
		return RefreshStats{StartedAt: start}, fmt.Errorf("failed to load tracked assets: %w", err)
	}

	c.prune(assets)

	var failed atomic.Int64
	var tracked int

	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Concurrency)
	for _, asset := range assets {
		if !asset.NeedsQuote() {
			continue
		}
		tracked++
		asset := asset
		g.Go(func() error {
			prev := c.Snapshot().Quote(asset.ID)
			q := c.fetchAsset(ctx, asset, prev)
			if q.Status == domain.QuoteStatusError {
				failed.Add(1)
			}
			c.publish(q)
			return nil
		})
	}
	_ = g.Wait()

	c.writeMu.Lock()
	snap := c.current.Load().stamped(c.now())
	c.current.Store(snap)
	c.writeMu.Unlock()

	stats := RefreshStats{
		StartedAt: start,
		Duration:  c.now().Sub(start),
		Assets:    tracked,
		Failed:    int(failed.Load()),
	}

	if c.recorder != nil {
		c.recorder.RecordRefresh(stats.Duration, false)
		c.recorder.RecordAssetsInError(snap.ErrorCount())
	}

	c.log.Debug().
		Int("assets", stats.Assets).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Bool("forced", force).
		Msg("Quote refresh completed")

	c.notify(snap)
	return stats, nil
}

func (c *Cache) skip(reason string) RefreshStats {
	if c.recorder != nil {
		c.recorder.RecordRefresh(0, true)
	}
	return RefreshStats{Skipped: true, SkipReason: reason, StartedAt: c.now()}
}

func (c *Cache) notify(snap *Snapshot) {
	c.listenersMu.RLock()
	listeners := append([]Listener(nil), c.listeners...)
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		l(snap)
	}
}

// publish swaps in a snapshot with q replacing its asset's entry
func (c *Cache) publish(q *domain.Quote) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.current.Store(c.current.Load().with(q))
}

// prune drops entries for assets no longer configured
func (c *Cache) prune(assets []domain.Asset) {
	keep := make(map[string]bool, len(assets))
	for _, a := range assets {
		if a.NeedsQuote() {
			keep[a.ID] = true
		}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	cur := c.current.Load()
	if cur.Len() == 0 {
		return
	}
	for id := range cur.quotes {
		if !keep[id] {
			c.current.Store(cur.retain(keep))
			return
		}
	}
}

// fetchAsset builds the next quote for one asset. It never returns nil and
// never returns an error: failures become status=error with the previous
// good values retained.
func (c *Cache) fetchAsset(ctx context.Context, asset domain.Asset, prev *domain.Quote) *domain.Quote {
	switch asset.Kind {
	case domain.AssetKindListed:
		return c.fetchListed(ctx, asset, prev)
	case domain.AssetKindCrypto:
		return c.fetchCrypto(ctx, asset, prev)
	default:
		return &domain.Quote{
			AssetID:     asset.ID,
			Name:        asset.DisplayName(),
			FetchedAt:   c.now(),
			Status:      domain.QuoteStatusError,
			ErrorDetail: fmt.Sprintf("asset kind %q has no quote source", asset.Kind),
		}
	}
}

func (c *Cache) fetchListed(ctx context.Context, asset domain.Asset, prev *domain.Quote) *domain.Quote {
	qty := asset.Quantity
	q := &domain.Quote{
		AssetID:   asset.ID,
		Name:      asset.DisplayName(),
		Quantity:  &qty,
		FetchedAt: c.now(),
	}

	mq, source, err := c.fetchPrice(ctx, c.sources.Listed, asset)
	q.Source = source
	if err != nil {
		c.sourceFailed(asset, source, err)
		retainPrice(q, prev)
		q.PriceError = err.Error()
		q.Status = domain.QuoteStatusError
		q.ErrorDetail = "price: " + err.Error()
		return q
	}

	applyMarket(q, mq)
	c.classify(q)
	return q
}

func (c *Cache) fetchCrypto(ctx context.Context, asset domain.Asset, prev *domain.Quote) *domain.Quote {
	q := &domain.Quote{
		AssetID:   asset.ID,
		Name:      asset.DisplayName(),
		FetchedAt: c.now(),
	}

	var (
		mq       *domain.MarketQuote
		source   string
		priceErr error
		balance  *domain.Balance
		balErr   error
		wg       sync.WaitGroup
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		mq, source, priceErr = c.fetchPrice(ctx, c.sources.Crypto, asset)
	}()

	if asset.WalletTracked() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			balance, balErr = c.fetchBalance(ctx, asset)
		}()
	} else {
		manual := *asset.ManualQuantity
		balance = &domain.Balance{Quantity: manual}
	}
	wg.Wait()

	q.Source = source
	var parts []string

	if priceErr != nil {
		c.sourceFailed(asset, source, priceErr)
		retainPrice(q, prev)
		q.PriceError = priceErr.Error()
		parts = append(parts, "price: "+priceErr.Error())
	} else {
		applyMarket(q, mq)
	}

	if balErr != nil {
		c.sourceFailed(asset, "chain", balErr)
		if prev != nil && prev.Quantity != nil {
			v := *prev.Quantity
			q.Quantity = &v
		}
		q.BalanceError = balErr.Error()
		parts = append(parts, "balance: "+balErr.Error())
	} else {
		v := balance.Quantity
		q.Quantity = &v
	}

	if len(parts) > 0 {
		q.Status = domain.QuoteStatusError
		q.ErrorDetail = strings.Join(parts, "; ")
		return q
	}

	c.classify(q)
	return q
}

func (c *Cache) fetchPrice(ctx context.Context, src domain.QuoteSource, asset domain.Asset) (*domain.MarketQuote, string, error) {
	if src == nil {
		return nil, "", fmt.Errorf("no price source configured for %s assets", asset.Kind)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	mq, err := src.Fetch(callCtx, asset)
	if err != nil {
		return nil, src.Name(), sourceError(src.Name(), err, c.cfg.FetchTimeout)
	}
	if mq == nil || mq.Price <= 0 || mq.Price != mq.Price {
		return nil, src.Name(), errors.New("source returned no usable price")
	}
	return mq, src.Name(), nil
}

func (c *Cache) fetchBalance(ctx context.Context, asset domain.Asset) (*domain.Balance, error) {
	if c.sources.Chain == nil {
		return nil, errors.New("no chain reader configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()

	b, err := c.sources.Chain.Balance(callCtx, asset.Chain, asset.Wallet, asset.TokenAddress)
	if err != nil {
		return nil, sourceError("chain", err, c.cfg.FetchTimeout)
	}
	if b == nil || b.Quantity < 0 {
		return nil, errors.New("chain returned no usable balance")
	}
	return b, nil
}

func (c *Cache) sourceFailed(asset domain.Asset, source string, err error) {
	c.log.Warn().
		Err(err).
		Str("asset_id", asset.ID).
		Str("source", source).
		Msg("Quote fetch failed")
	if c.recorder != nil && source != "" {
		c.recorder.RecordSourceError(source)
	}
}

// classify sets ok or warn on a successfully fetched quote
func (c *Cache) classify(q *domain.Quote) {
	q.Status = domain.QuoteStatusOK
	if c.cfg.StaleAfter > 0 && q.AsOf != nil && c.now().Sub(*q.AsOf) > c.cfg.StaleAfter {
		q.Status = domain.QuoteStatusWarn
		q.ErrorDetail = fmt.Sprintf("quote is stale (as of %s)", q.AsOf.Format(time.RFC3339))
	}
}

func applyMarket(q *domain.Quote, mq *domain.MarketQuote) {
	price := mq.Price
	q.Price = &price
	if mq.ChangePct != nil {
		v := *mq.ChangePct
		q.ChangePct = &v
	}
	if !mq.AsOf.IsZero() {
		asOf := mq.AsOf
		q.AsOf = &asOf
	} else {
		asOf := q.FetchedAt
		q.AsOf = &asOf
	}
	if mq.Name != "" {
		q.Name = mq.Name
	}
}

// retainPrice carries the last good price fields into a failed quote
func retainPrice(q, prev *domain.Quote) {
	if prev == nil {
		return
	}
	q.Price = prev.Price
	q.ChangePct = prev.ChangePct
	q.AsOf = prev.AsOf
}

// sourceError wraps a fetch failure as ErrSourceUnavailable; deadline
// overruns are reported as timeouts.
func sourceError(source string, err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.SourceUnavailable(source, fmt.Errorf("timed out after %s", timeout))
	}
	return domain.SourceUnavailable(source, err)
}
