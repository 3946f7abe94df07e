package testing

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aristath/permanent/internal/domain"
)

// StubQuoteSource is a programmable QuoteSource. Results are keyed by asset ID.
type StubQuoteSource struct {
	mu      sync.RWMutex
	name    string
	prices  map[string]float64
	errs    map[string]error
	delays  map[string]time.Duration
	asOf    time.Time
	calls   atomic.Int64
	blocked chan struct{}
}

// NewStubQuoteSource creates a stub source reporting the given name.
func NewStubQuoteSource(name string) *StubQuoteSource {
	return &StubQuoteSource{
		name:   name,
		prices: make(map[string]float64),
		errs:   make(map[string]error),
		delays: make(map[string]time.Duration),
		asOf:   FixedTime,
	}
}

// SetPrice sets the price returned for assetID and clears any error.
func (s *StubQuoteSource) SetPrice(assetID string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[assetID] = price
	delete(s.errs, assetID)
}

// SetError makes fetches for assetID fail.
func (s *StubQuoteSource) SetError(assetID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[assetID] = err
}

// SetDelay makes fetches for assetID wait d (or until ctx is done).
func (s *StubQuoteSource) SetDelay(assetID string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays[assetID] = d
}

// SetAsOf sets the timestamp reported with every price.
func (s *StubQuoteSource) SetAsOf(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asOf = t
}

// Block makes every fetch wait until Unblock is called or ctx is done.
func (s *StubQuoteSource) Block() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked = make(chan struct{})
}

// Unblock releases fetches held by Block.
func (s *StubQuoteSource) Unblock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blocked != nil {
		close(s.blocked)
		s.blocked = nil
	}
}

// Calls returns how many fetches were made.
func (s *StubQuoteSource) Calls() int {
	return int(s.calls.Load())
}

// Name implements domain.QuoteSource.
func (s *StubQuoteSource) Name() string {
	return s.name
}

// Fetch implements domain.QuoteSource.
func (s *StubQuoteSource) Fetch(ctx context.Context, asset domain.Asset) (*domain.MarketQuote, error) {
	s.calls.Add(1)

	s.mu.RLock()
	price, hasPrice := s.prices[asset.ID]
	err := s.errs[asset.ID]
	delay := s.delays[asset.ID]
	asOf := s.asOf
	blocked := s.blocked
	s.mu.RUnlock()

	if blocked != nil {
		select {
		case <-blocked:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if !hasPrice {
		return nil, fmt.Errorf("no price for %s", asset.ID)
	}
	return &domain.MarketQuote{Name: asset.DisplayName(), Price: price, AsOf: asOf}, nil
}

// StubChainReader is a programmable ChainReader keyed by wallet+token.
type StubChainReader struct {
	mu       sync.RWMutex
	balances map[string]float64
	errs     map[string]error
}

// NewStubChainReader creates an empty stub chain reader.
func NewStubChainReader() *StubChainReader {
	return &StubChainReader{
		balances: make(map[string]float64),
		errs:     make(map[string]error),
	}
}

func chainKey(chain, wallet, token string) string {
	return chain + "|" + wallet + "|" + token
}

// SetBalance sets the balance for the asset's chain/wallet/token and clears any error.
func (s *StubChainReader) SetBalance(asset domain.Asset, quantity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := chainKey(asset.Chain, asset.Wallet, asset.TokenAddress)
	s.balances[key] = quantity
	delete(s.errs, key)
}

// SetError makes balance reads for the asset fail.
func (s *StubChainReader) SetError(asset domain.Asset, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[chainKey(asset.Chain, asset.Wallet, asset.TokenAddress)] = err
}

// Balance implements domain.ChainReader.
func (s *StubChainReader) Balance(ctx context.Context, chain, wallet, tokenAddress string) (*domain.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := chainKey(chain, wallet, tokenAddress)
	if err := s.errs[key]; err != nil {
		return nil, err
	}
	q, ok := s.balances[key]
	if !ok {
		return nil, fmt.Errorf("no balance for %s on %s", wallet, chain)
	}
	return &domain.Balance{Quantity: q, AsOf: FixedTime}, nil
}
