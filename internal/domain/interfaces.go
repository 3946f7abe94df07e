package domain

import (
	"context"
	"time"
)

// MarketQuote is what a price source returns for one asset.
type MarketQuote struct {
	Name      string
	Price     float64
	ChangePct *float64
	AsOf      time.Time
}

// QuoteSource fetches the market price of a listed security or token.
// Implementations must honour ctx cancellation; the quote cache applies a
// per-call deadline and treats a timeout like any other source error.
type QuoteSource interface {
	Name() string
	Fetch(ctx context.Context, asset Asset) (*MarketQuote, error)
}

// Balance is an on-chain holding in token units.
type Balance struct {
	Quantity float64
	Symbol   string
	AsOf     time.Time
}

// ChainReader reads a wallet balance. An empty tokenAddress means the chain's native coin.
type ChainReader interface {
	Balance(ctx context.Context, chain, wallet, tokenAddress string) (*Balance, error)
}

// PortfolioConfigStore persists the portfolio configuration.
type PortfolioConfigStore interface {
	Load() (*PortfolioConfig, error)
	Save(cfg *PortfolioConfig) error
}

// LedgerStore persists ledger entries. assetID nil lists every entry.
type LedgerStore interface {
	List(assetID *string) ([]LedgerEntry, error)
	Append(entry LedgerEntry) (*LedgerEntry, error)
	Delete(id string) error
}
