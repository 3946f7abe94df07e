// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AssetKind identifies how an asset is valued.
type AssetKind string

const (
	// AssetKindListed is an exchange-listed security valued by quantity × market price
	AssetKindListed AssetKind = "listed"
	// AssetKindCrypto is a token valued by on-chain or manual balance × market price
	AssetKindCrypto AssetKind = "crypto"
	// AssetKindCash is a manually entered amount in base currency
	AssetKindCash AssetKind = "cash"
)

// Bucket is a target allocation bucket with its tolerance band.
// Invariant: 0 ≤ MinWeight ≤ TargetWeight ≤ MaxWeight ≤ 1.
type Bucket struct {
	ID           string  `json:"id" yaml:"id" validate:"required"`
	Name         string  `json:"name" yaml:"name" validate:"required"`
	TargetWeight float64 `json:"target_weight" yaml:"target_weight" validate:"gte=0,lte=1"`
	MinWeight    float64 `json:"min_weight" yaml:"min_weight" validate:"gte=0,ltefield=TargetWeight"`
	MaxWeight    float64 `json:"max_weight" yaml:"max_weight" validate:"gtefield=TargetWeight,lte=1"`
}

// Validate checks the weight band invariant.
func (b Bucket) Validate() error {
	for _, w := range []float64{b.TargetWeight, b.MinWeight, b.MaxWeight} {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return InvalidInput("bucket %q has a non-finite weight", b.ID)
		}
	}
	if err := ValidateStruct(b); err != nil {
		return fmt.Errorf("bucket %q: %w", b.ID, err)
	}
	return nil
}

// Asset is one configured holding.
//
// Listed assets carry Code and Quantity. Crypto assets carry Chain, Wallet and
// optionally TokenAddress (empty means the chain's native coin); CoinID keys the
// market price. A non-nil ManualQuantity replaces the on-chain balance. Cash
// assets carry Amount in base currency.
type Asset struct {
	ID             string    `json:"id" yaml:"id"`
	Kind           AssetKind `json:"kind" yaml:"kind" validate:"oneof=listed crypto cash"`
	Name           string    `json:"name" yaml:"name"`
	CategoryID     *string   `json:"category_id,omitempty" yaml:"category_id"`
	BucketWeight   *float64  `json:"bucket_weight,omitempty" yaml:"bucket_weight" validate:"omitempty,gte=0,lte=1"`
	Code           string    `json:"code,omitempty" yaml:"code"`
	Quantity       float64   `json:"quantity" yaml:"quantity" validate:"gte=0"`
	Chain          string    `json:"chain,omitempty" yaml:"chain"`
	Wallet         string    `json:"wallet,omitempty" yaml:"wallet"`
	TokenAddress   string    `json:"token_address,omitempty" yaml:"token_address"`
	CoinID         string    `json:"coin_id,omitempty" yaml:"coin_id"`
	ManualQuantity *float64  `json:"manual_quantity,omitempty" yaml:"manual_quantity" validate:"omitempty,gte=0"`
	Amount         float64   `json:"amount" yaml:"amount" validate:"gte=0"`
}

// WalletTracked reports whether the asset's quantity comes from a chain balance.
func (a Asset) WalletTracked() bool {
	return a.Kind == AssetKindCrypto && a.ManualQuantity == nil
}

// NeedsQuote reports whether the asset has to be priced by the quote cache.
func (a Asset) NeedsQuote() bool {
	return a.Kind == AssetKindListed || a.Kind == AssetKindCrypto
}

// DisplayName returns Name, falling back to Code or ID.
func (a Asset) DisplayName() string {
	switch {
	case a.Name != "":
		return a.Name
	case a.Code != "":
		return a.Code
	default:
		return a.ID
	}
}

// InBucket reports whether the asset is assigned to bucketID.
func (a Asset) InBucket(bucketID string) bool {
	return a.CategoryID != nil && *a.CategoryID == bucketID
}

// PortfolioConfig is the full configured portfolio. Read-only to the core.
type PortfolioConfig struct {
	BaseCurrency string   `json:"base_currency" yaml:"base_currency"`
	Buckets      []Bucket `json:"categories" yaml:"categories"`
	Assets       []Asset  `json:"assets" yaml:"assets"`
}

// DefaultPortfolioConfig returns the four-bucket permanent portfolio with
// 25% targets and [15%, 35%] bands and no assets.
func DefaultPortfolioConfig() *PortfolioConfig {
	return &PortfolioConfig{
		BaseCurrency: "CNY",
		Buckets: []Bucket{
			{ID: "equity", Name: "Equity", TargetWeight: 0.25, MinWeight: 0.15, MaxWeight: 0.35},
			{ID: "cash", Name: "Cash", TargetWeight: 0.25, MinWeight: 0.15, MaxWeight: 0.35},
			{ID: "gold", Name: "Gold", TargetWeight: 0.25, MinWeight: 0.15, MaxWeight: 0.35},
			{ID: "bond", Name: "Long-term bonds", TargetWeight: 0.25, MinWeight: 0.15, MaxWeight: 0.35},
		},
	}
}

// Bucket returns the bucket with the given id.
func (c *PortfolioConfig) Bucket(id string) (Bucket, bool) {
	for _, b := range c.Buckets {
		if b.ID == id {
			return b, true
		}
	}
	return Bucket{}, false
}

// Asset returns the asset with the given id.
func (c *PortfolioConfig) Asset(id string) (Asset, bool) {
	for _, a := range c.Assets {
		if a.ID == id {
			return a, true
		}
	}
	return Asset{}, false
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (c *PortfolioConfig) Clone() *PortfolioConfig {
	out := &PortfolioConfig{
		BaseCurrency: c.BaseCurrency,
		Buckets:      append([]Bucket(nil), c.Buckets...),
		Assets:       make([]Asset, len(c.Assets)),
	}
	for i, a := range c.Assets {
		a.CategoryID = clonePtr(a.CategoryID)
		a.BucketWeight = clonePtr(a.BucketWeight)
		a.ManualQuantity = clonePtr(a.ManualQuantity)
		out.Assets[i] = a
	}
	return out
}

// Normalize repairs loosely entered configuration in place:
//   - an empty bucket list gets the default four buckets
//   - missing asset ids are generated, kinds are lower-cased and inferred for crypto
//   - category ids that match no bucket are cleared (the asset becomes unassigned)
//   - bucket weights written as percentages (1 < w ≤ 100) become fractions; out-of-range weights are dropped
//   - negative manual quantities are dropped and fields irrelevant to the kind are zeroed
func (c *PortfolioConfig) Normalize() {
	if c.BaseCurrency == "" {
		c.BaseCurrency = "CNY"
	}
	if len(c.Buckets) == 0 {
		c.Buckets = DefaultPortfolioConfig().Buckets
	}

	bucketIDs := make(map[string]bool, len(c.Buckets))
	for _, b := range c.Buckets {
		bucketIDs[b.ID] = true
	}

	for i := range c.Assets {
		a := &c.Assets[i]
		if strings.TrimSpace(a.ID) == "" {
			a.ID = uuid.NewString()
		}
		a.Kind = AssetKind(strings.ToLower(strings.TrimSpace(string(a.Kind))))
		if a.Kind == "" {
			if a.Wallet != "" || a.Chain != "" || a.TokenAddress != "" {
				a.Kind = AssetKindCrypto
			} else {
				a.Kind = AssetKindListed
			}
		}
		if a.CategoryID != nil && !bucketIDs[*a.CategoryID] {
			a.CategoryID = nil
		}
		a.BucketWeight = coerceBucketWeight(a.BucketWeight)

		switch a.Kind {
		case AssetKindCrypto:
			a.Quantity = 0
			a.Amount = 0
			if a.ManualQuantity != nil && (*a.ManualQuantity < 0 || math.IsNaN(*a.ManualQuantity)) {
				a.ManualQuantity = nil
			}
		case AssetKindCash:
			a.Code = ""
			a.Quantity = 0
			a.ManualQuantity = nil
			if a.Amount < 0 {
				a.Amount = 0
			}
		default:
			a.ManualQuantity = nil
			a.Amount = 0
			if a.Quantity < 0 {
				a.Quantity = 0
			}
		}
	}
}

// Validate checks bucket invariants, id uniqueness and per-asset fields.
func (c *PortfolioConfig) Validate() error {
	if len(c.Buckets) == 0 {
		return InvalidInput("portfolio has no buckets")
	}

	seen := make(map[string]bool, len(c.Buckets))
	for _, b := range c.Buckets {
		if seen[b.ID] {
			return InvalidInput("duplicate bucket id %q", b.ID)
		}
		seen[b.ID] = true
		if err := b.Validate(); err != nil {
			return err
		}
	}

	assetIDs := make(map[string]bool, len(c.Assets))
	for _, a := range c.Assets {
		if a.ID == "" {
			return InvalidInput("asset without id")
		}
		if assetIDs[a.ID] {
			return InvalidInput("duplicate asset id %q", a.ID)
		}
		assetIDs[a.ID] = true
		if err := ValidateStruct(a); err != nil {
			return fmt.Errorf("asset %q: %w", a.ID, err)
		}
		if a.Kind == AssetKindCrypto && a.CoinID == "" {
			return InvalidInput("crypto asset %q needs a coin id for pricing", a.ID)
		}
		if a.WalletTracked() && (a.Chain == "" || a.Wallet == "") {
			return InvalidInput("crypto asset %q needs chain and wallet or a manual quantity", a.ID)
		}
	}
	return nil
}

func coerceBucketWeight(w *float64) *float64 {
	if w == nil || math.IsNaN(*w) {
		return nil
	}
	v := *w
	if v > 1 && v <= 100 {
		v /= 100
	}
	if v < 0 || v > 1 {
		return nil
	}
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// QuoteStatus is the health of a cached quote.
type QuoteStatus string

const (
	// QuoteStatusOK means the asset is valued from a fresh fetch
	QuoteStatusOK QuoteStatus = "ok"
	// QuoteStatusWarn means the asset is valued but the data is stale
	QuoteStatusWarn QuoteStatus = "warn"
	// QuoteStatusError means the latest fetch failed or the value is unknown
	QuoteStatusError QuoteStatus = "error"
)

// Quote is the cached market state of one asset. A quote is always replaced
// as a whole; fields are never mutated after publication.
type Quote struct {
	AssetID      string      `json:"asset_id"`
	Name         string      `json:"name,omitempty"`
	Price        *float64    `json:"price"`
	Quantity     *float64    `json:"quantity"`
	ChangePct    *float64    `json:"change_pct"`
	AsOf         *time.Time  `json:"as_of"`
	FetchedAt    time.Time   `json:"fetched_at"`
	Status       QuoteStatus `json:"status"`
	ErrorDetail  string      `json:"error_detail,omitempty"`
	PriceError   string      `json:"price_error,omitempty"`
	BalanceError string      `json:"balance_error,omitempty"`
	Source       string      `json:"source,omitempty"`
}

// Value returns quantity × price when both are known.
func (q *Quote) Value() (float64, bool) {
	if q == nil || q.Price == nil || q.Quantity == nil {
		return 0, false
	}
	return *q.Price * *q.Quantity, true
}

// LedgerDirection marks a ledger entry as money in or money out.
type LedgerDirection string

const (
	// LedgerDeposit is money added to the portfolio
	LedgerDeposit LedgerDirection = "deposit"
	// LedgerWithdraw is money taken out of the portfolio
	LedgerWithdraw LedgerDirection = "withdraw"
)

// LedgerEntry is one recorded external cash flow. Entries are append-only;
// corrections are made by deleting and re-adding.
type LedgerEntry struct {
	ID        string          `json:"id"`
	Date      time.Time       `json:"date"`
	Direction LedgerDirection `json:"direction" validate:"oneof=deposit withdraw"`
	Amount    float64         `json:"amount" validate:"gt=0"`
	AssetID   *string         `json:"asset_id,omitempty"`
	Note      string          `json:"note,omitempty" validate:"lte=500"`
	CreatedAt time.Time       `json:"created_at"`
}

// Validate checks direction, amount and date.
func (e LedgerEntry) Validate() error {
	if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) {
		return InvalidInput("amount must be a finite number")
	}
	if e.Date.IsZero() {
		return InvalidInput("date is required")
	}
	return ValidateStruct(e)
}

// SignedAmount is +Amount for deposits and -Amount for withdrawals.
func (e LedgerEntry) SignedAmount() float64 {
	if e.Direction == LedgerWithdraw {
		return -e.Amount
	}
	return e.Amount
}

// CashFlow is the entry from the investor's point of view: deposits leave the
// investor's pocket (negative), withdrawals return to it (positive).
func (e LedgerEntry) CashFlow() float64 {
	return -e.SignedAmount()
}
