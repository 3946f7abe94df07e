package testing

import (
	"time"

	"github.com/aristath/permanent/internal/domain"
)

// FixedTime is the reference clock used by fixtures.
var FixedTime = time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// FourBucketConfig returns the default four-bucket portfolio with one listed
// asset per bucket: "stock" (equity), "mmf" (cash), "gld" (gold) and "tlt" (bond).
func FourBucketConfig() *domain.PortfolioConfig {
	cfg := domain.DefaultPortfolioConfig()
	cfg.Assets = []domain.Asset{
		ListedAsset("stock", "equity", 1),
		ListedAsset("mmf", "cash", 1),
		ListedAsset("gld", "gold", 1),
		ListedAsset("tlt", "bond", 1),
	}
	return cfg
}

// ListedAsset builds a listed asset in bucket with the given quantity.
func ListedAsset(id, bucket string, quantity float64) domain.Asset {
	return domain.Asset{
		ID:         id,
		Kind:       domain.AssetKindListed,
		Name:       id,
		Code:       id,
		Quantity:   quantity,
		CategoryID: Ptr(bucket),
	}
}

// WalletAsset builds a wallet-tracked crypto asset in bucket.
func WalletAsset(id, bucket, coinID string) domain.Asset {
	return domain.Asset{
		ID:         id,
		Kind:       domain.AssetKindCrypto,
		Name:       id,
		CategoryID: Ptr(bucket),
		Chain:      "eth",
		Wallet:     "0x1111111111111111111111111111111111111111",
		CoinID:     coinID,
	}
}

// CashAsset builds a manual cash asset in bucket.
func CashAsset(id, bucket string, amount float64) domain.Asset {
	return domain.Asset{
		ID:         id,
		Kind:       domain.AssetKindCash,
		Name:       id,
		CategoryID: Ptr(bucket),
		Amount:     amount,
	}
}

// OKQuote returns a fresh quote with the given price and quantity.
func OKQuote(assetID string, price, quantity float64) *domain.Quote {
	asOf := FixedTime
	return &domain.Quote{
		AssetID:   assetID,
		Price:     Ptr(price),
		Quantity:  Ptr(quantity),
		AsOf:      &asOf,
		FetchedAt: FixedTime,
		Status:    domain.QuoteStatusOK,
	}
}

// ErrorQuote returns an error-state quote with no usable value.
func ErrorQuote(assetID, detail string) *domain.Quote {
	return &domain.Quote{
		AssetID:     assetID,
		FetchedAt:   FixedTime,
		Status:      domain.QuoteStatusError,
		ErrorDetail: detail,
	}
}

// QuoteMap implements a quote lookup over a plain map.
type QuoteMap map[string]*domain.Quote

// Quote returns the quote for assetID or nil.
func (m QuoteMap) Quote(assetID string) *domain.Quote {
	return m[assetID]
}
