// Package portfolio turns the configured buckets and assets plus a quote
// snapshot into a valued PortfolioView, and persists the configuration.
package portfolio

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/permanent/internal/domain"
)

// Bucket statuses
const (
	BucketStatusOK   = "ok"
	BucketStatusWarn = "warn"
)

// QuoteLookup resolves the cached quote for an asset. *quotes.Snapshot
// satisfies it.
type QuoteLookup interface {
	Quote(assetID string) *domain.Quote
}

// AssetView is one valued asset
type AssetView struct {
	ID            string             `json:"id"`
	Kind          domain.AssetKind   `json:"kind"`
	Name          string             `json:"name"`
	Code          string             `json:"code,omitempty"`
	CategoryID    *string            `json:"category_id"`
	BucketWeight  *float64           `json:"bucket_weight"`
	WalletTracked bool               `json:"wallet_tracked"`
	Price         *float64           `json:"price"`
	Quantity      *float64           `json:"quantity"`
	ChangePct     *float64           `json:"change_pct"`
	Value         float64            `json:"value"`
	ValueKnown    bool               `json:"value_known"`
	Weight        float64            `json:"weight"`
	AsOf          *time.Time         `json:"as_of"`
	Status        domain.QuoteStatus `json:"status"`
	ErrorDetail   string             `json:"error_detail,omitempty"`
	PriceError    string             `json:"price_error,omitempty"`
	BalanceError  string             `json:"balance_error,omitempty"`
}

// Purchasable reports whether new money can be directed to the asset.
// Cash always can; quoted assets need a usable price.
func (a AssetView) Purchasable() bool {
	if a.Kind == domain.AssetKindCash {
		return true
	}
	return a.Price != nil && *a.Price > 0
}

// BucketView is one valued bucket with its member assets in config order
type BucketView struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	TargetWeight float64     `json:"target_weight"`
	MinWeight    float64     `json:"min_weight"`
	MaxWeight    float64     `json:"max_weight"`
	Value        float64     `json:"value"`
	Weight       float64     `json:"weight"`
	Status       string      `json:"status"`
	Notes        []string    `json:"notes"`
	HasErrors    bool        `json:"has_errors"`
	Assets       []AssetView `json:"assets"`
}

// PortfolioView is an immutable valuation of the portfolio. Never mutate a
// view in place; derive a new one with Clone.
type PortfolioView struct {
	BaseCurrency string       `json:"base_currency"`
	TotalValue   float64      `json:"total_value"`
	Buckets      []BucketView `json:"categories"`
	Unassigned   []AssetView  `json:"unassigned"`
	Warnings     []string     `json:"warnings"`
	ErrorCount   int          `json:"error_count"`
	AsOf         *time.Time   `json:"as_of"`
}

// Bucket returns the bucket view with the given id or nil
func (v *PortfolioView) Bucket(id string) *BucketView {
	for i := range v.Buckets {
		if v.Buckets[i].ID == id {
			return &v.Buckets[i]
		}
	}
	return nil
}

// Asset returns the asset view with the given id, assigned or not, or nil
func (v *PortfolioView) Asset(id string) *AssetView {
	for i := range v.Buckets {
		for j := range v.Buckets[i].Assets {
			if v.Buckets[i].Assets[j].ID == id {
				return &v.Buckets[i].Assets[j]
			}
		}
	}
	for i := range v.Unassigned {
		if v.Unassigned[i].ID == id {
			return &v.Unassigned[i]
		}
	}
	return nil
}

// AllAssets returns assigned assets in bucket order followed by unassigned ones
func (v *PortfolioView) AllAssets() []AssetView {
	var out []AssetView
	for _, b := range v.Buckets {
		out = append(out, b.Assets...)
	}
	return append(out, v.Unassigned...)
}

// Clone returns a deep copy of the view
func (v *PortfolioView) Clone() *PortfolioView {
	out := *v
	out.Buckets = make([]BucketView, len(v.Buckets))
	for i, b := range v.Buckets {
		b.Notes = append([]string(nil), b.Notes...)
		b.Assets = append([]AssetView(nil), b.Assets...)
		out.Buckets[i] = b
	}
	out.Unassigned = append([]AssetView(nil), v.Unassigned...)
	out.Warnings = append([]string(nil), v.Warnings...)
	return &out
}

// BuildView values every configured asset against quotes. It is pure: the
// same config and quotes always give the same view.
//
// Listed and crypto assets are worth quantity × price, cash its manual
// amount. Assets in error state contribute nothing to the totals but stay in
// the listing with their error. When the total is zero every weight is zero.
func BuildView(cfg *domain.PortfolioConfig, quotes QuoteLookup) *PortfolioView {
	view := &PortfolioView{
		BaseCurrency: cfg.BaseCurrency,
		Buckets:      make([]BucketView, 0, len(cfg.Buckets)),
		Unassigned:   []AssetView{},
		Warnings:     []string{},
	}

	bucketIndex := make(map[string]int, len(cfg.Buckets))
	for i, b := range cfg.Buckets {
		bucketIndex[b.ID] = i
		view.Buckets = append(view.Buckets, BucketView{
			ID:           b.ID,
			Name:         b.Name,
			TargetWeight: b.TargetWeight,
			MinWeight:    b.MinWeight,
			MaxWeight:    b.MaxWeight,
			Status:       BucketStatusOK,
			Notes:        []string{},
			Assets:       []AssetView{},
		})
	}

	var failed []string
	for _, asset := range cfg.Assets {
		av := valueAsset(asset, quotes)

		if view.AsOf == nil && av.AsOf != nil {
			t := *av.AsOf
			view.AsOf = &t
		}
		if av.Status == domain.QuoteStatusError {
			view.ErrorCount++
			failed = append(failed, failureWarning(av))
		}

		idx, assigned := -1, false
		if asset.CategoryID != nil {
			idx, assigned = bucketIndex[*asset.CategoryID]
		}
		if !assigned {
			view.Unassigned = append(view.Unassigned, av)
			continue
		}
		b := &view.Buckets[idx]
		b.Assets = append(b.Assets, av)
		if av.Status == domain.QuoteStatusError {
			b.HasErrors = true
		}
	}

	bucketValues := make([]float64, len(view.Buckets))
	for i := range view.Buckets {
		b := &view.Buckets[i]
		b.Value = sumKnown(b.Assets)
		bucketValues[i] = b.Value
	}
	unassignedValue := sumKnown(view.Unassigned)
	view.TotalValue = floats.Sum(bucketValues) + unassignedValue

	for i := range view.Buckets {
		b := &view.Buckets[i]
		b.Weight = share(b.Value, view.TotalValue)
		for j := range b.Assets {
			b.Assets[j].Weight = share(b.Assets[j].Value, view.TotalValue)
		}
	}
	for i := range view.Unassigned {
		view.Unassigned[i].Weight = share(view.Unassigned[i].Value, view.TotalValue)
	}

	if n := len(view.Unassigned); n > 0 {
		noun := "assets are"
		if n == 1 {
			noun = "asset is"
		}
		view.Warnings = append(view.Warnings, fmt.Sprintf("%d %s not assigned to a category", n, noun))
	}
	view.Warnings = append(view.Warnings, failed...)

	return view
}

func valueAsset(asset domain.Asset, quotes QuoteLookup) AssetView {
	av := AssetView{
		ID:            asset.ID,
		Kind:          asset.Kind,
		Name:          asset.DisplayName(),
		Code:          asset.Code,
		CategoryID:    asset.CategoryID,
		BucketWeight:  asset.BucketWeight,
		WalletTracked: asset.WalletTracked(),
	}

	if asset.Kind == domain.AssetKindCash {
		av.Value = asset.Amount
		av.ValueKnown = true
		av.Status = domain.QuoteStatusOK
		return av
	}

	var q *domain.Quote
	if quotes != nil {
		q = quotes.Quote(asset.ID)
	}
	if q == nil {
		av.Status = domain.QuoteStatusError
		av.ErrorDetail = "no quote yet"
		return av
	}

	av.Price = q.Price
	av.Quantity = q.Quantity
	av.ChangePct = q.ChangePct
	av.AsOf = q.AsOf
	av.Status = q.Status
	av.ErrorDetail = q.ErrorDetail
	av.PriceError = q.PriceError
	av.BalanceError = q.BalanceError
	if q.Name != "" && asset.Name == "" {
		av.Name = q.Name
	}

	value, ok := q.Value()
	switch {
	case av.Status == domain.QuoteStatusError:
		// Retained last-good figures are shown but not counted.
	case !ok:
		av.Status = domain.QuoteStatusError
		if av.ErrorDetail == "" {
			av.ErrorDetail = "price or quantity unknown"
		}
	default:
		av.Value = value
		av.ValueKnown = true
	}
	return av
}

func failureWarning(av AssetView) string {
	if av.ErrorDetail == "" {
		return fmt.Sprintf("%s: value unavailable", av.Name)
	}
	return fmt.Sprintf("%s: value unavailable (%s)", av.Name, av.ErrorDetail)
}

func sumKnown(assets []AssetView) float64 {
	values := make([]float64, 0, len(assets))
	for _, a := range assets {
		if a.ValueKnown {
			values = append(values, a.Value)
		}
	}
	return floats.Sum(values)
}

func share(value, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return value / total
}
