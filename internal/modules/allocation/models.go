// Package allocation directs a new contribution toward the bucket targets
// and runs the two-phase crypto confirmation on top of it.
package allocation

import "github.com/aristath/permanent/internal/domain"

// Allocation modes
const (
	// ModeDeficit scales under-weight buckets' deficits to fit the contribution
	ModeDeficit = "deficit"
	// ModeTopUp fills every deficit and spreads the rest by target weight
	ModeTopUp = "top_up"
)

// DefaultPrecision is the number of decimals amounts are rounded to
const DefaultPrecision int32 = 2

// Options tune a suggestion
type Options struct {
	// Precision is the smallest currency unit as decimal places. Zero means DefaultPrecision.
	Precision int32
	// PrefillInView marks prefill amounts as already reflected in the view's
	// values (confirmed on-chain purchases), so they are not added again.
	PrefillInView bool
	// Exclude lists assets that must not receive per-asset allocation
	Exclude map[string]bool
}

func (o Options) precision() int32 {
	if o.Precision <= 0 {
		return DefaultPrecision
	}
	return o.Precision
}

// AssetLine is the suggested purchase for one asset. A placeholder line
// (AssetID nil) holds a bucket's amount when the bucket has nothing to buy.
type AssetLine struct {
	AssetID     *string          `json:"asset_id"`
	Name        string           `json:"name"`
	Code        string           `json:"code"`
	Kind        domain.AssetKind `json:"kind,omitempty"`
	Amount      float64          `json:"amount"`
	EstQuantity *float64         `json:"est_quantity"`
	Note        string           `json:"note"`
}

// BucketSuggestion is one bucket's share of the contribution
type BucketSuggestion struct {
	BucketID         string      `json:"category_id"`
	Name             string      `json:"name"`
	CurrentValue     float64     `json:"current_value"`
	CurrentWeight    float64     `json:"current_weight"`
	TargetWeight     float64     `json:"target_weight"`
	TargetValueAfter float64     `json:"target_value_after"`
	Deficit          float64     `json:"deficit"`
	PrefillAmount    float64     `json:"prefill_amount"`
	AllocateAmount   float64     `json:"allocate_amount"`
	WeightAfter      float64     `json:"weight_after"`
	Assets           []AssetLine `json:"assets"`
}

// ContributionSuggestion is the full suggestion. The sum of AllocateAmount
// over Buckets always equals ContributionRemaining to the cent.
type ContributionSuggestion struct {
	ContributionAmount    float64            `json:"contribution_amount"`
	ContributionRemaining float64            `json:"contribution_remaining"`
	PrefillAssets         map[string]float64 `json:"prefill_assets"`
	PrefillTotal          float64            `json:"prefill_total"`
	TotalBefore           float64            `json:"total_before"`
	TotalAfter            float64            `json:"total_after"`
	Mode                  string             `json:"mode"`
	Buckets               []BucketSuggestion `json:"categories"`
	Note                  string             `json:"note"`

	// Set by the crypto confirmation step
	SlippageTolerance *float64 `json:"slippage_tolerance,omitempty"`
	BaselineUsed      bool     `json:"baseline_used,omitempty"`
}

// Bucket returns the suggestion for bucketID or nil
func (s *ContributionSuggestion) Bucket(bucketID string) *BucketSuggestion {
	for i := range s.Buckets {
		if s.Buckets[i].BucketID == bucketID {
			return &s.Buckets[i]
		}
	}
	return nil
}

// AssetAmount returns the total suggested for assetID across all buckets
func (s *ContributionSuggestion) AssetAmount(assetID string) float64 {
	var total float64
	for _, b := range s.Buckets {
		for _, line := range b.Assets {
			if line.AssetID != nil && *line.AssetID == assetID {
				total += line.Amount
			}
		}
	}
	return total
}
