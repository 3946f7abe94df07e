package rebalancing

import (
	"math"

	"github.com/aristath/permanent/internal/modules/portfolio"
)

// BalanceNeeded is the smallest contribution that brings every bucket back to
// its target weight without selling anything
type BalanceNeeded struct {
	Amount         float64 `json:"amount"`
	TotalAfter     float64 `json:"total_after"`
	LimitingBucket string  `json:"limiting_bucket,omitempty"`
}

// ComputeBalanceNeeded finds the total T' at which the most over-weight
// bucket is exactly at target, max_i(v_i / p_i), and returns T' − T rounded
// up to the cent. Unassigned value counts toward the total. Buckets with a
// zero target are ignored.
func ComputeBalanceNeeded(view *portfolio.PortfolioView) BalanceNeeded {
	if view.TotalValue <= 0 {
		return BalanceNeeded{}
	}

	required := view.TotalValue
	var limiting string
	for _, b := range view.Buckets {
		if b.TargetWeight <= 0 {
			continue
		}
		if need := b.Value / b.TargetWeight; need > required {
			required = need
			limiting = b.ID
		}
	}

	amount := math.Ceil((required-view.TotalValue)*100-1e-6) / 100
	if amount < 0 {
		amount = 0
	}
	return BalanceNeeded{
		Amount:         amount,
		TotalAfter:     view.TotalValue + amount,
		LimitingBucket: limiting,
	}
}
