package allocation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/modules/portfolio"
)

const (
	noteSplit        = "split by bucket weight; lot size and fees not considered"
	noteNoPrice      = "split by bucket weight; price unavailable, quantity not estimated"
	noteCash         = "keep as cash"
	noteNothingToBuy = "add an asset to this category to receive allocations"
)

// splitBucket divides a bucket's amount across its eligible assets by
// bucket weight. The lines add up to amount exactly; leftover cents go to the
// asset with the largest weight. A bucket with no eligible asset gets one
// placeholder line carrying the full amount.
func splitBucket(b portfolio.BucketView, amount decimal.Decimal, exclude map[string]bool, prec int32) ([]AssetLine, error) {
	if !amount.IsPositive() {
		return []AssetLine{}, nil
	}

	var buyable []portfolio.AssetView
	for _, a := range b.Assets {
		if !exclude[a.ID] {
			buyable = append(buyable, a)
		}
	}
	if len(buyable) == 0 {
		return []AssetLine{placeholderLine(b, amount)}, nil
	}

	weights := assetWeights(buyable)
	shares := make([]decimal.Decimal, len(buyable))
	largest := 0
	for i, w := range weights {
		shares[i] = amount.Mul(decimal.NewFromFloat(w)).Truncate(prec)
		if w > weights[largest] {
			largest = i
		}
	}
	if leftover := amount.Sub(sumSlice(shares)); !leftover.IsZero() {
		shares[largest] = shares[largest].Add(leftover)
	}
	if total := sumSlice(shares); !total.Equal(amount) {
		return nil, fmt.Errorf("asset split for bucket %s gives %s, want %s", b.ID, total, amount)
	}

	lines := make([]AssetLine, 0, len(buyable))
	for i, a := range buyable {
		if !shares[i].IsPositive() {
			continue
		}
		lines = append(lines, assetLine(a, shares[i]))
	}
	return lines, nil
}

func assetLine(a portfolio.AssetView, amount decimal.Decimal) AssetLine {
	id := a.ID
	line := AssetLine{
		AssetID: &id,
		Name:    a.Name,
		Code:    a.Code,
		Kind:    a.Kind,
		Amount:  amount.InexactFloat64(),
		Note:    noteSplit,
	}
	switch {
	case a.Kind == domain.AssetKindCash:
		line.Note = noteCash
	case a.Price != nil && *a.Price > 0:
		qty := amount.InexactFloat64() / *a.Price
		line.EstQuantity = &qty
	default:
		line.Note = noteNoPrice
	}
	return line
}

func placeholderLine(b portfolio.BucketView, amount decimal.Decimal) AssetLine {
	line := AssetLine{
		Name:   "(nothing to buy)",
		Code:   b.ID,
		Amount: amount.InexactFloat64(),
		Note:   noteNothingToBuy,
	}
	if b.ID == "cash" {
		line.Name = "Cash"
		line.Code = "CASH"
		line.Note = noteCash
	}
	return line
}

// assetWeights returns normalized split weights aligned with assets.
//
// Explicit bucket weights are honored and assets without one share what is
// left of 1 equally. When the explicit weights exceed 1 they are normalized
// and the unweighted assets get nothing. With no usable explicit weight the
// split is equal.
func assetWeights(assets []portfolio.AssetView) []float64 {
	n := len(assets)
	out := make([]float64, n)
	equal := func() []float64 {
		for i := range out {
			out[i] = 1 / float64(n)
		}
		return out
	}

	var specifiedSum float64
	unspecified := 0
	for _, a := range assets {
		if a.BucketWeight == nil {
			unspecified++
			continue
		}
		if *a.BucketWeight > 0 {
			specifiedSum += *a.BucketWeight
		}
	}
	if unspecified == n || specifiedSum <= 1e-9 {
		return equal()
	}

	if specifiedSum > 1+1e-6 {
		for i, a := range assets {
			if a.BucketWeight != nil && *a.BucketWeight > 0 {
				out[i] = *a.BucketWeight / specifiedSum
			}
		}
		return out
	}

	perUnspecified := 0.0
	if unspecified > 0 {
		perUnspecified = (1 - specifiedSum) / float64(unspecified)
	}
	var total float64
	for i, a := range assets {
		switch {
		case a.BucketWeight == nil:
			out[i] = perUnspecified
		case *a.BucketWeight > 0:
			out[i] = *a.BucketWeight
		}
		total += out[i]
	}
	if total <= 1e-9 {
		return equal()
	}
	for i := range out {
		out[i] /= total
	}
	return out
}
