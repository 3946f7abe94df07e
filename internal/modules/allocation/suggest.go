package allocation

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/modules/portfolio"
)

// Suggest splits a positive contribution across buckets and their assets.
//
// Prefill amounts are money already committed to specific assets. They are
// taken out of the contribution first, counted toward their bucket's current
// value and not re-allocated. The remaining money is directed by deficit:
// under-weight buckets are filled in proportion to how far they sit below
// target after the contribution, and buckets at or above target get nothing.
// Only when every deficit is covered is the rest spread by target weight.
//
// All arithmetic is done in decimal at opts.Precision; the bucket amounts
// add up to the remaining contribution exactly, and the rounding remainder
// goes to the bucket with the largest deficit.
func Suggest(view *portfolio.PortfolioView, contribution float64, prefill map[string]float64, opts Options) (*ContributionSuggestion, error) {
	if math.IsNaN(contribution) || math.IsInf(contribution, 0) || contribution <= 0 {
		return nil, domain.InvalidInput("contribution must be a positive amount, got %v", contribution)
	}
	if decimal.NewFromFloat(contribution).Round(opts.precision()).IsZero() {
		return nil, domain.InvalidInput("contribution %v is below the smallest currency unit", contribution)
	}
	return suggest(view, contribution, prefill, opts)
}

// suggest is Suggest without the positivity check, so a crypto confirmation
// that covered the whole contribution still yields a (zero) suggestion.
func suggest(view *portfolio.PortfolioView, contribution float64, prefill map[string]float64, opts Options) (*ContributionSuggestion, error) {
	if view == nil || len(view.Buckets) == 0 {
		return nil, domain.InsufficientData("portfolio has no buckets")
	}
	prec := opts.precision()

	contributionD := decimal.NewFromFloat(contribution).Round(prec)
	prefillD, err := normalizePrefill(view, prefill, prec)
	if err != nil {
		return nil, err
	}
	prefillTotal := sumValues(prefillD)

	remaining := contributionD.Sub(prefillTotal)
	if remaining.IsNegative() {
		if !opts.PrefillInView {
			return nil, domain.InvalidInput("prefill total %s exceeds the contribution %s",
				prefillTotal.StringFixed(prec), contributionD.StringFixed(prec))
		}
		remaining = decimal.Zero
	}

	prefillByBucket := make(map[string]decimal.Decimal)
	exclude := make(map[string]bool, len(opts.Exclude)+len(prefillD))
	for id := range opts.Exclude {
		exclude[id] = true
	}
	for id, amt := range prefillD {
		exclude[id] = true
		if av := view.Asset(id); av != nil && av.CategoryID != nil {
			prefillByBucket[*av.CategoryID] = prefillByBucket[*av.CategoryID].Add(amt)
		}
	}

	totalBefore := decimal.NewFromFloat(view.TotalValue)
	if !opts.PrefillInView {
		totalBefore = totalBefore.Add(prefillTotal)
	}
	totalAfter := totalBefore.Add(remaining)

	n := len(view.Buckets)
	current := make([]decimal.Decimal, n)
	targets := make([]decimal.Decimal, n)
	deficits := make([]decimal.Decimal, n)
	weights := make([]decimal.Decimal, n)
	for i, b := range view.Buckets {
		cur := decimal.NewFromFloat(b.Value)
		if !opts.PrefillInView {
			cur = cur.Add(prefillByBucket[b.ID])
		}
		weights[i] = decimal.NewFromFloat(b.TargetWeight)
		targets[i] = weights[i].Mul(totalAfter)
		current[i] = cur
		deficits[i] = decimal.Max(decimal.Zero, targets[i].Sub(cur))
	}

	amounts, mode := distribute(remaining, deficits, weights, prec)

	if allocated := sumSlice(amounts); !allocated.Equal(remaining) {
		return nil, fmt.Errorf("bucket allocation %s does not add up to %s", allocated, remaining)
	}

	out := &ContributionSuggestion{
		ContributionAmount:    contributionD.InexactFloat64(),
		ContributionRemaining: remaining.InexactFloat64(),
		PrefillAssets:         make(map[string]float64, len(prefillD)),
		PrefillTotal:          prefillTotal.InexactFloat64(),
		TotalBefore:           totalBefore.InexactFloat64(),
		TotalAfter:            totalAfter.InexactFloat64(),
		Mode:                  mode,
		Buckets:               make([]BucketSuggestion, 0, n),
		Note:                  modeNote(mode),
	}
	for id, amt := range prefillD {
		out.PrefillAssets[id] = amt.InexactFloat64()
	}

	for i, b := range view.Buckets {
		lines, err := splitBucket(b, amounts[i], exclude, prec)
		if err != nil {
			return nil, err
		}
		out.Buckets = append(out.Buckets, BucketSuggestion{
			BucketID:         b.ID,
			Name:             b.Name,
			CurrentValue:     current[i].InexactFloat64(),
			CurrentWeight:    ratio(current[i], totalBefore),
			TargetWeight:     b.TargetWeight,
			TargetValueAfter: targets[i].Round(prec).InexactFloat64(),
			Deficit:          deficits[i].Round(prec).InexactFloat64(),
			PrefillAmount:    prefillByBucket[b.ID].InexactFloat64(),
			AllocateAmount:   amounts[i].InexactFloat64(),
			WeightAfter:      ratio(current[i].Add(amounts[i]), totalAfter),
			Assets:           lines,
		})
	}
	return out, nil
}

// distribute assigns remaining across buckets. When deficits cover the
// contribution they are scaled down proportionally; otherwise each deficit
// is filled and the surplus is spread by target weight (equally if no bucket
// has a target). Amounts are truncated to prec and the leftover cents go to
// remainderIndex.
func distribute(remaining decimal.Decimal, deficits, weights []decimal.Decimal, prec int32) ([]decimal.Decimal, string) {
	n := len(deficits)
	amounts := make([]decimal.Decimal, n)
	for i := range amounts {
		amounts[i] = decimal.Zero
	}
	if !remaining.IsPositive() {
		return amounts, ModeDeficit
	}

	raw := make([]decimal.Decimal, n)
	sumDef := sumSlice(deficits)
	mode := ModeDeficit

	if sumDef.IsPositive() && sumDef.GreaterThanOrEqual(remaining) {
		for i := range deficits {
			raw[i] = deficits[i].Mul(remaining).Div(sumDef)
		}
	} else {
		mode = ModeTopUp
		surplus := remaining.Sub(sumDef)
		sumW := sumSlice(weights)
		equal := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(n)))
		for i := range deficits {
			share := equal
			if sumW.IsPositive() {
				share = weights[i].Div(sumW)
			}
			raw[i] = deficits[i].Add(surplus.Mul(share))
		}
	}

	for i := range raw {
		amounts[i] = raw[i].Truncate(prec)
	}
	if leftover := remaining.Sub(sumSlice(amounts)); !leftover.IsZero() {
		idx := remainderIndex(deficits, weights)
		amounts[idx] = amounts[idx].Add(leftover)
	}
	return amounts, mode
}

// remainderIndex picks the bucket with the largest deficit, or with the
// largest target weight when nothing is under target. Ties go to the first.
func remainderIndex(deficits, weights []decimal.Decimal) int {
	best := 0
	for i := 1; i < len(deficits); i++ {
		if deficits[i].GreaterThan(deficits[best]) {
			best = i
		}
	}
	if deficits[best].IsPositive() {
		return best
	}
	best = 0
	for i := 1; i < len(weights); i++ {
		if weights[i].GreaterThan(weights[best]) {
			best = i
		}
	}
	return best
}

// normalizePrefill validates caller prefill and rounds it to prec. Zero
// amounts are dropped.
func normalizePrefill(view *portfolio.PortfolioView, prefill map[string]float64, prec int32) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(prefill))
	ids := make([]string, 0, len(prefill))
	for id := range prefill {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		amt := prefill[id]
		if math.IsNaN(amt) || math.IsInf(amt, 0) || amt < 0 {
			return nil, domain.InvalidInput("prefill for %q must be a non-negative amount", id)
		}
		if view.Asset(id) == nil {
			return nil, domain.InvalidInput("prefill references unknown asset %q", id)
		}
		d := decimal.NewFromFloat(amt).Round(prec)
		if d.IsZero() {
			continue
		}
		out[id] = d
	}
	return out, nil
}

func modeNote(mode string) string {
	if mode == ModeTopUp {
		return "Every bucket reaches its target; the surplus is spread by target weight."
	}
	return "New money goes to buckets below target first, in proportion to their deficits."
}

func sumSlice(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

func sumValues(values map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

func ratio(num, den decimal.Decimal) float64 {
	if !den.IsPositive() {
		return 0
	}
	return num.Div(den).InexactFloat64()
}
