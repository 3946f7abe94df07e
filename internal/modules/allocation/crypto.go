package allocation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/modules/portfolio"
)

// MaxSlippage caps the slippage tolerance accepted by ConfirmAfterCrypto
const MaxSlippage = 0.2

// CryptoPlan is the first phase of the crypto flow: a regular suggestion
// plus what the caller must hold on to until the on-chain purchase is done.
//
// Expected is the amount suggested per wallet-tracked crypto asset. Baseline
// is the current value of every wallet-tracked crypto asset. It is nil when
// any of them has no known value, and BaselineError then says why; a
// confirmation without a baseline is rejected.
type CryptoPlan struct {
	Suggestion    *ContributionSuggestion `json:"suggestion"`
	Expected      map[string]float64      `json:"expected"`
	Baseline      map[string]float64      `json:"baseline"`
	BaselineError string                  `json:"baseline_error,omitempty"`
}

// ConfirmRequest is the caller-held state sent back for phase two
type ConfirmRequest struct {
	Contribution float64            `json:"contribution" validate:"gt=0"`
	Baseline     map[string]float64 `json:"baseline"`
	Expected     map[string]float64 `json:"expected"`
	Slippage     float64            `json:"slippage"`
}

// PlanCrypto runs Suggest without prefill and captures the expected crypto
// amounts and the balance baseline
func PlanCrypto(view *portfolio.PortfolioView, contribution float64, opts Options) (*CryptoPlan, error) {
	suggestion, err := Suggest(view, contribution, nil, opts)
	if err != nil {
		return nil, err
	}

	plan := &CryptoPlan{
		Suggestion: suggestion,
		Expected:   make(map[string]float64),
	}

	var unknown []string
	baseline := make(map[string]float64)
	for _, a := range view.AllAssets() {
		if !a.WalletTracked {
			continue
		}
		if amt := suggestion.AssetAmount(a.ID); amt > 0 {
			plan.Expected[a.ID] = amt
		}
		if !a.ValueKnown {
			reason := a.ErrorDetail
			if reason == "" {
				reason = "value unknown"
			}
			unknown = append(unknown, fmt.Sprintf("%s (%s)", a.Name, reason))
			continue
		}
		baseline[a.ID] = a.Value
	}

	if len(unknown) > 0 {
		plan.BaselineError = "cannot capture crypto baseline: " + strings.Join(unknown, ", ")
		return plan, nil
	}
	plan.Baseline = baseline
	return plan, nil
}

// ClampSlippage bounds a slippage tolerance to [0, MaxSlippage]
func ClampSlippage(s float64) float64 {
	return math.Max(0, math.Min(MaxSlippage, s))
}

// ConfirmAfterCrypto is phase two. view must be built from balances read
// after the on-chain purchase.
//
// For each asset in req.Expected the credited amount is
// min(expected, max(0, current − baseline) × (1 + slippage)), rounded down to
// the currency unit. Credits are prefilled as already present in the view
// and the rest of the contribution is suggested across everything except
// wallet-tracked crypto. A missing baseline is rejected with
// domain.ErrMissingBaseline rather than treated as zero.
func ConfirmAfterCrypto(view *portfolio.PortfolioView, req ConfirmRequest, opts Options) (*ContributionSuggestion, error) {
	if math.IsNaN(req.Contribution) || math.IsInf(req.Contribution, 0) || req.Contribution <= 0 {
		return nil, domain.InvalidInput("contribution must be a positive amount, got %v", req.Contribution)
	}
	if math.IsNaN(req.Slippage) || math.IsInf(req.Slippage, 0) {
		return nil, domain.InvalidInput("slippage must be a number")
	}
	if req.Baseline == nil {
		return nil, domain.ErrMissingBaseline
	}
	slippage := ClampSlippage(req.Slippage)
	prec := opts.precision()
	factor := decimal.NewFromFloat(1 + slippage)

	ids := make([]string, 0, len(req.Expected))
	for id := range req.Expected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	credits := make(map[string]float64, len(ids))
	for _, id := range ids {
		expected := req.Expected[id]
		if math.IsNaN(expected) || math.IsInf(expected, 0) || expected < 0 {
			return nil, domain.InvalidInput("expected amount for %q must be a non-negative number", id)
		}
		if expected == 0 {
			continue
		}

		base, ok := req.Baseline[id]
		if !ok {
			return nil, fmt.Errorf("%w: no baseline for %q", domain.ErrMissingBaseline, id)
		}
		if math.IsNaN(base) || math.IsInf(base, 0) || base < 0 {
			return nil, domain.InvalidInput("baseline for %q must be a non-negative number", id)
		}

		av := view.Asset(id)
		if av == nil || !av.WalletTracked {
			return nil, domain.InvalidInput("%q is not a wallet-tracked crypto asset", id)
		}
		if !av.ValueKnown {
			return nil, fmt.Errorf("%w: current balance of %q is unknown", domain.ErrInconsistentState, id)
		}

		acquired := decimal.Max(decimal.Zero, decimal.NewFromFloat(av.Value).Sub(decimal.NewFromFloat(base)))
		credit := decimal.Min(decimal.NewFromFloat(expected), acquired.Mul(factor)).Truncate(prec)
		if credit.IsPositive() {
			credits[id] = credit.InexactFloat64()
		}
	}

	exclude := make(map[string]bool)
	for id := range opts.Exclude {
		exclude[id] = true
	}
	for _, a := range view.AllAssets() {
		if a.WalletTracked {
			exclude[a.ID] = true
		}
	}

	out, err := suggest(view, req.Contribution, credits, Options{
		Precision:     opts.Precision,
		PrefillInView: true,
		Exclude:       exclude,
	})
	if err != nil {
		return nil, err
	}
	out.SlippageTolerance = &slippage
	out.BaselineUsed = true
	return out, nil
}
