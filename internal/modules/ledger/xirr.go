package ledger

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
)

// XIRR solver defaults
const (
	DefaultTolerance     = 1e-8
	DefaultMaxIterations = 200

	xirrLower    = -0.9999
	xirrUpper    = 1.0
	xirrUpperCap = 1e6
	daysPerYear  = 365.0
)

// Reasons an XIRR is absent
const (
	ReasonTooFewFlows   = "too_few_flows"
	ReasonSingleSign    = "single_sign"
	ReasonSameDate      = "same_date"
	ReasonNoBracket     = "no_bracket"
	ReasonNotConverged  = "not_converged"
	ReasonZeroPrincipal = "zero_principal"
	ReasonValueUnknown  = "value_unknown"
)

// Flow is a dated cash flow from the investor's point of view: money put in
// is negative, money taken out (including the terminal value) is positive.
type Flow struct {
	Date   time.Time
	Amount float64
}

// XIRROptions tune the solver. Zero values use the defaults.
type XIRROptions struct {
	Tolerance     float64
	MaxIterations int
}

// XIRRResult is the outcome of SolveXIRR. Rate is meaningful only when
// Converged is true; otherwise Reason says why there is no rate.
type XIRRResult struct {
	Rate       float64
	Converged  bool
	Iterations int
	Reason     string
}

// RatePtr returns the rate, or nil when the solver did not converge
func (r XIRRResult) RatePtr() *float64 {
	if !r.Converged {
		return nil
	}
	v := r.Rate
	return &v
}

// SolveXIRR finds the annual rate r for which the net present value of
// flows is zero, with year fractions counted as days/365 from the earliest
// flow.
//
// The root is bracketed on [-0.9999, 1], doubling the upper bound up to 1e6,
// and then refined by Newton steps that fall back to bisection whenever a
// step would leave the bracket. The result is deterministic for a given
// input.
func SolveXIRR(flows []Flow, opts XIRROptions) XIRRResult {
	tol := opts.Tolerance
	if tol <= 0 {
		tol = DefaultTolerance
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	if len(flows) < 2 {
		return XIRRResult{Reason: ReasonTooFewFlows}
	}

	sorted := make([]Flow, len(flows))
	copy(sorted, flows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	var hasPos, hasNeg bool
	for _, f := range sorted {
		if f.Amount > 0 {
			hasPos = true
		} else if f.Amount < 0 {
			hasNeg = true
		}
	}
	if !hasPos || !hasNeg {
		return XIRRResult{Reason: ReasonSingleSign}
	}

	t0 := sorted[0].Date
	years := make([]float64, len(sorted))
	amounts := make([]float64, len(sorted))
	spread := false
	for i, f := range sorted {
		years[i] = f.Date.Sub(t0).Hours() / 24 / daysPerYear
		amounts[i] = f.Amount
		if years[i] > 0 {
			spread = true
		}
	}
	if !spread {
		return XIRRResult{Reason: ReasonSameDate}
	}

	terms := make([]float64, len(sorted))
	npv := func(r float64) float64 {
		for i := range amounts {
			terms[i] = amounts[i] / math.Pow(1+r, years[i])
		}
		return floats.Sum(terms)
	}
	dnpv := func(r float64) float64 {
		for i := range amounts {
			terms[i] = -years[i] * amounts[i] / math.Pow(1+r, years[i]+1)
		}
		return floats.Sum(terms)
	}

	lo, hi := xirrLower, xirrUpper
	flo, fhi := npv(lo), npv(hi)
	for !bracketed(flo, fhi) {
		hi *= 2
		if hi > xirrUpperCap {
			return XIRRResult{Reason: ReasonNoBracket}
		}
		fhi = npv(hi)
	}
	if flo == 0 {
		return XIRRResult{Rate: lo, Converged: true}
	}
	if fhi == 0 {
		return XIRRResult{Rate: hi, Converged: true}
	}

	x := 0.1
	if x <= lo || x >= hi {
		x = (lo + hi) / 2
	}
	for i := 1; i <= maxIter; i++ {
		fx := npv(x)
		if fx == 0 {
			return XIRRResult{Rate: x, Converged: true, Iterations: i}
		}
		if math.Signbit(fx) == math.Signbit(flo) {
			lo, flo = x, fx
		} else {
			hi = x
		}

		next := x
		if d := dnpv(x); d != 0 && !math.IsNaN(d) && !math.IsInf(d, 0) {
			next = x - fx/d
		}
		if next <= lo || next >= hi || next == x || math.IsNaN(next) {
			next = (lo + hi) / 2
		}

		if math.Abs(next-x) < tol || hi-lo < tol {
			return XIRRResult{Rate: next, Converged: true, Iterations: i}
		}
		x = next
	}
	return XIRRResult{Iterations: maxIter, Reason: ReasonNotConverged}
}

func bracketed(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) || math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	return a == 0 || b == 0 || math.Signbit(a) != math.Signbit(b)
}
