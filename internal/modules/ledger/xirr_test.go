package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func daysAfter(n int) time.Time {
	return day0.AddDate(0, 0, n)
}

func npvAt(flows []Flow, r float64) float64 {
	var total float64
	for _, f := range flows {
		y := f.Date.Sub(day0).Hours() / 24 / 365
		total += f.Amount / math.Pow(1+r, y)
	}
	return total
}

func TestSolveXIRR_OneYearTenPercent(t *testing.T) {
	res := SolveXIRR([]Flow{
		{Date: day0, Amount: -10000},
		{Date: daysAfter(365), Amount: 11000},
	}, XIRROptions{})

	require.True(t, res.Converged, res.Reason)
	assert.InDelta(t, 0.10, res.Rate, 1e-6)
	require.NotNil(t, res.RatePtr())
	assert.InDelta(t, 0.10, *res.RatePtr(), 1e-6)
}

func TestSolveXIRR_Loss(t *testing.T) {
	res := SolveXIRR([]Flow{
		{Date: day0, Amount: -10000},
		{Date: daysAfter(365), Amount: 5000},
	}, XIRROptions{})

	require.True(t, res.Converged)
	assert.InDelta(t, -0.5, res.Rate, 1e-6)
}

func TestSolveXIRR_ExpandsBracketAboveOneHundredPercent(t *testing.T) {
	res := SolveXIRR([]Flow{
		{Date: day0, Amount: -100},
		{Date: daysAfter(365), Amount: 350},
	}, XIRROptions{})

	require.True(t, res.Converged, res.Reason)
	assert.InDelta(t, 2.5, res.Rate, 1e-6)
}

func TestSolveXIRR_MultipleFlowsZeroNPV(t *testing.T) {
	flows := []Flow{
		{Date: day0, Amount: -5000},
		{Date: daysAfter(90), Amount: -2500},
		{Date: daysAfter(200), Amount: 1000},
		{Date: daysAfter(400), Amount: -1500},
		{Date: daysAfter(700), Amount: 9800},
	}
	res := SolveXIRR(flows, XIRROptions{})

	require.True(t, res.Converged, res.Reason)
	assert.InDelta(t, 0, npvAt(flows, res.Rate), 1e-4)
}

func TestSolveXIRR_UnsortedInput(t *testing.T) {
	sorted := SolveXIRR([]Flow{
		{Date: day0, Amount: -1000},
		{Date: daysAfter(100), Amount: -1000},
		{Date: daysAfter(500), Amount: 2300},
	}, XIRROptions{})
	shuffled := SolveXIRR([]Flow{
		{Date: daysAfter(500), Amount: 2300},
		{Date: day0, Amount: -1000},
		{Date: daysAfter(100), Amount: -1000},
	}, XIRROptions{})

	require.True(t, sorted.Converged)
	assert.InDelta(t, sorted.Rate, shuffled.Rate, 1e-9)
}

func TestSolveXIRR_Undefined(t *testing.T) {
	tests := []struct {
		name   string
		flows  []Flow
		reason string
	}{
		{"no flows", nil, ReasonTooFewFlows},
		{"single flow", []Flow{{Date: day0, Amount: -100}}, ReasonTooFewFlows},
		{"only deposits", []Flow{{Date: day0, Amount: -100}, {Date: daysAfter(10), Amount: -50}}, ReasonSingleSign},
		{"only inflows", []Flow{{Date: day0, Amount: 100}, {Date: daysAfter(10), Amount: 50}}, ReasonSingleSign},
		{"same date", []Flow{{Date: day0, Amount: -100}, {Date: day0, Amount: 120}}, ReasonSameDate},
		{"rate beyond bracket", []Flow{{Date: day0, Amount: -1}, {Date: daysAfter(1), Amount: 1000}}, ReasonNoBracket},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := SolveXIRR(tt.flows, XIRROptions{})
			assert.False(t, res.Converged)
			assert.Nil(t, res.RatePtr())
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestSolveXIRR_IterationCap(t *testing.T) {
	res := SolveXIRR([]Flow{
		{Date: day0, Amount: -10000},
		{Date: daysAfter(100), Amount: 3000},
		{Date: daysAfter(365), Amount: 8000},
	}, XIRROptions{MaxIterations: 1, Tolerance: 1e-15})

	assert.False(t, res.Converged)
	assert.Equal(t, ReasonNotConverged, res.Reason)
	assert.Equal(t, 1, res.Iterations)
}

func TestSolveXIRR_Deterministic(t *testing.T) {
	flows := []Flow{
		{Date: day0, Amount: -1200},
		{Date: daysAfter(45), Amount: -300},
		{Date: daysAfter(410), Amount: 1710.5},
	}
	first := SolveXIRR(flows, XIRROptions{})
	second := SolveXIRR(flows, XIRROptions{})
	assert.Equal(t, first, second)
}
