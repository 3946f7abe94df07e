package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/permanent/internal/domain"
)

func entry(direction domain.LedgerDirection, amount float64, days int) domain.LedgerEntry {
	return domain.LedgerEntry{Date: daysAfter(days), Direction: direction, Amount: amount}
}

func TestComputeMetrics_SingleDepositOneYear(t *testing.T) {
	m := ComputeMetrics([]domain.LedgerEntry{
		entry(domain.LedgerDeposit, 10000, 0),
	}, 11000, daysAfter(365))

	assert.Equal(t, 10000.0, m.Principal)
	assert.Equal(t, 1000.0, m.Profit)
	assert.Equal(t, 11000.0, m.CurrentValue)
	assert.Equal(t, 1, m.Entries)
	require.NotNil(t, m.XIRRAnnual)
	assert.InDelta(t, 0.10, *m.XIRRAnnual, 1e-6)
	assert.Equal(t, "ok", m.XIRRStatus)
	require.NotNil(t, m.StartDate)
	assert.True(t, m.StartDate.Equal(day0))
}

func TestComputeMetrics_WithdrawalsReducePrincipal(t *testing.T) {
	m := ComputeMetrics([]domain.LedgerEntry{
		entry(domain.LedgerDeposit, 5000, 0),
		entry(domain.LedgerDeposit, 3000, 100),
		entry(domain.LedgerWithdraw, 1000, 200),
	}, 7700, daysAfter(365))

	assert.Equal(t, 7000.0, m.Principal)
	assert.InDelta(t, 700.0, m.Profit, 1e-9)
	require.NotNil(t, m.XIRRAnnual)
	assert.Greater(t, *m.XIRRAnnual, 0.0)
}

func TestComputeMetrics_ZeroPrincipalHasNoRate(t *testing.T) {
	m := ComputeMetrics([]domain.LedgerEntry{
		entry(domain.LedgerDeposit, 1000, 0),
		entry(domain.LedgerWithdraw, 1000, 30),
	}, 50, daysAfter(365))

	assert.Equal(t, 0.0, m.Principal)
	assert.Equal(t, 50.0, m.Profit)
	assert.Nil(t, m.XIRRAnnual)
	assert.Equal(t, ReasonZeroPrincipal, m.XIRRStatus)
}

func TestComputeMetrics_SameDateHasNoRate(t *testing.T) {
	m := ComputeMetrics([]domain.LedgerEntry{
		entry(domain.LedgerDeposit, 1000, 0),
	}, 1100, day0)

	assert.Equal(t, 100.0, m.Profit)
	assert.Nil(t, m.XIRRAnnual)
	assert.Equal(t, ReasonSameDate, m.XIRRStatus)
}

func TestComputeMetrics_NoEntries(t *testing.T) {
	m := ComputeMetrics(nil, 500, day0)

	assert.Equal(t, 0.0, m.Principal)
	assert.Equal(t, 500.0, m.Profit)
	assert.Nil(t, m.XIRRAnnual)
	assert.Nil(t, m.StartDate)
	assert.Equal(t, ReasonTooFewFlows, m.XIRRStatus)
}

func TestComputeMetrics_ZeroCurrentValue(t *testing.T) {
	m := ComputeMetrics([]domain.LedgerEntry{
		entry(domain.LedgerDeposit, 1000, 0),
		entry(domain.LedgerDeposit, 1000, 10),
	}, 0, daysAfter(365))

	assert.Equal(t, -2000.0, m.Profit)
	assert.Nil(t, m.XIRRAnnual)
	assert.Equal(t, ReasonSingleSign, m.XIRRStatus)
}

func TestComputeMetrics_Idempotent(t *testing.T) {
	entries := []domain.LedgerEntry{
		entry(domain.LedgerDeposit, 2500, 0),
		entry(domain.LedgerDeposit, 2500, 120),
		entry(domain.LedgerWithdraw, 400, 300),
	}
	first := ComputeMetrics(entries, 5100, daysAfter(500))
	second := ComputeMetrics(entries, 5100, daysAfter(500))
	assert.Equal(t, first, second)
}
