package ledger

import (
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/aristath/permanent/internal/domain"
)

// Metrics summarizes a set of ledger entries against a current value.
// XIRRAnnual is nil when the rate is undefined; XIRRStatus then holds the
// reason, otherwise it is "ok".
type Metrics struct {
	Principal    float64    `json:"principal"`
	CurrentValue float64    `json:"current_value"`
	Profit       float64    `json:"profit"`
	XIRRAnnual   *float64   `json:"xirr_annual"`
	XIRRStatus   string     `json:"xirr_status"`
	StartDate    *time.Time `json:"start_date"`
	Entries      int        `json:"entries"`
}

const statusOK = "ok"

// ComputeMetrics derives principal (deposits minus withdrawals), profit and
// XIRR. The XIRR flows are each entry's cash flow on its date plus the
// current value as a final inflow at asOf. It performs no I/O.
func ComputeMetrics(entries []domain.LedgerEntry, currentValue float64, asOf time.Time) Metrics {
	m := Metrics{
		CurrentValue: currentValue,
		Entries:      len(entries),
	}

	signed := make([]float64, len(entries))
	flows := make([]Flow, 0, len(entries)+1)
	for i, e := range entries {
		signed[i] = e.SignedAmount()
		flows = append(flows, Flow{Date: e.Date, Amount: e.CashFlow()})
		if m.StartDate == nil || e.Date.Before(*m.StartDate) {
			d := e.Date
			m.StartDate = &d
		}
	}
	m.Principal = floats.Sum(signed)
	m.Profit = currentValue - m.Principal

	if math.Abs(m.Principal) < 1e-9 && len(entries) > 0 {
		m.XIRRStatus = ReasonZeroPrincipal
		return m
	}
	if currentValue > 0 {
		flows = append(flows, Flow{Date: asOf, Amount: currentValue})
	}

	res := SolveXIRR(flows, XIRROptions{})
	m.XIRRAnnual = res.RatePtr()
	m.XIRRStatus = statusOK
	if !res.Converged {
		m.XIRRStatus = res.Reason
	}
	return m
}
