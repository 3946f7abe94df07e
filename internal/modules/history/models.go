// Package history records periodic valuation snapshots and serves the
// total-value series behind the history chart.
package history

import "time"

// Snapshot is one recorded valuation
type Snapshot struct {
	TS         time.Time       `json:"ts"`
	AsOf       *time.Time      `json:"as_of"`
	TotalValue float64         `json:"total_value"`
	Categories []CategoryPoint `json:"categories"`
	Warnings   []string        `json:"warnings"`
}

// CategoryPoint is a bucket's valuation at snapshot time
type CategoryPoint struct {
	ID           string  `json:"id" msgpack:"id"`
	Name         string  `json:"name" msgpack:"name"`
	Value        float64 `json:"value" msgpack:"value"`
	Weight       float64 `json:"weight" msgpack:"weight"`
	TargetWeight float64 `json:"target_weight" msgpack:"target_weight"`
	MinWeight    float64 `json:"min_weight" msgpack:"min_weight"`
	MaxWeight    float64 `json:"max_weight" msgpack:"max_weight"`
}

// payload is the msgpack-encoded part of a stored snapshot
type payload struct {
	AsOf       *time.Time      `msgpack:"as_of"`
	Categories []CategoryPoint `msgpack:"categories"`
	Warnings   []string        `msgpack:"warnings"`
}

// Point is one total-value sample. SMA is set when smoothing was requested
// and enough samples precede the point.
type Point struct {
	TS    time.Time `json:"t"`
	Value float64   `json:"v"`
	SMA   *float64  `json:"sma,omitempty"`
}

// Series is the total-value history over a window with its change summary.
// ChangePct is nil when the baseline is zero and the value moved.
type Series struct {
	Window        string   `json:"window"`
	Currency      string   `json:"currency"`
	BaselineValue float64  `json:"baseline_value"`
	CurrentValue  float64  `json:"current_value"`
	ChangeValue   float64  `json:"change_value"`
	ChangePct     *float64 `json:"change_pct"`
	Points        []Point  `json:"points"`
}
