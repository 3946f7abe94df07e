// Package rebalancing flags buckets that drifted out of their weight band
// and computes how much new money would restore the targets.
package rebalancing

import (
	"fmt"
	"math"
	"strconv"

	"github.com/aristath/permanent/internal/modules/portfolio"
)

// Deviation directions
const (
	DirectionAbove = "above"
	DirectionBelow = "below"
)

// Warning is one out-of-band bucket
type Warning struct {
	BucketID   string  `json:"bucket_id"`
	BucketName string  `json:"bucket_name"`
	Direction  string  `json:"direction"`
	Weight     float64 `json:"weight"`
	Limit      float64 `json:"limit"`
	Message    string  `json:"message"`
}

// Report is the outcome of Detect.
//
// InsufficientData is set when the portfolio has no value yet; no bucket is
// judged in that state. Degraded lists buckets that sit below their floor
// but contain an asset that failed to price, so their weight is only a lower
// bound and no warning is raised for them.
type Report struct {
	Warnings         []Warning `json:"warnings"`
	InsufficientData bool      `json:"insufficient_data"`
	Degraded         []string  `json:"degraded"`
}

// NeedsRebalance reports whether any bucket is out of band
func (r Report) NeedsRebalance() bool {
	return len(r.Warnings) > 0
}

// Messages returns the warning texts in bucket order
func (r Report) Messages() []string {
	out := make([]string, 0, len(r.Warnings))
	for _, w := range r.Warnings {
		out = append(out, w.Message)
	}
	return out
}

// Detect checks each bucket's weight against [MinWeight, MaxWeight]
func Detect(view *portfolio.PortfolioView) Report {
	report := Report{
		Warnings: []Warning{},
		Degraded: []string{},
	}
	if view.TotalValue <= 0 {
		report.InsufficientData = true
		return report
	}

	for _, b := range view.Buckets {
		switch {
		case b.Weight > b.MaxWeight:
			report.Warnings = append(report.Warnings, Warning{
				BucketID:   b.ID,
				BucketName: b.Name,
				Direction:  DirectionAbove,
				Weight:     b.Weight,
				Limit:      b.MaxWeight,
				Message:    fmt.Sprintf("%s at %s, above the %s ceiling", b.Name, formatPct(b.Weight, 1), formatPct(b.MaxWeight, -1)),
			})
		case b.Weight < b.MinWeight:
			if b.HasErrors {
				report.Degraded = append(report.Degraded, b.ID)
				continue
			}
			report.Warnings = append(report.Warnings, Warning{
				BucketID:   b.ID,
				BucketName: b.Name,
				Direction:  DirectionBelow,
				Weight:     b.Weight,
				Limit:      b.MinWeight,
				Message:    fmt.Sprintf("%s at %s, below the %s floor", b.Name, formatPct(b.Weight, 1), formatPct(b.MinWeight, -1)),
			})
		}
	}
	return report
}

// Apply returns a copy of view with flagged buckets set to warn and the
// report's messages appended to the view warnings
func Apply(view *portfolio.PortfolioView, report Report) *portfolio.PortfolioView {
	out := view.Clone()
	for _, w := range report.Warnings {
		b := out.Bucket(w.BucketID)
		if b == nil {
			continue
		}
		b.Status = portfolio.BucketStatusWarn
		b.Notes = append(b.Notes, w.Message)
		out.Warnings = append(out.Warnings, w.Message)
	}
	for _, id := range report.Degraded {
		if b := out.Bucket(id); b != nil {
			b.Notes = append(b.Notes, "weight understated: a member asset failed to price")
		}
	}
	return out
}

// formatPct renders a fraction as a percentage. decimals < 0 uses the
// shortest form ("35%"), otherwise a fixed number of decimals ("38.2%").
func formatPct(fraction float64, decimals int) string {
	pct := fraction * 100
	if decimals < 0 {
		return strconv.FormatFloat(math.Round(pct*100)/100, 'f', -1, 64) + "%"
	}
	return strconv.FormatFloat(pct, 'f', decimals, 64) + "%"
}
