// Package metrics exposes Prometheus instrumentation for the quote cache and valuation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements quotes.Recorder using Prometheus.
type Recorder struct {
	refreshDuration prometheus.Histogram
	refreshTotal    *prometheus.CounterVec
	sourceErrors    *prometheus.CounterVec
	assetsInError   prometheus.Gauge
	portfolioTotal  prometheus.Gauge
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
}

// New creates a recorder whose collectors are registered on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "permanent_quote_refresh_duration_seconds",
			Help:    "Duration of quote cache refresh cycles in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		refreshTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permanent_quote_refresh_total",
				Help: "Quote cache refresh cycles by outcome",
			},
			[]string{"outcome"},
		),
		sourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permanent_quote_source_errors_total",
				Help: "Per-asset fetch failures by source",
			},
			[]string{"source"},
		),
		assetsInError: factory.NewGauge(prometheus.GaugeOpts{
			Name: "permanent_assets_in_error",
			Help: "Number of assets whose latest quote is in error state",
		}),
		portfolioTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "permanent_portfolio_total_value",
			Help: "Last computed portfolio total value in base currency",
		}),
		jobRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permanent_job_runs_total",
				Help: "Scheduled job runs by job and outcome",
			},
			[]string{"job", "outcome"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "permanent_job_duration_seconds",
				Help:    "Duration of scheduled job runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"job"},
		),
	}
}

// RecordRefresh records a completed or skipped refresh cycle.
func (r *Recorder) RecordRefresh(d time.Duration, skipped bool) {
	if skipped {
		r.refreshTotal.WithLabelValues("skipped").Inc()
		return
	}
	r.refreshTotal.WithLabelValues("completed").Inc()
	r.refreshDuration.Observe(d.Seconds())
}

// RecordSourceError records one failed fetch against a source.
func (r *Recorder) RecordSourceError(source string) {
	r.sourceErrors.WithLabelValues(source).Inc()
}

// RecordAssetsInError sets the number of assets currently in error.
func (r *Recorder) RecordAssetsInError(n int) {
	r.assetsInError.Set(float64(n))
}

// RecordPortfolioTotal sets the last computed total value.
func (r *Recorder) RecordPortfolioTotal(total float64) {
	r.portfolioTotal.Set(total)
}

// RecordJob records one scheduled job run.
func (r *Recorder) RecordJob(name string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	r.jobRuns.WithLabelValues(name, outcome).Inc()
	r.jobDuration.WithLabelValues(name).Observe(d.Seconds())
}
