package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_RecordRefresh(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordRefresh(150*time.Millisecond, false)
	r.RecordRefresh(0, true)
	r.RecordRefresh(0, true)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.refreshTotal.WithLabelValues("completed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.refreshTotal.WithLabelValues("skipped")))
}

func TestRecorder_SourceErrorsAndGauges(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordSourceError("coingecko")
	r.RecordSourceError("coingecko")
	r.RecordSourceError("evm")
	r.RecordAssetsInError(3)
	r.RecordPortfolioTotal(12500.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.sourceErrors.WithLabelValues("coingecko")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sourceErrors.WithLabelValues("evm")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.assetsInError))
	assert.Equal(t, 12500.5, testutil.ToFloat64(r.portfolioTotal))
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}

func TestRecorder_RecordJob(t *testing.T) {
	r := New(prometheus.NewRegistry())

	r.RecordJob("history_cleanup", time.Second, nil)
	r.RecordJob("history_cleanup", time.Second, assert.AnError)
	r.RecordJob("history_cleanup", time.Second, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.jobRuns.WithLabelValues("history_cleanup", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobRuns.WithLabelValues("history_cleanup", "failed")))
}
