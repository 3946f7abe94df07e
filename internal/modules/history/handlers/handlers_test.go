package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/permanent/internal/modules/history"
)

type call struct {
	window    string
	maxPoints int
	smooth    int
	current   *float64
}

type fakeSeries struct {
	last call
}

func (f *fakeSeries) Series(window string, maxPoints, smooth int, current *float64) (*history.Series, error) {
	f.last = call{window, maxPoints, smooth, current}
	now := time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)
	s := history.Summarize([]history.Point{{TS: now.Add(-time.Hour), Value: 1000}}, current, now, window, "CNY")
	return &s, nil
}

type fakeTotals struct {
	total *float64
	err   error
}

func (f fakeTotals) CurrentTotal(ctx context.Context) (*float64, error) {
	return f.total, f.err
}

func serve(h *Handler, path string) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	h.RegisterRoutes(router)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandleTotalHistoryDefaults(t *testing.T) {
	series := &fakeSeries{}
	total := 1100.0
	h := NewHandler(series, fakeTotals{total: &total}, zerolog.Nop())

	w := serve(h, "/total-history")
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, "24h", series.last.window)
	assert.Equal(t, history.DefaultMaxPoints, series.last.maxPoints)
	assert.Zero(t, series.last.smooth)

	var body history.Series
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 1000.0, body.BaselineValue)
	assert.Equal(t, 1100.0, body.CurrentValue)
	require.NotNil(t, body.ChangePct)
	assert.InDelta(t, 10, *body.ChangePct, 1e-9)
}

func TestHandleTotalHistoryClampsParams(t *testing.T) {
	series := &fakeSeries{}
	h := NewHandler(series, fakeTotals{}, zerolog.Nop())

	w := serve(h, "/total-history?window=7d&max_points=3&smooth=5")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7d", series.last.window)
	assert.Equal(t, minPoints, series.last.maxPoints)
	assert.Equal(t, 5, series.last.smooth)

	w = serve(h, "/total-history?max_points=999999")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, maxPoints, series.last.maxPoints)
}

func TestHandleTotalHistoryWithoutLiveTotal(t *testing.T) {
	series := &fakeSeries{}
	h := NewHandler(series, fakeTotals{err: errors.New("config unavailable")}, zerolog.Nop())

	w := serve(h, "/total-history")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, series.last.current)
}
