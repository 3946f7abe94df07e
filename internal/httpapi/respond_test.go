package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/permanent/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", domain.InvalidInput("bad"), http.StatusBadRequest},
		{"not found", fmt.Errorf("asset x: %w", domain.ErrNotFound), http.StatusNotFound},
		{"missing baseline", domain.ErrMissingBaseline, http.StatusConflict},
		{"insufficient data", domain.InsufficientData("no value"), http.StatusOK},
		{"source", domain.SourceUnavailable("rpc", errors.New("timeout")), http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestWriteError(t *testing.T) {
	log := zerolog.Nop()

	t.Run("insufficient data is flagged", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, log, domain.InsufficientData("portfolio has no value yet"))

		assert.Equal(t, http.StatusOK, w.Code)
		var body InsufficientDataResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.True(t, body.InsufficientData)
		assert.Contains(t, body.Detail, "no value")
	})

	t.Run("internal errors are not leaked", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, log, errors.New("database path /secret"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var body ErrorResponse
		require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
		assert.False(t, body.OK)
		assert.Equal(t, "internal error", body.Error)
	})
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Amount float64 `json:"amount" validate:"gt=0"`
	}

	var ok body
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount": 5}`))
	require.NoError(t, DecodeJSON(req, &ok))
	assert.Equal(t, 5.0, ok.Amount)

	var bad body
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount": 0}`))
	err := DecodeJSON(req, &bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "amount must be greater than 0")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	assert.ErrorIs(t, DecodeJSON(req, &bad), domain.ErrInvalidInput)
}

func TestQueryHelpers(t *testing.T) {
	q := url.Values{}
	q.Set("contribution", "250.5")
	q.Set("bad", "abc")
	q.Set("max_points", "99999")
	q.Set("prefill", `{"eth": 100, "btc": "20", "zero": 0}`)
	req := httptest.NewRequest(http.MethodGet, "/?"+q.Encode(), nil)

	v, err := QueryFloat(req, "contribution")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, 250.5, *v)

	v, err = QueryFloat(req, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = QueryFloat(req, "bad")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Equal(t, 2000, QueryInt(req, "max_points", 240, 10, 2000))
	assert.Equal(t, 240, QueryInt(req, "missing", 240, 10, 2000))

	amounts, err := QueryAmounts(req, "prefill")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"eth": 100, "btc": 20, "zero": 0}, amounts)

	_, err = QueryAmounts(req, "bad")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = Required(nil, "contribution")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestQueryAmountsRejectsMalformedEntries(t *testing.T) {
	cases := map[string]string{
		"negative":    `{"eth": 100, "neg": -1}`,
		"object":      `{"eth": 100, "obj": {}}`,
		"non numeric": `{"eth": "lots"}`,
		"boolean":     `{"eth": true}`,
		"empty id":    `{" ": 5}`,
		"null":        `{"eth": null}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			q := url.Values{}
			q.Set("prefill", raw)
			req := httptest.NewRequest(http.MethodGet, "/?"+q.Encode(), nil)

			amounts, err := QueryAmounts(req, "prefill")
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Nil(t, amounts)
		})
	}
}
