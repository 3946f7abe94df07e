package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/permanent/internal/clientdata"
	"github.com/aristath/permanent/internal/database"
	testingpkg "github.com/aristath/permanent/internal/testing"
)

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_ParsesMarketsResponse(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/markets", r.URL.Path)
		assert.Equal(t, "cny", r.URL.Query().Get("vs_currency"))
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		assert.Equal(t, "24h", r.URL.Query().Get("price_change_percentage"))
		assert.Equal(t, "demo-key", r.Header.Get("x-cg-demo-api-key"))
		_, _ = w.Write([]byte(`[{"id":"bitcoin","name":"Bitcoin","current_price":450000.5,
			"price_change_percentage_24h":-1.25,"last_updated":"2024-06-03T09:29:00.000Z"}]`))
	})

	c := NewClient(srv.URL, "demo-key", "CNY", nil, zerolog.Nop())
	q, err := c.Fetch(context.Background(), testingpkg.WalletAsset("btc", "equity", "bitcoin"))
	require.NoError(t, err)

	assert.Equal(t, "Bitcoin", q.Name)
	assert.Equal(t, 450000.5, q.Price)
	require.NotNil(t, q.ChangePct)
	assert.Equal(t, -1.25, *q.ChangePct)
	assert.Equal(t, 2024, q.AsOf.Year())
	assert.Equal(t, 29, q.AsOf.Minute())
}

func TestFetch_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusTooManyRequests, `{}`},
		{"unknown coin", http.StatusOK, `[]`},
		{"missing price", http.StatusOK, `[{"id":"bitcoin","name":"Bitcoin","current_price":null}]`},
		{"bad json", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			c := NewClient(srv.URL, "", "cny", nil, zerolog.Nop())
			_, err := c.Fetch(context.Background(), testingpkg.WalletAsset("btc", "equity", "bitcoin"))
			assert.Error(t, err)
		})
	}
}

func TestFetch_MissingCoinID(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", "cny", nil, zerolog.Nop())
	_, err := c.Fetch(context.Background(), testingpkg.WalletAsset("btc", "equity", ""))
	assert.Error(t, err)
}

func TestFetch_CachesFreshPrices(t *testing.T) {
	var calls atomic.Int32
	fail := atomic.Bool{}
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"ethereum","name":"Ethereum","current_price":25000}]`))
	})

	db := testingpkg.NewTestDB(t, database.NameClientData)
	cache := clientdata.NewRepository(db.Conn())
	c := NewClient(srv.URL, "", "cny", cache, zerolog.Nop())
	asset := testingpkg.WalletAsset("eth", "equity", "ethereum")

	q1, err := c.Fetch(context.Background(), asset)
	require.NoError(t, err)
	q2, err := c.Fetch(context.Background(), asset)
	require.NoError(t, err)

	assert.Equal(t, q1.Price, q2.Price)
	assert.Equal(t, int32(1), calls.Load())

	// An expired price is never served when the API fails
	require.NoError(t, cache.Delete(clientdata.TableCoinPrices, "cny:ethereum"))
	fail.Store(true)
	_, err = c.Fetch(context.Background(), asset)
	assert.Error(t, err)
}
