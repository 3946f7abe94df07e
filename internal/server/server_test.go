package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/permanent/internal/config"
	"github.com/aristath/permanent/internal/di"
)

func setupServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{}
	require.NoError(t, defaults.Set(cfg))
	cfg.DataDir = t.TempDir()
	cfg.Timezone = "UTC"

	container, _, err := di.Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	return New(Config{
		Log:       zerolog.Nop(),
		Port:      0,
		DevMode:   true,
		Container: container,
	})
}

func do(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(setupServer(t), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"healthy"`)
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(setupServer(t), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestSystemStatus(t *testing.T) {
	w := do(setupServer(t), http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp SystemStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Len(t, resp.Databases, 4)
	assert.NotEmpty(t, resp.Jobs)
	assert.Nil(t, resp.Cache.RefreshedAt)
}

func TestRunJob(t *testing.T) {
	s := setupServer(t)

	t.Run("unknown job", func(t *testing.T) {
		w := do(s, http.MethodPost, "/api/system/jobs/nope/run", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("wal checkpoint", func(t *testing.T) {
		w := do(s, http.MethodPost, "/api/system/jobs/wal_checkpoint/run", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"wal_checkpoint"`)
	})
}

func TestModuleRoutesMounted(t *testing.T) {
	s := setupServer(t)

	tests := []struct {
		path string
		code int
	}{
		{"/api/v2/portfolio", http.StatusOK},
		{"/api/v2/settings/", http.StatusOK},
		{"/api/v2/ledger/", http.StatusOK},
		{"/api/v2/total-history", http.StatusOK},
		{"/api/v2/notifications", http.StatusOK},
		{"/api/v2/allocation/suggest", http.StatusBadRequest}, // contribution is required
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := do(s, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}
