package di

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/creasty/defaults"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/permanent/internal/config"
	"github.com/aristath/permanent/internal/database"
)

// testConfig returns the default configuration rooted in a temp dir
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	require.NoError(t, defaults.Set(cfg))
	cfg.DataDir = t.TempDir()
	cfg.Timezone = "UTC"
	return cfg
}

func TestInitializeDatabases(t *testing.T) {
	cfg := testConfig(t)

	container, err := InitializeDatabases(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	assert.NotNil(t, container.ConfigDB)
	assert.NotNil(t, container.LedgerDB)
	assert.NotNil(t, container.HistoryDB)
	assert.NotNil(t, container.ClientDataDB)
	assert.Len(t, container.Databases(), 4)

	for _, name := range []string{
		database.NameConfig,
		database.NameLedger,
		database.NameHistory,
		database.NameClientData,
	} {
		_, err := os.Stat(filepath.Join(cfg.DataDir, name+".db"))
		assert.NoError(t, err, "database file for %s", name)
	}
}

func TestInitializeDatabasesBadDir(t *testing.T) {
	cfg := testConfig(t)
	// A regular file where the data directory should be
	blocker := filepath.Join(cfg.DataDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))
	cfg.DataDir = filepath.Join(blocker, "data")

	_, err := InitializeDatabases(cfg, zerolog.Nop())
	assert.Error(t, err)
}
