// Package di provides dependency injection for database connections.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/config"
	"github.com/aristath/permanent/internal/database"
)

type dbDef struct {
	name    string
	profile database.DatabaseProfile
	target  func(c *Container) **database.DB
}

// dbDefs lists the databases in open order
var dbDefs = []dbDef{
	// config.db - buckets, assets, settings, notification state
	{database.NameConfig, database.ProfileStandard, func(c *Container) **database.DB { return &c.ConfigDB }},
	// ledger.db - deposits and withdrawals, maximum durability
	{database.NameLedger, database.ProfileLedger, func(c *Container) **database.DB { return &c.LedgerDB }},
	// history.db - valuation snapshots
	{database.NameHistory, database.ProfileStandard, func(c *Container) **database.DB { return &c.HistoryDB }},
	// client_data.db - disposable adapter response cache
	{database.NameClientData, database.ProfileCache, func(c *Container) **database.DB { return &c.ClientDataDB }},
}

// InitializeDatabases opens all databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{Config: cfg}

	for _, def := range dbDefs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, def.name+".db"),
			Profile: def.profile,
			Name:    def.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", def.name, err)
		}
		*def.target(container) = db

		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate %s database: %w", def.name, err)
		}
	}

	log.Info().Int("databases", len(dbDefs)).Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}
