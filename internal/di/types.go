/**
 * Package di provides dependency injection type definitions.
 *
 * The Container holds every long-lived dependency. It is built by Wire()
 * and handed to the server, which builds its handlers from it.
 */
package di

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aristath/permanent/internal/clientdata"
	"github.com/aristath/permanent/internal/clients/chains"
	"github.com/aristath/permanent/internal/clients/coingecko"
	"github.com/aristath/permanent/internal/clients/evm"
	"github.com/aristath/permanent/internal/clients/httpquote"
	"github.com/aristath/permanent/internal/clients/solana"
	"github.com/aristath/permanent/internal/config"
	"github.com/aristath/permanent/internal/database"
	"github.com/aristath/permanent/internal/modules/history"
	"github.com/aristath/permanent/internal/modules/ledger"
	"github.com/aristath/permanent/internal/modules/notifications"
	"github.com/aristath/permanent/internal/modules/portfolio"
	"github.com/aristath/permanent/internal/modules/quotes"
	"github.com/aristath/permanent/internal/modules/settings"
	"github.com/aristath/permanent/internal/reliability"
	"github.com/aristath/permanent/internal/scheduler"
	"github.com/aristath/permanent/internal/services"
	"github.com/aristath/permanent/pkg/metrics"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: config, ledger, history, client_data
 * - Clients: listed quotes (JSONPath endpoint), CoinGecko, EVM JSON-RPC
 * - Repositories: portfolio config, settings, ledger, history, notification state
 * - Services: portfolio, settings, ledger, history, quote cache, engine, notifier
 * - Scheduler: cron jobs for cleanup, reports, integrity checks and backups
 */
type Container struct {
	Config    *config.Config
	StartedAt time.Time

	// Databases
	ConfigDB     *database.DB
	LedgerDB     *database.DB
	HistoryDB    *database.DB
	ClientDataDB *database.DB

	// Repositories
	ClientDataRepo    *clientdata.Repository
	PortfolioRepo     *portfolio.Repository
	SettingsRepo      *settings.Repository
	LedgerRepo        *ledger.Repository
	HistoryRepo       *history.Repository
	NotificationState *notifications.StateRepository

	// Clients
	ListedQuotes *httpquote.Client
	CoinGecko    *coingecko.Client
	EVMReader    *evm.Client
	SolanaReader *solana.Client
	ChainReader  *chains.Router

	// Metrics
	Registry *prometheus.Registry
	Metrics  *metrics.Recorder

	// Services
	PortfolioService *portfolio.Service
	SettingsService  *settings.Service
	LedgerService    *ledger.Service
	HistoryService   *history.Service
	QuoteCache       *quotes.Cache
	Policy           *services.SettingsPolicy
	Mailer           notifications.Mailer
	Notifier         *notifications.Notifier
	Engine           *services.Engine

	// Operations
	Scheduler     *scheduler.Scheduler
	BackupService *reliability.BackupService // nil when backups are disabled
}

// JobInstances holds the registered jobs for manual triggering
type JobInstances struct {
	ClientDataCleanup scheduler.Job
	HistoryCleanup    scheduler.Job
	DailyReport       scheduler.Job
	IntegrityCheck    scheduler.Job
	WALCheckpoint     scheduler.Job
	Maintenance       scheduler.Job
	Backup            scheduler.Job // nil when backups are disabled
}

// Databases returns the open databases keyed by name
func (c *Container) Databases() map[string]*database.DB {
	out := make(map[string]*database.DB, 4)
	for name, db := range map[string]*database.DB{
		database.NameConfig:     c.ConfigDB,
		database.NameLedger:     c.LedgerDB,
		database.NameHistory:    c.HistoryDB,
		database.NameClientData: c.ClientDataDB,
	} {
		if db != nil {
			out[name] = db
		}
	}
	return out
}

// Close closes every open database
func (c *Container) Close() {
	for _, db := range c.Databases() {
		_ = db.Close()
	}
}
