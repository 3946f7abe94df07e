package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/clientdata"
	"github.com/aristath/permanent/internal/clients/chains"
	"github.com/aristath/permanent/internal/clients/coingecko"
	"github.com/aristath/permanent/internal/clients/evm"
	"github.com/aristath/permanent/internal/clients/httpquote"
	"github.com/aristath/permanent/internal/clients/solana"
	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/modules/history"
	"github.com/aristath/permanent/internal/modules/ledger"
	"github.com/aristath/permanent/internal/modules/notifications"
	"github.com/aristath/permanent/internal/modules/portfolio"
	"github.com/aristath/permanent/internal/modules/quotes"
	"github.com/aristath/permanent/internal/modules/settings"
	"github.com/aristath/permanent/internal/services"
	"github.com/aristath/permanent/pkg/metrics"
)

const configRefreshTimeout = 30 * time.Second

// secretKeyFile holds the key for settings stored encrypted, under DATA_DIR
const secretKeyFile = "secret.key"

// InitializeRepositories creates all repositories over the open databases
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	loc := container.Config.Location()

	container.ClientDataRepo = clientdata.NewRepository(container.ClientDataDB.Conn())
	container.PortfolioRepo = portfolio.NewRepository(container.ConfigDB.Conn(), log)
	container.SettingsRepo = settings.NewRepository(container.ConfigDB.Conn(), log)
	container.NotificationState = notifications.NewStateRepository(container.ConfigDB.Conn(), log)
	container.LedgerRepo = ledger.NewRepository(container.LedgerDB.Conn(), loc, log)
	container.HistoryRepo = history.NewRepository(container.HistoryDB.Conn(), log)

	log.Info().Msg("Repositories initialized")
	return nil
}

// InitializeServices creates the clients and services and connects them
func InitializeServices(container *Container, log zerolog.Logger) error {
	cfg := container.Config
	loc := cfg.Location()

	// Metrics
	container.Registry = prometheus.NewRegistry()
	container.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	container.Metrics = metrics.New(container.Registry)

	// Clients
	container.ListedQuotes = httpquote.NewClient(httpquote.Config{
		URLTemplate: cfg.Quotes.ListedURLTemplate,
		PricePath:   cfg.Quotes.ListedPricePath,
		ChangePath:  cfg.Quotes.ListedChangePath,
		NamePath:    cfg.Quotes.ListedNamePath,
	}, container.ClientDataRepo, log)
	container.CoinGecko = coingecko.NewClient(
		cfg.Quotes.CoinGeckoBaseURL,
		cfg.Quotes.CoinGeckoAPIKey,
		cfg.Quotes.VsCurrency,
		container.ClientDataRepo,
		log,
	)
	container.EVMReader = evm.NewClient(cfg.ChainRPC, container.ClientDataRepo, log)
	container.SolanaReader = solana.NewClient(solanaRPC(cfg.ChainRPC), log)
	container.ChainReader = chains.NewRouter(container.EVMReader).
		Route(container.SolanaReader, solana.Chains...)

	// Portfolio configuration
	container.PortfolioService = portfolio.NewService(container.PortfolioRepo, cfg.PortfolioSeedFile, log)
	if err := container.PortfolioService.Init(); err != nil {
		return fmt.Errorf("failed to initialize portfolio config: %w", err)
	}

	secrets, err := settings.LoadOrCreateKey(filepath.Join(cfg.DataDir, secretKeyFile))
	if err != nil {
		return fmt.Errorf("failed to load secret key: %w", err)
	}
	container.SettingsService = settings.NewService(container.SettingsRepo, secrets, log)
	container.LedgerService = ledger.NewService(container.LedgerRepo, loc, log)
	container.HistoryService = history.NewService(container.HistoryRepo, cfg.History.SnapshotInterval, cfg.BaseCurrency, log)
	container.Policy = services.NewSettingsPolicy(cfg, container.SettingsRepo, log)

	// Quote cache
	sources := quotes.Sources{
		Crypto: container.CoinGecko,
		Chain:  container.ChainReader,
	}
	if container.ListedQuotes.Configured() {
		sources.Listed = container.ListedQuotes
	} else {
		log.Warn().Msg("QUOTE_URL_TEMPLATE not set, listed assets will report errors")
	}
	container.QuoteCache = quotes.NewCache(quotes.Config{
		ActiveInterval: cfg.Cache.ActiveInterval,
		IdleInterval:   cfg.Cache.IdleInterval,
		IdleAfter:      cfg.Cache.IdleAfter,
		MinRefreshGap:  cfg.Cache.MinRefreshGap,
		FetchTimeout:   cfg.Cache.FetchTimeout,
		StaleAfter:     cfg.Cache.StaleAfter,
		Concurrency:    cfg.Cache.Concurrency,
	}, container.PortfolioService, sources, log, quotes.WithRecorder(container.Metrics))

	// Notifications
	container.Mailer = notifications.NewRuntimeMailer(notifications.SMTPConfig{
		Host:     cfg.Notifications.SMTPHost,
		Port:     cfg.Notifications.SMTPPort,
		Username: cfg.Notifications.SMTPUsername,
		Password: cfg.Notifications.SMTPPassword,
		StartTLS: cfg.Notifications.SMTPStartTLS,
		From:     cfg.Notifications.MailFrom,
		To:       cfg.Notifications.MailTo,
	}, container.SettingsService, log)
	container.Notifier = notifications.NewNotifier(
		container.NotificationState,
		container.Mailer,
		container.Policy.Notifications,
		loc,
		log,
	)

	container.Engine = services.NewEngine(
		container.QuoteCache,
		container.PortfolioService,
		container.LedgerService,
		container.Policy,
		log,
		services.WithHistory(container.HistoryService),
		services.WithNotifier(container.Notifier),
		services.WithTotalRecorder(container.Metrics),
	)

	// A configuration edit changes the tracked asset set, so refresh right away
	cache := container.QuoteCache
	container.PortfolioService.OnChange(func(pc *domain.PortfolioConfig) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), configRefreshTimeout)
			defer cancel()
			if _, err := cache.Refresh(ctx, true); err != nil {
				log.Warn().Err(err).Msg("Refresh after config change failed")
			}
		}()
	})

	log.Info().
		Bool("listed_source", sources.Listed != nil).
		Int("chains", len(cfg.ChainRPC)).
		Msg("Services initialized")
	return nil
}

// solanaRPC picks the Solana endpoint from RPC_SOLANA or RPC_SOL
func solanaRPC(rpcURLs map[string]string) string {
	for _, chain := range solana.Chains {
		if u := rpcURLs[chain]; u != "" {
			return u
		}
	}
	return ""
}
