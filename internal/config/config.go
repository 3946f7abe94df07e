// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/modules/settings"
)

// Config holds application configuration
type Config struct {
	DataDir           string `default:"./data" validate:"required"` // Always absolute after Load
	Port              int    `default:"8080" validate:"gte=1,lte=65535"`
	LogLevel          string `default:"info"`
	DevMode           bool   `default:"false"`
	BaseCurrency      string `default:"CNY" validate:"required"`
	Timezone          string `default:"Asia/Shanghai"`
	PortfolioSeedFile string // Optional YAML file used when config.db holds no portfolio yet

	Cache         CacheConfig
	History       HistoryConfig
	Quotes        QuoteSourceConfig
	Crypto        CryptoConfig
	Notifications NotificationConfig
	Backup        BackupConfig

	// ChainRPC maps a lower-case chain id (eth, bsc, polygon) to its JSON-RPC URL.
	// Populated from RPC_<CHAIN> environment variables.
	ChainRPC map[string]string
}

// CacheConfig controls the quote cache cadence
type CacheConfig struct {
	ActiveInterval time.Duration `default:"4s"`
	IdleInterval   time.Duration `default:"20s"`
	IdleAfter      time.Duration `default:"60s"`
	MinRefreshGap  time.Duration `default:"1s"`
	FetchTimeout   time.Duration `default:"8s"`
	StaleAfter     time.Duration `default:"72h"`
	Concurrency    int           `default:"8" validate:"gte=1,lte=64"`
}

// HistoryConfig controls valuation snapshots
type HistoryConfig struct {
	SnapshotInterval time.Duration `default:"60s"`
	Retention        time.Duration `default:"8760h"`
}

// QuoteSourceConfig configures the market data adapters
type QuoteSourceConfig struct {
	// ListedURLTemplate is an HTTP endpoint returning JSON for one listed
	// security; "{code}" is replaced by the asset code.
	ListedURLTemplate string
	ListedPricePath   string `default:"$.price"`
	ListedChangePath  string `default:"$.change_pct"`
	ListedNamePath    string `default:"$.name"`
	CoinGeckoBaseURL  string `default:"https://api.coingecko.com/api/v3"`
	CoinGeckoAPIKey   string
	VsCurrency        string `default:"cny"`
}

// CryptoConfig configures the two-phase crypto contribution flow
type CryptoConfig struct {
	// Slippage is a fraction (0.01 = 1%), clamped to [0, MaxSlippage]
	Slippage float64 `default:"0.01"`
}

// NotificationConfig configures report emails
type NotificationConfig struct {
	EmailEnabled     bool          `default:"false"`
	Cooldown         time.Duration `default:"6h"`
	DailyJobSchedule string        `default:"0 5 9 * * *"` // cron with seconds: 09:05 daily
	SMTPHost         string
	SMTPPort         int  `default:"587" validate:"gte=1,lte=65535"`
	SMTPUsername     string
	SMTPPassword     string
	SMTPStartTLS     bool `default:"true"`
	MailFrom         string
	MailTo           []string
}

// BackupConfig configures S3-compatible database backups
type BackupConfig struct {
	Enabled       bool   `default:"false"`
	Schedule      string `default:"0 30 3 * * *"`
	Bucket        string
	Region        string `default:"auto"`
	Endpoint      string // Custom endpoint for R2/MinIO; empty means AWS
	AccessKeyID   string
	SecretKey     string
	Prefix        string `default:"permanent-backups/"`
	RetentionDays int    `default:"30" validate:"gte=0"`
}

// MaxSlippage is the ceiling applied to the crypto slippage tolerance.
const MaxSlippage = 0.2

// Floors applied to cadence settings so a typo cannot turn the cache into a busy loop.
const (
	minActiveInterval   = time.Second
	minIdleInterval     = 2 * time.Second
	minIdleAfter        = 5 * time.Second
	minRefreshGap       = 250 * time.Millisecond
	minSnapshotInterval = 10 * time.Second
)

var validate = validator.New()

// Load reads configuration from struct defaults, .env and environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	cfg.DataDir = getEnv("DATA_DIR", cfg.DataDir)
	cfg.Port = getEnvAsInt("PORT", cfg.Port)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.DevMode = getEnvAsBool("DEV_MODE", cfg.DevMode)
	cfg.BaseCurrency = strings.ToUpper(getEnv("BASE_CURRENCY", cfg.BaseCurrency))
	cfg.Timezone = getEnv("TIMEZONE", cfg.Timezone)
	cfg.PortfolioSeedFile = getEnv("PORTFOLIO_SEED_FILE", cfg.PortfolioSeedFile)

	cfg.Cache.ActiveInterval = getEnvAsDuration("CACHE_ACTIVE_REFRESH", cfg.Cache.ActiveInterval)
	cfg.Cache.IdleInterval = getEnvAsDuration("CACHE_IDLE_REFRESH", cfg.Cache.IdleInterval)
	cfg.Cache.IdleAfter = getEnvAsDuration("CACHE_IDLE_AFTER", cfg.Cache.IdleAfter)
	cfg.Cache.MinRefreshGap = getEnvAsDuration("CACHE_MIN_REFRESH_GAP", cfg.Cache.MinRefreshGap)
	cfg.Cache.FetchTimeout = getEnvAsDuration("CACHE_FETCH_TIMEOUT", cfg.Cache.FetchTimeout)
	cfg.Cache.StaleAfter = getEnvAsDuration("QUOTE_STALE_AFTER", cfg.Cache.StaleAfter)
	cfg.Cache.Concurrency = getEnvAsInt("CACHE_CONCURRENCY", cfg.Cache.Concurrency)

	cfg.History.SnapshotInterval = getEnvAsDuration("HISTORY_SNAPSHOT_INTERVAL", cfg.History.SnapshotInterval)
	cfg.History.Retention = getEnvAsDuration("HISTORY_RETENTION", cfg.History.Retention)

	cfg.Quotes.ListedURLTemplate = getEnv("QUOTE_URL_TEMPLATE", cfg.Quotes.ListedURLTemplate)
	cfg.Quotes.ListedPricePath = getEnv("QUOTE_PRICE_PATH", cfg.Quotes.ListedPricePath)
	cfg.Quotes.ListedChangePath = getEnv("QUOTE_CHANGE_PATH", cfg.Quotes.ListedChangePath)
	cfg.Quotes.ListedNamePath = getEnv("QUOTE_NAME_PATH", cfg.Quotes.ListedNamePath)
	cfg.Quotes.CoinGeckoBaseURL = getEnv("COINGECKO_BASE_URL", cfg.Quotes.CoinGeckoBaseURL)
	cfg.Quotes.CoinGeckoAPIKey = getEnv("COINGECKO_API_KEY", cfg.Quotes.CoinGeckoAPIKey)
	cfg.Quotes.VsCurrency = strings.ToLower(getEnv("QUOTE_VS_CURRENCY", strings.ToLower(cfg.BaseCurrency)))

	cfg.Crypto.Slippage = getEnvAsFloat("CRYPTO_SLIPPAGE", cfg.Crypto.Slippage)

	cfg.Notifications.EmailEnabled = getEnvAsBool("EMAIL_ENABLED", cfg.Notifications.EmailEnabled)
	cfg.Notifications.Cooldown = getEnvAsDuration("NOTIFY_COOLDOWN", cfg.Notifications.Cooldown)
	cfg.Notifications.DailyJobSchedule = getEnv("DAILY_JOB_SCHEDULE", cfg.Notifications.DailyJobSchedule)
	cfg.Notifications.SMTPHost = getEnv("SMTP_HOST", cfg.Notifications.SMTPHost)
	cfg.Notifications.SMTPPort = getEnvAsInt("SMTP_PORT", cfg.Notifications.SMTPPort)
	cfg.Notifications.SMTPUsername = getEnv("SMTP_USERNAME", cfg.Notifications.SMTPUsername)
	cfg.Notifications.SMTPPassword = getEnv("SMTP_PASSWORD", cfg.Notifications.SMTPPassword)
	cfg.Notifications.SMTPStartTLS = getEnvAsBool("SMTP_STARTTLS", cfg.Notifications.SMTPStartTLS)
	cfg.Notifications.MailFrom = getEnv("MAIL_FROM", cfg.Notifications.MailFrom)
	cfg.Notifications.MailTo = getEnvAsList("MAIL_TO", cfg.Notifications.MailTo)

	cfg.Backup.Enabled = getEnvAsBool("BACKUP_ENABLED", cfg.Backup.Enabled)
	cfg.Backup.Schedule = getEnv("BACKUP_SCHEDULE", cfg.Backup.Schedule)
	cfg.Backup.Bucket = getEnv("S3_BUCKET", cfg.Backup.Bucket)
	cfg.Backup.Region = getEnv("S3_REGION", cfg.Backup.Region)
	cfg.Backup.Endpoint = getEnv("S3_ENDPOINT", cfg.Backup.Endpoint)
	cfg.Backup.AccessKeyID = getEnv("S3_ACCESS_KEY_ID", cfg.Backup.AccessKeyID)
	cfg.Backup.SecretKey = getEnv("S3_SECRET_ACCESS_KEY", cfg.Backup.SecretKey)
	cfg.Backup.Prefix = getEnv("S3_PREFIX", cfg.Backup.Prefix)
	cfg.Backup.RetentionDays = getEnvAsInt("BACKUP_RETENTION_DAYS", cfg.Backup.RetentionDays)

	cfg.ChainRPC = loadChainRPC(os.Environ())

	absDataDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	cfg.DataDir = absDataDir

	cfg.applyFloors()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyFloors clamps cadence and slippage settings into their accepted ranges
func (c *Config) applyFloors() {
	c.Cache.ActiveInterval = maxDuration(c.Cache.ActiveInterval, minActiveInterval)
	c.Cache.IdleInterval = maxDuration(c.Cache.IdleInterval, minIdleInterval)
	c.Cache.IdleAfter = maxDuration(c.Cache.IdleAfter, minIdleAfter)
	c.Cache.MinRefreshGap = maxDuration(c.Cache.MinRefreshGap, minRefreshGap)
	c.History.SnapshotInterval = maxDuration(c.History.SnapshotInterval, minSnapshotInterval)
	c.Crypto.Slippage = ClampSlippage(c.Crypto.Slippage)
}

// ClampSlippage bounds a slippage fraction to [0, MaxSlippage]. NaN becomes 0.
func ClampSlippage(s float64) float64 {
	if s != s || s < 0 {
		return 0
	}
	if s > MaxSlippage {
		return MaxSlippage
	}
	return s
}

// UpdateFromSettings applies runtime overrides stored in config.db.
// Settings DB values take precedence over environment variables.
func (c *Config) UpdateFromSettings(repo *settings.Repository, log zerolog.Logger) error {
	slippage, err := repo.GetFloat(settings.KeyCryptoSlippage, c.Crypto.Slippage)
	if err != nil {
		return fmt.Errorf("failed to get %s from settings: %w", settings.KeyCryptoSlippage, err)
	}
	c.Crypto.Slippage = ClampSlippage(slippage)

	cooldownMinutes, err := repo.GetInt(settings.KeyNotifyCooldownMinutes, int(c.Notifications.Cooldown/time.Minute))
	if err != nil {
		return fmt.Errorf("failed to get %s from settings: %w", settings.KeyNotifyCooldownMinutes, err)
	}
	if cooldownMinutes >= 1 {
		c.Notifications.Cooldown = time.Duration(cooldownMinutes) * time.Minute
	}

	emailEnabled, err := repo.GetBool(settings.KeyEmailEnabled, c.Notifications.EmailEnabled)
	if err != nil {
		return fmt.Errorf("failed to get %s from settings: %w", settings.KeyEmailEnabled, err)
	}
	c.Notifications.EmailEnabled = emailEnabled

	log.Debug().
		Float64("crypto_slippage", c.Crypto.Slippage).
		Dur("notify_cooldown", c.Notifications.Cooldown).
		Bool("email_enabled", c.Notifications.EmailEnabled).
		Msg("Applied runtime settings")

	return nil
}

// Validate checks field ranges and cross-field constraints
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Cache.IdleInterval < c.Cache.ActiveInterval {
		return fmt.Errorf("invalid configuration: idle refresh interval %s is shorter than active interval %s",
			c.Cache.IdleInterval, c.Cache.ActiveInterval)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid configuration: unknown timezone %q: %w", c.Timezone, err)
	}
	if c.Notifications.EmailEnabled && (c.Notifications.MailFrom == "" || len(c.Notifications.MailTo) == 0) {
		return fmt.Errorf("invalid configuration: email enabled but MAIL_FROM or MAIL_TO is empty")
	}
	if c.Backup.Enabled && c.Backup.Bucket == "" {
		return fmt.Errorf("invalid configuration: backups enabled but S3_BUCKET is empty")
	}
	return nil
}

// Location returns the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// loadChainRPC collects RPC_<CHAIN>=url pairs from an environment listing
func loadChainRPC(environ []string) map[string]string {
	out := make(map[string]string)
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "RPC_") {
			continue
		}
		chain := strings.ToLower(strings.TrimPrefix(key, "RPC_"))
		value = strings.TrimSpace(value)
		if chain == "" || value == "" {
			continue
		}
		out[chain] = value
	}
	return out
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or bare seconds ("90")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func maxDuration(a, b time.Duration) time.Duration {
	if a < b {
		return b
	}
	return a
}
