package services

import (
	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/config"
	"github.com/aristath/permanent/internal/modules/notifications"
	"github.com/aristath/permanent/internal/modules/settings"
)

// SettingsPolicy resolves runtime policy from the startup config overlaid
// with the settings table. Every call reads the table, so edits made through
// the settings API apply without a restart.
type SettingsPolicy struct {
	base *config.Config
	repo *settings.Repository
	log  zerolog.Logger
}

// NewSettingsPolicy creates a policy over base and repo
func NewSettingsPolicy(base *config.Config, repo *settings.Repository, log zerolog.Logger) *SettingsPolicy {
	return &SettingsPolicy{
		base: base,
		repo: repo,
		log:  log.With().Str("component", "policy").Logger(),
	}
}

func (p *SettingsPolicy) resolve() config.Config {
	cfg := *p.base
	if p.repo == nil {
		return cfg
	}
	if err := cfg.UpdateFromSettings(p.repo, p.log); err != nil {
		p.log.Warn().Err(err).Msg("Failed to read runtime settings, using startup config")
		return *p.base
	}
	return cfg
}

// Slippage is the crypto slippage tolerance, already clamped
func (p *SettingsPolicy) Slippage() float64 {
	return p.resolve().Crypto.Slippage
}

// Notifications returns the notification policy
func (p *SettingsPolicy) Notifications() notifications.Policy {
	cfg := p.resolve()
	return notifications.Policy{
		EmailEnabled: cfg.Notifications.EmailEnabled,
		Cooldown:     cfg.Notifications.Cooldown,
	}
}
