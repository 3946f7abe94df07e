package portfolio

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/domain"
)

// ChangeListener is called after a saved configuration differs from the
// previous one
type ChangeListener func(cfg *domain.PortfolioConfig)

// Service owns the current portfolio configuration. Reads return clones so
// a computation never sees a config change half-way through.
type Service struct {
	store    domain.PortfolioConfigStore
	seedFile string
	log      zerolog.Logger

	mu        sync.RWMutex
	current   *domain.PortfolioConfig
	listeners []ChangeListener
}

// NewService creates the portfolio service. seedFile is optional.
func NewService(store domain.PortfolioConfigStore, seedFile string, log zerolog.Logger) *Service {
	return &Service{
		store:    store,
		seedFile: seedFile,
		log:      log.With().Str("service", "portfolio").Logger(),
	}
}

// Init loads the stored configuration. An empty store is populated from the
// seed file when one is configured, otherwise from the default four buckets.
func (s *Service) Init() error {
	cfg, err := s.store.Load()
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		cfg, err = s.initialConfig()
		if err != nil {
			return err
		}
		if err := s.store.Save(cfg); err != nil {
			return fmt.Errorf("failed to store initial portfolio config: %w", err)
		}
		s.log.Info().
			Str("seed_file", s.seedFile).
			Int("assets", len(cfg.Assets)).
			Msg("Initialized portfolio config")
	default:
		return fmt.Errorf("failed to load portfolio config: %w", err)
	}

	cfg.Normalize()

	s.mu.Lock()
	s.current = cfg
	s.mu.Unlock()
	return nil
}

func (s *Service) initialConfig() (*domain.PortfolioConfig, error) {
	if s.seedFile == "" {
		return domain.DefaultPortfolioConfig(), nil
	}
	cfg, err := LoadSeedFile(s.seedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to seed portfolio config: %w", err)
	}
	return cfg, nil
}

// Current returns a copy of the active configuration
func (s *Service) Current() (*domain.PortfolioConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil, domain.InsufficientData("portfolio config not loaded")
	}
	return s.current.Clone(), nil
}

// Assets returns the configured assets. Used by the quote cache on every refresh.
func (s *Service) Assets() ([]domain.Asset, error) {
	cfg, err := s.Current()
	if err != nil {
		return nil, err
	}
	return cfg.Assets, nil
}

// Save normalizes, validates and persists cfg. It reports whether the
// configuration actually changed; listeners only run on change.
func (s *Service) Save(cfg *domain.PortfolioConfig) (bool, error) {
	next := cfg.Clone()
	next.Normalize()
	if err := next.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	changed := s.current == nil || !reflect.DeepEqual(s.current, next)
	if !changed {
		s.mu.Unlock()
		return false, nil
	}
	if err := s.store.Save(next); err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("failed to save portfolio config: %w", err)
	}
	s.current = next
	listeners := append([]ChangeListener(nil), s.listeners...)
	s.mu.Unlock()

	s.log.Info().
		Int("buckets", len(next.Buckets)).
		Int("assets", len(next.Assets)).
		Msg("Portfolio config updated")

	for _, l := range listeners {
		l(next.Clone())
	}
	return true, nil
}

// OnChange registers a listener for configuration changes
func (s *Service) OnChange(l ChangeListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// AddAsset appends asset to the configuration and returns it as stored,
// with its generated id
func (s *Service) AddAsset(asset domain.Asset) (*domain.Asset, error) {
	cfg, err := s.Current()
	if err != nil {
		return nil, err
	}
	asset.ID = ""
	cfg.Assets = append(cfg.Assets, asset)
	cfg.Normalize()
	added := cfg.Assets[len(cfg.Assets)-1]

	if _, err := s.Save(cfg); err != nil {
		return nil, err
	}
	return &added, nil
}

// DeleteAsset removes an asset. Ledger entries referencing it are kept.
func (s *Service) DeleteAsset(id string) error {
	cfg, err := s.Current()
	if err != nil {
		return err
	}
	kept := cfg.Assets[:0]
	for _, a := range cfg.Assets {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	if len(kept) == len(cfg.Assets) {
		return domain.NotFound("asset", id)
	}
	cfg.Assets = kept
	_, err = s.Save(cfg)
	return err
}

// MoveAsset assigns an asset to bucketID; nil or empty leaves it unassigned
func (s *Service) MoveAsset(id string, bucketID *string) error {
	cfg, err := s.Current()
	if err != nil {
		return err
	}
	if bucketID != nil && *bucketID == "" {
		bucketID = nil
	}
	if bucketID != nil {
		if _, ok := cfg.Bucket(*bucketID); !ok {
			return domain.InvalidInput("unknown bucket %q", *bucketID)
		}
	}
	for i := range cfg.Assets {
		if cfg.Assets[i].ID == id {
			cfg.Assets[i].CategoryID = bucketID
			_, err = s.Save(cfg)
			return err
		}
	}
	return domain.NotFound("asset", id)
}

// UpdateAsset replaces the stored asset id with asset, keeping the id
func (s *Service) UpdateAsset(id string, asset domain.Asset) (*domain.Asset, error) {
	cfg, err := s.Current()
	if err != nil {
		return nil, err
	}
	for i := range cfg.Assets {
		if cfg.Assets[i].ID != id {
			continue
		}
		asset.ID = id
		cfg.Assets[i] = asset
		cfg.Normalize()
		updated := cfg.Assets[i]
		if _, err := s.Save(cfg); err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, domain.NotFound("asset", id)
}
