package portfolio

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aristath/permanent/internal/domain"
)

// LoadSeedFile reads a YAML portfolio definition used to populate an empty
// store. The result is normalized and validated.
//
//	base_currency: CNY
//	categories:
//	  - {id: gold, name: Gold, target_weight: 0.25, min_weight: 0.15, max_weight: 0.35}
//	assets:
//	  - {id: gld, kind: listed, code: "518880", quantity: 1000, category_id: gold}
func LoadSeedFile(path string) (*domain.PortfolioConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes a YAML portfolio definition
func ParseSeed(raw []byte) (*domain.PortfolioConfig, error) {
	var cfg domain.PortfolioConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, domain.InvalidInput("seed file is not valid YAML: %v", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
