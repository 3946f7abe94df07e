package portfolio

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/permanent/internal/database"
	"github.com/aristath/permanent/internal/domain"
)

const metaBaseCurrency = "base_currency"

// Repository persists the portfolio configuration in config.db.
// It implements domain.PortfolioConfigStore. Buckets and assets keep their
// configured order through the position column.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a portfolio configuration repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// Load reads the stored configuration. It returns domain.ErrNotFound when
// nothing has been saved yet.
func (r *Repository) Load() (*domain.PortfolioConfig, error) {
	var currency string
	err := r.db.QueryRow("SELECT value FROM portfolio_meta WHERE key = ?", metaBaseCurrency).Scan(&currency)
	if err == sql.ErrNoRows {
		return nil, domain.NotFound("portfolio config", "current")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio meta: %w", err)
	}

	cfg := &domain.PortfolioConfig{BaseCurrency: currency}

	if cfg.Buckets, err = r.loadBuckets(); err != nil {
		return nil, err
	}
	if cfg.Assets, err = r.loadAssets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (r *Repository) loadBuckets() ([]domain.Bucket, error) {
	rows, err := r.db.Query(`SELECT id, name, target_weight, min_weight, max_weight
		FROM buckets ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query buckets: %w", err)
	}
	defer rows.Close()

	buckets := []domain.Bucket{}
	for rows.Next() {
		var b domain.Bucket
		if err := rows.Scan(&b.ID, &b.Name, &b.TargetWeight, &b.MinWeight, &b.MaxWeight); err != nil {
			return nil, fmt.Errorf("failed to scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating buckets: %w", err)
	}
	return buckets, nil
}

func (r *Repository) loadAssets() ([]domain.Asset, error) {
	rows, err := r.db.Query(`SELECT id, kind, name, category_id, bucket_weight, code, quantity,
		chain, wallet, token_address, coin_id, manual_quantity, amount
		FROM assets ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	assets := []domain.Asset{}
	for rows.Next() {
		var (
			a              domain.Asset
			kind           string
			categoryID     sql.NullString
			bucketWeight   sql.NullFloat64
			manualQuantity sql.NullFloat64
		)
		err := rows.Scan(&a.ID, &kind, &a.Name, &categoryID, &bucketWeight, &a.Code, &a.Quantity,
			&a.Chain, &a.Wallet, &a.TokenAddress, &a.CoinID, &manualQuantity, &a.Amount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		a.Kind = domain.AssetKind(kind)
		if categoryID.Valid {
			v := categoryID.String
			a.CategoryID = &v
		}
		if bucketWeight.Valid {
			v := bucketWeight.Float64
			a.BucketWeight = &v
		}
		if manualQuantity.Valid {
			v := manualQuantity.Float64
			a.ManualQuantity = &v
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assets: %w", err)
	}
	return assets, nil
}

// Save replaces the stored configuration in a single transaction
func (r *Repository) Save(cfg *domain.PortfolioConfig) error {
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO portfolio_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, metaBaseCurrency, cfg.BaseCurrency); err != nil {
			return fmt.Errorf("failed to save base currency: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM buckets"); err != nil {
			return fmt.Errorf("failed to clear buckets: %w", err)
		}
		for i, b := range cfg.Buckets {
			_, err := tx.Exec(`INSERT INTO buckets (id, name, target_weight, min_weight, max_weight, position)
				VALUES (?, ?, ?, ?, ?, ?)`, b.ID, b.Name, b.TargetWeight, b.MinWeight, b.MaxWeight, i)
			if err != nil {
				return fmt.Errorf("failed to insert bucket %s: %w", b.ID, err)
			}
		}

		if _, err := tx.Exec("DELETE FROM assets"); err != nil {
			return fmt.Errorf("failed to clear assets: %w", err)
		}
		for i, a := range cfg.Assets {
			_, err := tx.Exec(`INSERT INTO assets (id, kind, name, category_id, bucket_weight, code, quantity,
				chain, wallet, token_address, coin_id, manual_quantity, amount, position)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				a.ID, string(a.Kind), a.Name, nullString(a.CategoryID), nullFloat(a.BucketWeight), a.Code, a.Quantity,
				a.Chain, a.Wallet, a.TokenAddress, a.CoinID, nullFloat(a.ManualQuantity), a.Amount, i)
			if err != nil {
				return fmt.Errorf("failed to insert asset %s: %w", a.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().
		Int("buckets", len(cfg.Buckets)).
		Int("assets", len(cfg.Assets)).
		Msg("Portfolio config saved")
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
