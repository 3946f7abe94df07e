package portfolio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/permanent/internal/database"
	"github.com/aristath/permanent/internal/domain"
	testingpkg "github.com/aristath/permanent/internal/testing"
)

const seedYAML = `
base_currency: CNY
categories:
  - {id: equity, name: Equity, target_weight: 0.25, min_weight: 0.15, max_weight: 0.35}
  - {id: cash, name: Cash, target_weight: 0.25, min_weight: 0.15, max_weight: 0.35}
  - {id: gold, name: Gold, target_weight: 0.25, min_weight: 0.15, max_weight: 0.35}
  - {id: bond, name: Bonds, target_weight: 0.25, min_weight: 0.15, max_weight: 0.35}
assets:
  - {id: csi300, kind: listed, code: "510300", quantity: 1000, category_id: equity}
  - {id: gold-etf, kind: listed, code: "518880", quantity: 200, category_id: gold, bucket_weight: 60}
  - {id: eth, kind: crypto, coin_id: ethereum, chain: eth, wallet: "0xabc", category_id: equity}
  - {id: deposit, kind: cash, amount: 5000, category_id: missing}
`

func newService(t *testing.T, seedFile string) (*Service, *Repository) {
	t.Helper()
	db := testingpkg.NewTestDB(t, database.NameConfig)
	repo := NewRepository(db.Conn(), zerolog.Nop())
	return NewService(repo, seedFile, zerolog.Nop()), repo
}

func TestParseSeed(t *testing.T) {
	cfg, err := ParseSeed([]byte(seedYAML))
	require.NoError(t, err)

	assert.Len(t, cfg.Buckets, 4)
	assert.Len(t, cfg.Assets, 4)

	gold, ok := cfg.Asset("gold-etf")
	require.True(t, ok)
	require.NotNil(t, gold.BucketWeight)
	assert.InDelta(t, 0.6, *gold.BucketWeight, 1e-12)

	deposit, ok := cfg.Asset("deposit")
	require.True(t, ok)
	assert.Nil(t, deposit.CategoryID, "unknown category becomes unassigned")
}

func TestParseSeed_Invalid(t *testing.T) {
	_, err := ParseSeed([]byte("categories: [oops"))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ParseSeed([]byte(`
assets:
  - {id: a, kind: crypto, chain: eth, wallet: "0x1"}
`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestService_InitWithDefaults(t *testing.T) {
	svc, repo := newService(t, "")

	require.NoError(t, svc.Init())

	cfg, err := svc.Current()
	require.NoError(t, err)
	assert.Len(t, cfg.Buckets, 4)

	stored, err := repo.Load()
	require.NoError(t, err)
	assert.Len(t, stored.Buckets, 4)
}

func TestService_InitFromSeedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.yaml")
	require.NoError(t, os.WriteFile(path, []byte(seedYAML), 0o600))
	svc, _ := newService(t, path)

	require.NoError(t, svc.Init())

	assets, err := svc.Assets()
	require.NoError(t, err)
	assert.Len(t, assets, 4)
}

func TestService_InitKeepsStoredConfig(t *testing.T) {
	svc, repo := newService(t, "/does/not/exist.yaml")
	require.NoError(t, repo.Save(testingpkg.FourBucketConfig()))

	require.NoError(t, svc.Init())

	assets, err := svc.Assets()
	require.NoError(t, err)
	assert.Len(t, assets, 4)
}

func TestService_CurrentBeforeInit(t *testing.T) {
	svc, _ := newService(t, "")

	_, err := svc.Current()
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestService_SaveDetectsChanges(t *testing.T) {
	svc, _ := newService(t, "")
	require.NoError(t, svc.Init())

	var calls int
	svc.OnChange(func(*domain.PortfolioConfig) { calls++ })

	cfg := testingpkg.FourBucketConfig()
	changed, err := svc.Save(cfg)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.Save(cfg)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, calls)
}

func TestService_SaveRejectsInvalid(t *testing.T) {
	svc, _ := newService(t, "")
	require.NoError(t, svc.Init())

	cfg := testingpkg.FourBucketConfig()
	cfg.Buckets[0].MinWeight = 0.3
	cfg.Buckets[0].TargetWeight = 0.2

	_, err := svc.Save(cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	current, err := svc.Current()
	require.NoError(t, err)
	assert.Equal(t, 0.25, current.Buckets[0].TargetWeight)
}

func TestService_CurrentReturnsCopy(t *testing.T) {
	svc, _ := newService(t, "")
	require.NoError(t, svc.Init())

	a, err := svc.Current()
	require.NoError(t, err)
	a.Buckets[0].Name = "mutated"

	b, err := svc.Current()
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", b.Buckets[0].Name)
}

func TestService_AssetEdits(t *testing.T) {
	svc, _ := newService(t, "")
	require.NoError(t, svc.Init())
	_, err := svc.Save(testingpkg.FourBucketConfig())
	require.NoError(t, err)

	added, err := svc.AddAsset(domain.Asset{
		ID:         "ignored",
		Kind:       domain.AssetKindCash,
		Name:       "Deposit",
		Amount:     1000,
		CategoryID: testingpkg.Ptr("cash"),
	})
	require.NoError(t, err)
	assert.NotEqual(t, "ignored", added.ID)
	assert.NotEmpty(t, added.ID)

	require.NoError(t, svc.MoveAsset(added.ID, testingpkg.Ptr("gold")))
	cfg, err := svc.Current()
	require.NoError(t, err)
	moved, ok := cfg.Asset(added.ID)
	require.True(t, ok)
	assert.Equal(t, "gold", *moved.CategoryID)

	require.NoError(t, svc.MoveAsset(added.ID, testingpkg.Ptr("")))
	cfg, err = svc.Current()
	require.NoError(t, err)
	moved, _ = cfg.Asset(added.ID)
	assert.Nil(t, moved.CategoryID)

	assert.ErrorIs(t, svc.MoveAsset(added.ID, testingpkg.Ptr("nowhere")), domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.MoveAsset("missing", nil), domain.ErrNotFound)

	updated, err := svc.UpdateAsset(added.ID, domain.Asset{
		ID:         "other",
		Kind:       domain.AssetKindCash,
		Name:       "Savings",
		Amount:     1500,
		CategoryID: testingpkg.Ptr("cash"),
	})
	require.NoError(t, err)
	assert.Equal(t, added.ID, updated.ID)
	assert.Equal(t, 1500.0, updated.Amount)
	_, err = svc.UpdateAsset("missing", domain.Asset{Kind: domain.AssetKindCash})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, svc.DeleteAsset(added.ID))
	assert.ErrorIs(t, svc.DeleteAsset(added.ID), domain.ErrNotFound)

	cfg, err = svc.Current()
	require.NoError(t, err)
	assert.Len(t, cfg.Assets, 4)
}
