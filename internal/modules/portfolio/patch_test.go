package portfolio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/permanent/internal/domain"
)

func seededService(t *testing.T) *Service {
	t.Helper()
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(seed, []byte(seedYAML), 0o644))
	svc, _ := newService(t, seed)
	require.NoError(t, svc.Init())
	return svc
}

func decodePatches(t *testing.T, raw string) []AssetPatch {
	t.Helper()
	var patches []AssetPatch
	require.NoError(t, json.Unmarshal([]byte(raw), &patches))
	return patches
}

func TestAssetPatch_Decode(t *testing.T) {
	patches := decodePatches(t, `[{"asset_id":"eth","manual_quantity":null,"name":" Ether "}]`)
	require.Len(t, patches, 1)
	p := patches[0]

	assert.True(t, p.ManualQuantity.Set)
	assert.Nil(t, p.ManualQuantity.Value)
	assert.True(t, p.Name.Set)
	assert.False(t, p.Quantity.Set)
	assert.False(t, p.Empty())

	assert.True(t, decodePatches(t, `[{"asset_id":"eth"}]`)[0].Empty())
}

func TestAssetPatch_ApplyByKind(t *testing.T) {
	listed := domain.Asset{ID: "l", Kind: domain.AssetKindListed, Code: "510300", Quantity: 10}
	p := decodePatches(t, `[{"code":" 518880 ","quantity":-5,"chain":"SOL","amount":9}]`)[0]
	p.Apply(&listed)
	assert.Equal(t, "518880", listed.Code)
	assert.Equal(t, 0.0, listed.Quantity)
	assert.Empty(t, listed.Chain)

	crypto := domain.Asset{ID: "c", Kind: domain.AssetKindCrypto, CoinID: "ethereum", ManualQuantity: new(float64)}
	p = decodePatches(t, `[{"chain":" SOL ","coin_id":"Solana","manual_quantity":null,"category_id":""}]`)[0]
	p.Apply(&crypto)
	assert.Equal(t, "sol", crypto.Chain)
	assert.Equal(t, "solana", crypto.CoinID)
	assert.Nil(t, crypto.ManualQuantity)
	assert.Nil(t, crypto.CategoryID)

	cash := domain.Asset{ID: "k", Kind: domain.AssetKindCash, Name: "Deposit", Amount: 10}
	p = decodePatches(t, `[{"name":"","amount":250.5,"quantity":3}]`)[0]
	p.Apply(&cash)
	assert.Equal(t, "Cash", cash.Name)
	assert.Equal(t, 250.5, cash.Amount)
	assert.Equal(t, 0.0, cash.Quantity)
}

func TestService_BatchUpdate(t *testing.T) {
	svc := seededService(t)

	res, err := svc.BatchUpdate(decodePatches(t, `[
		{"asset_id":"csi300","quantity":1500},
		{"asset_id":"deposit","amount":7000,"category_id":"cash"},
		{"asset_id":"eth"},
		{"asset_id":"ghost","quantity":1},
		{"asset_id":"  "}
	]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"csi300", "deposit"}, res.Updated)
	assert.Equal(t, []string{"ghost"}, res.NotFound)

	cfg, err := svc.Current()
	require.NoError(t, err)
	csi, _ := cfg.Asset("csi300")
	assert.Equal(t, 1500.0, csi.Quantity)
	deposit, _ := cfg.Asset("deposit")
	assert.Equal(t, 7000.0, deposit.Amount)
	assert.True(t, deposit.InBucket("cash"))
}

func TestService_BatchUpdateIsAllOrNothing(t *testing.T) {
	svc := seededService(t)

	_, err := svc.BatchUpdate(decodePatches(t, `[
		{"asset_id":"csi300","quantity":1500},
		{"asset_id":"eth","wallet":""}
	]`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	cfg, err := svc.Current()
	require.NoError(t, err)
	csi, _ := cfg.Asset("csi300")
	assert.Equal(t, 1000.0, csi.Quantity)
}

func TestService_BatchUpdateNothingToDo(t *testing.T) {
	svc := seededService(t)
	changes := 0
	svc.OnChange(func(*domain.PortfolioConfig) { changes++ })

	res, err := svc.BatchUpdate(decodePatches(t, `[{"asset_id":"nope","quantity":1}]`))
	require.NoError(t, err)
	assert.Empty(t, res.Updated)
	assert.Equal(t, []string{"nope"}, res.NotFound)
	assert.Zero(t, changes)
}
