package allocation

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/modules/portfolio"
	testingpkg "github.com/aristath/permanent/internal/testing"
)

// fourBucketView values stock/mmf/gld/tlt (one per bucket) at the given amounts
func fourBucketView(stock, mmf, gld, tlt float64) *portfolio.PortfolioView {
	return portfolio.BuildView(testingpkg.FourBucketConfig(), testingpkg.QuoteMap{
		"stock": testingpkg.OKQuote("stock", stock, 1),
		"mmf":   testingpkg.OKQuote("mmf", mmf, 1),
		"gld":   testingpkg.OKQuote("gld", gld, 1),
		"tlt":   testingpkg.OKQuote("tlt", tlt, 1),
	})
}

func bucketSum(s *ContributionSuggestion) decimal.Decimal {
	total := decimal.Zero
	for _, b := range s.Buckets {
		total = total.Add(decimal.NewFromFloat(b.AllocateAmount))
	}
	return total
}

func lineSum(b BucketSuggestion) decimal.Decimal {
	total := decimal.Zero
	for _, l := range b.Assets {
		total = total.Add(decimal.NewFromFloat(l.Amount))
	}
	return total
}

func TestSuggest_OverweightBucketGetsNothing(t *testing.T) {
	// Equity at 40%, the rest at 20% each
	view := fourBucketView(400, 200, 200, 200)

	s, err := Suggest(view, 500, nil, Options{})
	require.NoError(t, err)

	assert.Equal(t, ModeDeficit, s.Mode)
	assert.Equal(t, 0.0, s.Bucket("equity").AllocateAmount)
	assert.True(t, bucketSum(s).Equal(decimal.NewFromInt(500)))

	// Deficits are 175 each after the contribution, scaled to 500 / 3.
	// The two leftover cents go to the first largest deficit.
	assert.Equal(t, 166.68, s.Bucket("cash").AllocateAmount)
	assert.Equal(t, 166.66, s.Bucket("gold").AllocateAmount)
	assert.Equal(t, 166.66, s.Bucket("bond").AllocateAmount)
	assert.Equal(t, 1500.0, s.TotalAfter)
	assert.InDelta(t, 0.4, s.Bucket("equity").CurrentWeight, 1e-12)
	assert.InDelta(t, 400.0/1500, s.Bucket("equity").WeightAfter, 1e-12)
}

func TestSuggest_DeficitsSplitProportionally(t *testing.T) {
	view := fourBucketView(400, 250, 200, 150)

	s, err := Suggest(view, 300, nil, Options{})
	require.NoError(t, err)

	// total after 1300, target 325: deficits 0 / 75 / 125 / 175 = 375 scaled by 300/375
	assert.Equal(t, 0.0, s.Bucket("equity").AllocateAmount)
	assert.Equal(t, 60.0, s.Bucket("cash").AllocateAmount)
	assert.Equal(t, 100.0, s.Bucket("gold").AllocateAmount)
	assert.Equal(t, 140.0, s.Bucket("bond").AllocateAmount)
	assert.Equal(t, 75.0, s.Bucket("cash").Deficit)
	assert.Equal(t, 325.0, s.Bucket("bond").TargetValueAfter)
}

func TestSuggest_EmptyPortfolioSplitsByTarget(t *testing.T) {
	view := portfolio.BuildView(domain.DefaultPortfolioConfig(), testingpkg.QuoteMap{})

	s, err := Suggest(view, 1000, nil, Options{})
	require.NoError(t, err)

	for _, b := range s.Buckets {
		assert.Equal(t, 250.0, b.AllocateAmount, b.BucketID)
		require.Len(t, b.Assets, 1, "bucket with no assets gets a placeholder")
		assert.Nil(t, b.Assets[0].AssetID)
		assert.Equal(t, 250.0, b.Assets[0].Amount)
		assert.Equal(t, 0.0, b.CurrentWeight)
		assert.Equal(t, 0.25, b.WeightAfter)
	}
	assert.Equal(t, "Cash", s.Bucket("cash").Assets[0].Name)
}

func TestSuggest_TopUpWhenTargetsDoNotCoverContribution(t *testing.T) {
	cfg := testingpkg.FourBucketConfig()
	for i := range cfg.Buckets {
		cfg.Buckets[i].TargetWeight = 0.2
		cfg.Buckets[i].MinWeight = 0.1
	}
	view := portfolio.BuildView(cfg, testingpkg.QuoteMap{
		"stock": testingpkg.OKQuote("stock", 100, 1),
		"mmf":   testingpkg.OKQuote("mmf", 100, 1),
		"gld":   testingpkg.OKQuote("gld", 100, 1),
		"tlt":   testingpkg.OKQuote("tlt", 100, 1),
	})

	s, err := Suggest(view, 100, nil, Options{})
	require.NoError(t, err)

	// targets 0.2 × 500 = 100 each: no deficit, so the whole amount is spread by weight
	assert.Equal(t, ModeTopUp, s.Mode)
	for _, b := range s.Buckets {
		assert.Equal(t, 25.0, b.AllocateAmount, b.BucketID)
	}
}

func TestSuggest_SumIsExactForAwkwardAmounts(t *testing.T) {
	views := []*portfolio.PortfolioView{
		fourBucketView(1000.01, 333.33, 0.07, 2500.5),
		fourBucketView(1, 1, 1, 1),
		fourBucketView(0.01, 0.02, 0.03, 0.04),
		fourBucketView(123456.78, 98765.43, 55555.55, 1),
	}
	amounts := []float64{0.01, 0.03, 1, 99.99, 333.33, 1000, 12345.67}

	for _, view := range views {
		for _, c := range amounts {
			s, err := Suggest(view, c, nil, Options{})
			require.NoError(t, err)
			assert.True(t, bucketSum(s).Equal(decimal.NewFromFloat(c)), "contribution %v got %v", c, bucketSum(s))
			for _, b := range s.Buckets {
				assert.GreaterOrEqual(t, b.AllocateAmount, 0.0)
				assert.True(t, lineSum(b).Equal(decimal.NewFromFloat(b.AllocateAmount)), "bucket %s lines", b.BucketID)
			}
		}
	}
}

func TestSuggest_AtTargetBucketsGetNothingWhileOthersAreBelow(t *testing.T) {
	view := fourBucketView(300, 300, 250, 150)

	s, err := Suggest(view, 200, nil, Options{})
	require.NoError(t, err)

	// total after 1200, target 300: equity and cash are at target
	assert.Equal(t, 0.0, s.Bucket("equity").AllocateAmount)
	assert.Equal(t, 0.0, s.Bucket("cash").AllocateAmount)
	assert.InDelta(t, 200.0*50/200, s.Bucket("gold").AllocateAmount, 0.01)
	assert.InDelta(t, 200.0*150/200, s.Bucket("bond").AllocateAmount, 0.01)
}

func TestSuggest_Prefill(t *testing.T) {
	view := fourBucketView(250, 250, 250, 250)

	s, err := Suggest(view, 400, map[string]float64{"gld": 150}, Options{})
	require.NoError(t, err)

	assert.Equal(t, 400.0, s.ContributionAmount)
	assert.Equal(t, 250.0, s.ContributionRemaining)
	assert.Equal(t, 150.0, s.PrefillTotal)
	assert.Equal(t, map[string]float64{"gld": 150}, s.PrefillAssets)
	assert.True(t, bucketSum(s).Equal(decimal.NewFromInt(250)))

	gold := s.Bucket("gold")
	assert.Equal(t, 400.0, gold.CurrentValue, "prefill counts toward the bucket")
	assert.Equal(t, 150.0, gold.PrefillAmount)
	assert.Equal(t, 0.0, gold.AllocateAmount)
	assert.Empty(t, gold.Assets)

	// total after 1400, target 350: deficits 100 / 100 / 0 / 100
	assert.InDelta(t, 83.34, s.Bucket("equity").AllocateAmount, 1e-9)
	assert.InDelta(t, 83.33, s.Bucket("cash").AllocateAmount, 1e-9)
}

func TestSuggest_PrefilledAssetIsNotReallocated(t *testing.T) {
	cfg := testingpkg.FourBucketConfig()
	cfg.Assets = append(cfg.Assets, testingpkg.ListedAsset("gld2", "gold", 1))
	view := portfolio.BuildView(cfg, testingpkg.QuoteMap{
		"stock": testingpkg.OKQuote("stock", 300, 1),
		"mmf":   testingpkg.OKQuote("mmf", 300, 1),
		"gld":   testingpkg.OKQuote("gld", 10, 1),
		"gld2":  testingpkg.OKQuote("gld2", 10, 1),
		"tlt":   testingpkg.OKQuote("tlt", 300, 1),
	})

	s, err := Suggest(view, 500, map[string]float64{"gld": 50}, Options{})
	require.NoError(t, err)

	gold := s.Bucket("gold")
	require.NotEmpty(t, gold.Assets)
	for _, line := range gold.Assets {
		require.NotNil(t, line.AssetID)
		assert.Equal(t, "gld2", *line.AssetID)
	}
}

func TestSuggest_InvalidInput(t *testing.T) {
	view := fourBucketView(250, 250, 250, 250)

	tests := []struct {
		name         string
		contribution float64
		prefill      map[string]float64
	}{
		{"zero contribution", 0, nil},
		{"negative contribution", -10, nil},
		{"NaN contribution", math.NaN(), nil},
		{"infinite contribution", math.Inf(1), nil},
		{"contribution below one cent", 0.004, nil},
		{"negative prefill", 100, map[string]float64{"gld": -1}},
		{"NaN prefill", 100, map[string]float64{"gld": math.NaN()}},
		{"unknown asset", 100, map[string]float64{"nope": 10}},
		{"prefill above contribution", 100, map[string]float64{"gld": 100.01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Suggest(view, tt.contribution, tt.prefill, Options{})
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestSuggest_NoBuckets(t *testing.T) {
	view := &portfolio.PortfolioView{}

	_, err := Suggest(view, 100, nil, Options{})
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestSuggest_EstimatedQuantity(t *testing.T) {
	cfg := domain.DefaultPortfolioConfig()
	cfg.Assets = []domain.Asset{
		testingpkg.ListedAsset("gld", "gold", 0),
		testingpkg.ListedAsset("noprice", "bond", 0),
		testingpkg.CashAsset("deposit", "cash", 0),
	}
	view := portfolio.BuildView(cfg, testingpkg.QuoteMap{
		"gld":     testingpkg.OKQuote("gld", 5, 0),
		"noprice": testingpkg.ErrorQuote("noprice", "down"),
	})

	s, err := Suggest(view, 1000, nil, Options{})
	require.NoError(t, err)

	gold := s.Bucket("gold").Assets
	require.Len(t, gold, 1)
	require.NotNil(t, gold[0].EstQuantity)
	assert.InDelta(t, 50.0, *gold[0].EstQuantity, 1e-9)

	bond := s.Bucket("bond").Assets
	require.Len(t, bond, 1)
	assert.Nil(t, bond[0].EstQuantity)
	assert.Equal(t, noteNoPrice, bond[0].Note)

	cash := s.Bucket("cash").Assets
	require.Len(t, cash, 1)
	assert.Nil(t, cash[0].EstQuantity)
	assert.Equal(t, noteCash, cash[0].Note)
}

func TestSuggest_PrecisionOption(t *testing.T) {
	view := fourBucketView(400, 200, 200, 200)

	s, err := Suggest(view, 500, nil, Options{Precision: 0})
	require.NoError(t, err)
	assert.Equal(t, 166.68, s.Bucket("cash").AllocateAmount)

	s, err = Suggest(view, 500, nil, Options{Precision: 4})
	require.NoError(t, err)
	assert.Equal(t, 166.6668, s.Bucket("cash").AllocateAmount)
	assert.True(t, bucketSum(s).Equal(decimal.NewFromInt(500)))
}

func TestSuggest_SubUnitContributionHonoursPrecision(t *testing.T) {
	view := fourBucketView(250, 250, 250, 250)

	_, err := Suggest(view, 0.004, nil, Options{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	s, err := Suggest(view, 0.004, nil, Options{Precision: 3})
	require.NoError(t, err)
	assert.True(t, bucketSum(s).Equal(decimal.RequireFromString("0.004")))
}
