package ledger

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/permanent/internal/domain"
	"github.com/aristath/permanent/internal/modules/portfolio"
	testingpkg "github.com/aristath/permanent/internal/testing"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(newRepository(t), time.UTC, zerolog.Nop())
}

func TestService_ParseDate(t *testing.T) {
	svc := newService(t)

	d, err := svc.ParseDate(" 2024-02-29 ")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), d)

	_, err = svc.ParseDate("29/02/2024")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestService_AddNormalizes(t *testing.T) {
	svc := newService(t)

	saved, err := svc.Add(domain.LedgerEntry{
		ID:        "caller-chosen",
		Date:      day0,
		Direction: domain.LedgerDeposit,
		Amount:    100,
		AssetID:   testingpkg.Ptr("  "),
		Note:      "  first  ",
	})
	require.NoError(t, err)
	assert.NotEqual(t, "caller-chosen", saved.ID)
	assert.Nil(t, saved.AssetID)
	assert.Equal(t, "first", saved.Note)
}

func TestService_MetricsTotalsAndPerAsset(t *testing.T) {
	svc := newService(t)
	asOf := daysAfter(365)

	_, err := svc.Add(domain.LedgerEntry{Date: day0, Direction: domain.LedgerDeposit, Amount: 600, AssetID: testingpkg.Ptr("stock")})
	require.NoError(t, err)
	_, err = svc.Add(domain.LedgerEntry{Date: day0, Direction: domain.LedgerDeposit, Amount: 300})
	require.NoError(t, err)
	_, err = svc.Add(domain.LedgerEntry{Date: day0, Direction: domain.LedgerDeposit, Amount: 100, AssetID: testingpkg.Ptr("sold-off")})
	require.NoError(t, err)

	view := portfolio.BuildView(testingpkg.FourBucketConfig(), testingpkg.QuoteMap{
		"stock": testingpkg.OKQuote("stock", 660, 1),
		"mmf":   testingpkg.OKQuote("mmf", 200, 1),
		"gld":   testingpkg.OKQuote("gld", 150, 1),
		"tlt":   testingpkg.OKQuote("tlt", 90, 1),
	})

	report, err := svc.Metrics(view, asOf)
	require.NoError(t, err)

	assert.Equal(t, 1000.0, report.Total.Principal)
	assert.Equal(t, 1100.0, report.Total.CurrentValue)
	assert.InDelta(t, 100.0, report.Total.Profit, 1e-9)
	require.NotNil(t, report.Total.XIRRAnnual)
	assert.InDelta(t, 0.10, *report.Total.XIRRAnnual, 1e-6)

	require.Len(t, report.PerAsset, 1)
	stock := report.PerAsset[0]
	assert.Equal(t, "stock", stock.AssetID)
	assert.Equal(t, 600.0, stock.Principal)
	assert.Equal(t, 660.0, stock.CurrentValue)
	require.NotNil(t, stock.XIRRAnnual)
	assert.InDelta(t, 0.10, *stock.XIRRAnnual, 1e-6)
}

func TestService_MetricsUnknownAssetValue(t *testing.T) {
	svc := newService(t)

	_, err := svc.Add(domain.LedgerEntry{Date: day0, Direction: domain.LedgerDeposit, Amount: 500, AssetID: testingpkg.Ptr("gld")})
	require.NoError(t, err)

	view := portfolio.BuildView(testingpkg.FourBucketConfig(), testingpkg.QuoteMap{
		"stock": testingpkg.OKQuote("stock", 100, 1),
		"mmf":   testingpkg.OKQuote("mmf", 100, 1),
		"gld":   testingpkg.ErrorQuote("gld", "price: timed out"),
		"tlt":   testingpkg.OKQuote("tlt", 100, 1),
	})

	report, err := svc.Metrics(view, daysAfter(100))
	require.NoError(t, err)
	require.Len(t, report.PerAsset, 1)
	assert.Nil(t, report.PerAsset[0].XIRRAnnual)
	assert.Equal(t, ReasonValueUnknown, report.PerAsset[0].XIRRStatus)
}

func TestService_MetricsIdempotent(t *testing.T) {
	svc := newService(t)
	_, err := svc.Add(domain.LedgerEntry{Date: day0, Direction: domain.LedgerDeposit, Amount: 1000})
	require.NoError(t, err)

	view := portfolio.BuildView(testingpkg.FourBucketConfig(), testingpkg.QuoteMap{
		"stock": testingpkg.OKQuote("stock", 300, 1),
		"mmf":   testingpkg.OKQuote("mmf", 300, 1),
		"gld":   testingpkg.OKQuote("gld", 300, 1),
		"tlt":   testingpkg.OKQuote("tlt", 300, 1),
	})

	first, err := svc.Metrics(view, daysAfter(200))
	require.NoError(t, err)
	second, err := svc.Metrics(view, daysAfter(200))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestService_MetricsWithoutView(t *testing.T) {
	svc := newService(t)
	_, err := svc.Metrics(nil, day0)
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}
