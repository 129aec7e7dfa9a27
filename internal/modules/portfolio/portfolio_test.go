package portfolio

import (
	"database/sql"
	"testing"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	testingpkg "github.com/bensonidabosa/stonecrestcapital/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setupService(t *testing.T) (*sql.DB, *Service) {
	t.Helper()
	db := testingpkg.NewTestConn(t)
	log := zerolog.Nop()
	svc := NewService(
		NewPortfolioRepository(db, log),
		NewHoldingRepository(db, log),
		NewSnapshotRepository(db, log),
		domain.DefaultInitialCash,
		log,
	)
	return db, svc
}

func TestCreatePortfolio_DefaultCashAndOnePerUser(t *testing.T) {
	_, svc := setupService(t)

	p, err := svc.CreatePortfolio(7, "main")
	require.NoError(t, err)
	assert.True(t, p.CashBalance.Equal(dec("1000000")))

	_, err = svc.CreatePortfolio(7, "second")
	assert.Error(t, err, "a user owns exactly one portfolio")

	got, err := svc.portfolios.GetByUserID(7)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestUpdateCash_OptimisticConcurrency(t *testing.T) {
	db, svc := setupService(t)
	id := testingpkg.SeedPortfolio(t, db, 1, "100")

	first, err := svc.portfolios.GetByID(id)
	require.NoError(t, err)
	stale, err := svc.portfolios.GetByID(id)
	require.NoError(t, err)

	require.NoError(t, svc.portfolios.UpdateCash(first, dec("150")))
	assert.Equal(t, int64(1), first.Version)

	err = svc.portfolios.UpdateCash(stale, dec("90"))
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)

	got, err := svc.portfolios.GetByID(id)
	require.NoError(t, err)
	assert.True(t, got.CashBalance.Equal(dec("150")))
}

func TestSyncHolding_SumsLotsAndDeletesAtZero(t *testing.T) {
	db, svc := setupService(t)
	portfolioID := testingpkg.SeedPortfolio(t, db, 1, "1000")
	assetID := testingpkg.SeedAsset(t, db, "AAPL", "STOCK", "10")
	strategyID := testingpkg.SeedStrategy(t, db, "Growth")
	psID := testingpkg.SeedPortfolioStrategy(t, db, portfolioID, strategyID, nil, "500")

	holdings := svc.holdings
	require.NoError(t, holdings.SaveLot(&StrategyHolding{PortfolioID: portfolioID, PortfolioStrategyID: &psID, AssetID: assetID, Quantity: dec("4"), AveragePrice: dec("10")}))
	unallocated := &StrategyHolding{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("1.5"), AveragePrice: dec("9")}
	require.NoError(t, holdings.SaveLot(unallocated))

	total, err := holdings.SyncHolding(portfolioID, assetID)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("5.5")))

	h, err := holdings.GetHolding(portfolioID, assetID)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Quantity.Equal(dec("5.5")))

	lots, err := holdings.ListLotsByPortfolio(portfolioID)
	require.NoError(t, err)
	require.NoError(t, holdings.DeleteLot(lots[0].ID))
	require.NoError(t, holdings.DeleteLot(lots[1].ID))

	total, err = holdings.SyncHolding(portfolioID, assetID)
	require.NoError(t, err)
	assert.True(t, total.IsZero())

	h, err = holdings.GetHolding(portfolioID, assetID)
	require.NoError(t, err)
	assert.Nil(t, h, "a zero holding must not exist as a row")
}

func TestGetLot_DistinguishesAllocatedAndUnallocated(t *testing.T) {
	db, svc := setupService(t)
	portfolioID := testingpkg.SeedPortfolio(t, db, 1, "1000")
	assetID := testingpkg.SeedAsset(t, db, "MSFT", "STOCK", "10")
	strategyID := testingpkg.SeedStrategy(t, db, "Growth")
	psID := testingpkg.SeedPortfolioStrategy(t, db, portfolioID, strategyID, nil, "500")

	require.NoError(t, svc.holdings.SaveLot(&StrategyHolding{PortfolioID: portfolioID, PortfolioStrategyID: &psID, AssetID: assetID, Quantity: dec("2"), AveragePrice: dec("10")}))

	lot, err := svc.holdings.GetLot(portfolioID, nil, assetID)
	require.NoError(t, err)
	assert.Nil(t, lot)

	lot, err = svc.holdings.GetLot(portfolioID, &psID, assetID)
	require.NoError(t, err)
	require.NotNil(t, lot)
	assert.Equal(t, psID, *lot.PortfolioStrategyID)
}

func TestDetachLots_MergesIntoUnallocated(t *testing.T) {
	db, svc := setupService(t)
	portfolioID := testingpkg.SeedPortfolio(t, db, 1, "1000")
	assetID := testingpkg.SeedAsset(t, db, "SPY", "ETF", "10")
	strategyID := testingpkg.SeedStrategy(t, db, "Index")
	psID := testingpkg.SeedPortfolioStrategy(t, db, portfolioID, strategyID, nil, "500")

	require.NoError(t, svc.holdings.SaveLot(&StrategyHolding{PortfolioID: portfolioID, PortfolioStrategyID: &psID, AssetID: assetID, Quantity: dec("2"), AveragePrice: dec("12")}))
	require.NoError(t, svc.holdings.SaveLot(&StrategyHolding{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("2"), AveragePrice: dec("8")}))

	n, err := svc.holdings.DetachLots(portfolioID, psID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	lot, err := svc.holdings.GetLot(portfolioID, nil, assetID)
	require.NoError(t, err)
	require.NotNil(t, lot)
	assert.True(t, lot.Quantity.Equal(dec("4")))
	assert.True(t, lot.AveragePrice.Equal(dec("10")))

	remaining, err := svc.holdings.ListLotsByAllocation(psID)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestValuationAndReturn(t *testing.T) {
	db, svc := setupService(t)
	portfolioID := testingpkg.SeedPortfolio(t, db, 1, "1000")
	assetID := testingpkg.SeedAsset(t, db, "AAPL", "STOCK", "25")

	ret, err := svc.ReturnPercentage(portfolioID)
	require.NoError(t, err)
	assert.True(t, ret.IsZero(), "no snapshot: initial value is the cash balance")

	snap, err := svc.TakeSnapshot(portfolioID, SnapshotManual)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.True(t, snap.TotalValue.Equal(dec("1000")))

	require.NoError(t, svc.holdings.SaveLot(&StrategyHolding{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("4"), AveragePrice: dec("25")}))
	_, err = svc.holdings.SyncHolding(portfolioID, assetID)
	require.NoError(t, err)

	total, err := svc.TotalValue(portfolioID)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("1100")))

	ret, err = svc.ReturnPercentage(portfolioID)
	require.NoError(t, err)
	assert.True(t, ret.Equal(dec("10")), "got %s", ret)

	summary, err := svc.Summary(portfolioID)
	require.NoError(t, err)
	assert.Len(t, summary.Holdings, 1)
	assert.True(t, summary.HoldingsValue.Equal(dec("100")))
}

func TestReturnPercentage_GuardsZeroInitialValue(t *testing.T) {
	db, svc := setupService(t)
	portfolioID := testingpkg.SeedPortfolio(t, db, 1, "0")

	ret, err := svc.ReturnPercentage(portfolioID)
	require.NoError(t, err)
	assert.True(t, ret.IsZero())
}

func TestTakeDailySnapshots_IdempotentPerDay(t *testing.T) {
	db, svc := setupService(t)
	testingpkg.SeedPortfolio(t, db, 1, "1000")
	testingpkg.SeedPortfolio(t, db, 2, "500")

	day := time.Date(2026, 3, 14, 23, 55, 0, 0, time.UTC)
	svc.now = func() time.Time { return day }

	taken, err := svc.TakeDailySnapshots()
	require.NoError(t, err)
	assert.Equal(t, 2, taken)

	taken, err = svc.TakeDailySnapshots()
	require.NoError(t, err)
	assert.Equal(t, 0, taken)

	svc.now = func() time.Time { return day.Add(24 * time.Hour) }
	taken, err = svc.TakeDailySnapshots()
	require.NoError(t, err)
	assert.Equal(t, 2, taken)

	assert.Equal(t, 4, testingpkg.CountRows(t, db, "portfolio_snapshots", ""))
}

func TestPerformance(t *testing.T) {
	db, svc := setupService(t)
	portfolioID := testingpkg.SeedPortfolio(t, db, 1, "1000")

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, cash := range []string{"1000", "1100", "990"} {
		p, err := svc.portfolios.GetByID(portfolioID)
		require.NoError(t, err)
		require.NoError(t, svc.portfolios.UpdateCash(p, dec(cash)))
		svc.now = func() time.Time { return base.Add(time.Duration(i) * 24 * time.Hour) }
		_, err = svc.TakeSnapshot(portfolioID, SnapshotDaily)
		require.NoError(t, err)
	}

	report, err := svc.Performance(portfolioID, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, report.SnapshotCount)
	assert.InDelta(t, 0.0, report.MeanReturn, 1e-9)
	assert.Greater(t, report.Volatility, 0.0)
	require.NotNil(t, report.MovingAverage)
	assert.InDelta(t, 1030.0, *report.MovingAverage, 1e-9)
	assert.True(t, report.ReturnPercentage.Equal(dec("-1")))
}
