package services

import (
	"database/sql"
	"testing"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/internal/events"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/assets"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/copytrading"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/trading"
	testingpkg "github.com/bensonidabosa/stonecrestcapital/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type engineFixture struct {
	db            *sql.DB
	bus           *events.Bus
	ledger        *trading.Ledger
	engine        *StrategyEngine
	propagator    *CopyPropagator
	portfolios    *portfolio.PortfolioRepository
	holdings      *portfolio.HoldingRepository
	allocations   *strategies.PortfolioStrategyRepository
	relationships *copytrading.Repository
	trades        *trading.TradeRepository
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	return newEngineFixtureWith(t, trading.LedgerOptions{})
}

func newEngineFixtureWith(t *testing.T, opts trading.LedgerOptions) *engineFixture {
	t.Helper()
	db := testingpkg.NewTestConn(t)
	log := zerolog.Nop()

	bus := events.NewBus(log)
	manager := events.NewManager(bus, nil, log)

	f := &engineFixture{
		db:            db,
		bus:           bus,
		portfolios:    portfolio.NewPortfolioRepository(db, log),
		holdings:      portfolio.NewHoldingRepository(db, log),
		allocations:   strategies.NewPortfolioStrategyRepository(db, log),
		relationships: copytrading.NewRepository(db, log),
		trades:        trading.NewTradeRepository(db, log),
	}
	f.ledger = trading.NewLedger(db, assets.NewRepository(db, log), f.portfolios, f.holdings, f.allocations,
		f.relationships, f.trades, manager, opts, log)
	valuation := portfolio.NewService(f.portfolios, f.holdings, portfolio.NewSnapshotRepository(db, log), decimal.Zero, log)
	f.engine = NewStrategyEngine(db, f.ledger, f.portfolios, f.holdings, valuation,
		strategies.NewStrategyRepository(db, log), f.allocations, f.relationships, manager, 3, log)
	f.propagator = NewCopyPropagator(db, f.engine, manager, DefaultCopyBuyPercent, DefaultCopyMinCash, 3, log)
	return f
}

func (f *engineFixture) cash(t *testing.T, portfolioID int64) decimal.Decimal {
	t.Helper()
	p, err := f.portfolios.GetByID(portfolioID)
	require.NoError(t, err)
	return p.CashBalance
}

func (f *engineFixture) inTx(t *testing.T, fn func(tx *sql.Tx) error) {
	t.Helper()
	require.NoError(t, database.WithTransaction(f.db, fn))
}

// singleAssetStrategy seeds a strategy holding 100% of one asset
func (f *engineFixture) singleAssetStrategy(t *testing.T, name, price string) (strategyID, assetID int64) {
	t.Helper()
	assetID = testingpkg.SeedAsset(t, f.db, name, "STOCK", price)
	strategyID = testingpkg.SeedStrategy(t, f.db, name, testingpkg.AllocationFixture{AssetID: assetID, Percentage: "100"})
	return strategyID, assetID
}

func TestExecuteStrategy_FloorsTargetsToCeiling(t *testing.T) {
	f := newEngineFixture(t)
	a := testingpkg.SeedAsset(t, f.db, "AAA", "STOCK", "7")
	b := testingpkg.SeedAsset(t, f.db, "BBB", "STOCK", "7")
	c := testingpkg.SeedAsset(t, f.db, "CCC", "STOCK", "7")
	free := testingpkg.SeedAsset(t, f.db, "ZERO", "STOCK", "0")
	strategyID := testingpkg.SeedStrategy(t, f.db, "Thirds",
		testingpkg.AllocationFixture{AssetID: a, Percentage: "33.33"},
		testingpkg.AllocationFixture{AssetID: b, Percentage: "33.33"},
		testingpkg.AllocationFixture{AssetID: c, Percentage: "33.33"},
		testingpkg.AllocationFixture{AssetID: free, Percentage: "0.01"},
	)
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "0")
	psID := testingpkg.SeedPortfolioStrategy(t, f.db, portfolioID, strategyID, nil, "1000")

	ps, err := f.allocations.GetByID(psID)
	require.NoError(t, err)

	var run *StrategyRun
	f.inTx(t, func(tx *sql.Tx) error {
		run, err = f.engine.ExecuteStrategy(tx, ps, nil)
		return err
	})

	require.Len(t, run.Executions, 3, "zero-priced assets are skipped")
	for _, exec := range run.Executions {
		assert.True(t, exec.Executed)
		assert.True(t, exec.Amount.Equal(dec("333.3")), "got %s", exec.Amount)
	}
	assert.True(t, run.Spent.Equal(dec("999.9")))
	assert.True(t, run.Spent.LessThanOrEqual(run.Ceiling))

	stored, err := f.allocations.GetByID(psID)
	require.NoError(t, err)
	assert.True(t, stored.RemainingCash.Equal(dec("0.1")), "got %s", stored.RemainingCash)
	assert.True(t, f.cash(t, portfolioID).IsZero(), "strategy buys never touch free cash")
}

func TestExecuteStrategy_MaxCashAndEmptyCeiling(t *testing.T) {
	f := newEngineFixture(t)
	strategyID, assetID := f.singleAssetStrategy(t, "AAA", "10")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "0")
	psID := testingpkg.SeedPortfolioStrategy(t, f.db, portfolioID, strategyID, nil, "1000")
	ps, err := f.allocations.GetByID(psID)
	require.NoError(t, err)

	maxCash := dec("250")
	f.inTx(t, func(tx *sql.Tx) error {
		run, err := f.engine.ExecuteStrategy(tx, ps, &maxCash)
		require.NoError(t, err)
		assert.True(t, run.Ceiling.Equal(dec("250")))
		assert.True(t, run.Spent.Equal(dec("250")))
		return nil
	})

	lot, err := f.holdings.GetLot(portfolioID, &psID, assetID)
	require.NoError(t, err)
	assert.True(t, lot.Quantity.Equal(dec("25")))

	zero := decimal.Zero
	f.inTx(t, func(tx *sql.Tx) error {
		run, err := f.engine.ExecuteStrategy(tx, ps, &zero)
		require.NoError(t, err)
		assert.Empty(t, run.Executions)
		return nil
	})
}

func TestExecuteCopyStrategy_QuantizesQuantity(t *testing.T) {
	f := newEngineFixture(t)
	strategyID, assetID := f.singleAssetStrategy(t, "AAA", "3")
	leaderID := testingpkg.SeedPortfolio(t, f.db, 1, "0")
	followerID := testingpkg.SeedPortfolio(t, f.db, 2, "0")
	relID := testingpkg.SeedCopyRelationship(t, f.db, followerID, leaderID, "1000")
	psID := testingpkg.SeedPortfolioStrategy(t, f.db, followerID, strategyID, &relID, "100")
	ps, err := f.allocations.GetByID(psID)
	require.NoError(t, err)

	f.inTx(t, func(tx *sql.Tx) error {
		_, err := f.engine.ExecuteCopyStrategy(tx, ps)
		return err
	})

	lot, err := f.holdings.GetLot(followerID, &psID, assetID)
	require.NoError(t, err)
	require.NotNil(t, lot)
	assert.Equal(t, "33.3333", lot.Quantity.String())
	// 33.3333 × 3 = 99.9999 settles to 100.00
	assert.True(t, ps.RemainingCash.IsZero(), "got %s", ps.RemainingCash)
}

func TestActivateStrategy(t *testing.T) {
	f := newEngineFixture(t)
	strategyID, assetID := f.singleAssetStrategy(t, "AAA", "10")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "5000")

	stream, unsubscribe := f.bus.Stream(16)
	defer unsubscribe()

	activation, err := f.engine.ActivateStrategy(portfolioID, strategyID, dec("1000"))
	require.NoError(t, err)
	assert.True(t, activation.Allocation.AllocatedCash.Equal(dec("1000")))
	assert.True(t, activation.Allocation.RemainingCash.IsZero())
	assert.True(t, f.cash(t, portfolioID).Equal(dec("4000")))

	holding, err := f.holdings.GetHolding(portfolioID, assetID)
	require.NoError(t, err)
	assert.True(t, holding.Quantity.Equal(dec("100")))

	var types []events.EventType
	for len(stream) > 0 {
		types = append(types, (<-stream).Type)
	}
	assert.Equal(t, []events.EventType{events.TradeExecuted, events.StrategyActivated}, types)

	_, err = f.engine.ActivateStrategy(portfolioID, strategyID, dec("100"))
	assert.ErrorIs(t, err, domain.ErrStrategyActive)
}

func TestActivateStrategy_Rejections(t *testing.T) {
	f := newEngineFixture(t)
	strategyID, _ := f.singleAssetStrategy(t, "AAA", "10")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "500")
	leaderID := testingpkg.SeedPortfolio(t, f.db, 2, "0")

	_, err := f.engine.ActivateStrategy(portfolioID, strategyID, decimal.Zero)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.engine.ActivateStrategy(portfolioID, strategyID, dec("501"))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = f.engine.ActivateStrategy(portfolioID, 999, dec("100"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	testingpkg.SeedCopyRelationship(t, f.db, portfolioID, leaderID, "100")
	_, err = f.engine.ActivateStrategy(portfolioID, strategyID, dec("100"))
	assert.ErrorIs(t, err, domain.ErrCopyTradingActive)

	assert.True(t, f.cash(t, portfolioID).Equal(dec("500")), "rejections leave cash untouched")
	assert.Equal(t, 0, testingpkg.CountRows(t, f.db, "portfolio_strategies", ""))
}

func TestSwitchStrategy(t *testing.T) {
	f := newEngineFixture(t)
	oldID, oldAsset := f.singleAssetStrategy(t, "OLD", "10")
	newID, newAsset := f.singleAssetStrategy(t, "NEW", "20")
	direct := testingpkg.SeedAsset(t, f.db, "DIR", "STOCK", "10")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "5000")

	activation, err := f.engine.ActivateStrategy(portfolioID, oldID, dec("1000"))
	require.NoError(t, err)
	exec, err := f.ledger.Buy(trading.BuyRequest{PortfolioID: portfolioID, AssetID: direct, Quantity: dec("10")})
	require.NoError(t, err)
	require.True(t, exec.Executed)
	require.True(t, f.cash(t, portfolioID).Equal(dec("3900")))

	result, err := f.engine.SwitchStrategy(portfolioID, newID)
	require.NoError(t, err)
	require.Len(t, result.Released, 1)
	assert.Equal(t, activation.Allocation.ID, result.Released[0].PortfolioStrategyID)
	assert.True(t, result.Released[0].Proceeds.Equal(dec("1000")))
	require.Len(t, result.Sold, 1)

	assert.True(t, result.Allocation.AllocatedCash.Equal(dec("5000")))
	assert.True(t, f.cash(t, portfolioID).IsZero())
	assert.True(t, result.TotalValue.Equal(dec("5000")))

	_, err = f.allocations.GetByID(activation.Allocation.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for _, assetID := range []int64{oldAsset, direct} {
		holding, err := f.holdings.GetHolding(portfolioID, assetID)
		require.NoError(t, err)
		assert.Nil(t, holding)
	}
	holding, err := f.holdings.GetHolding(portfolioID, newAsset)
	require.NoError(t, err)
	assert.True(t, holding.Quantity.Equal(dec("250")))

	require.NotNil(t, result.Snapshot)
	assert.Equal(t, portfolio.SnapshotSwitch, result.Snapshot.Source)
	assert.Equal(t, trading.TradeTypeSwitch, result.Trade.TradeType)
	assert.True(t, result.Trade.Amount.Equal(dec("5000")))
	assert.Equal(t, 1, testingpkg.CountRows(t, f.db, "trades", "trade_type = 'SWITCH' AND side IS NULL"))
}

func TestSwitchStrategy_StrictCashCheckStillBuys(t *testing.T) {
	f := newEngineFixtureWith(t, trading.LedgerOptions{StrictCashCheck: true})
	strategyID, assetID := f.singleAssetStrategy(t, "NEW", "20")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "5000")

	result, err := f.engine.SwitchStrategy(portfolioID, strategyID)
	require.NoError(t, err)
	assert.True(t, result.Run.Spent.Equal(dec("5000")))
	assert.True(t, f.cash(t, portfolioID).IsZero())

	holding, err := f.holdings.GetHolding(portfolioID, assetID)
	require.NoError(t, err)
	require.NotNil(t, holding)
	assert.True(t, holding.Quantity.Equal(dec("250")))

	// A direct buy with no free cash left is still rejected outright
	_, err = f.ledger.Buy(trading.BuyRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("1")})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestSwitchStrategy_BlockedWhileCopying(t *testing.T) {
	f := newEngineFixture(t)
	strategyID, _ := f.singleAssetStrategy(t, "AAA", "10")
	followerID := testingpkg.SeedPortfolio(t, f.db, 1, "500")
	leaderID := testingpkg.SeedPortfolio(t, f.db, 2, "0")
	testingpkg.SeedCopyRelationship(t, f.db, followerID, leaderID, "100")

	_, err := f.engine.SwitchStrategy(followerID, strategyID)
	assert.ErrorIs(t, err, domain.ErrCopyTradingActive)
	assert.True(t, domain.IsInvariantViolation(err))
}

func TestLiquidateStrategy_All(t *testing.T) {
	f := newEngineFixture(t)
	first, _ := f.singleAssetStrategy(t, "AAA", "10")
	b := testingpkg.SeedAsset(t, f.db, "BBB", "STOCK", "5")
	second := testingpkg.SeedStrategy(t, f.db, "Half", testingpkg.AllocationFixture{AssetID: b, Percentage: "50"})
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "5000")

	_, err := f.engine.ActivateStrategy(portfolioID, first, dec("1000"))
	require.NoError(t, err)
	_, err = f.engine.ActivateStrategy(portfolioID, second, dec("500"))
	require.NoError(t, err)
	require.True(t, f.cash(t, portfolioID).Equal(dec("3500")))

	result, err := f.engine.LiquidateStrategy(portfolioID, nil)
	require.NoError(t, err)
	require.Len(t, result.Released, 2)
	assert.True(t, result.Released[1].Returned.Equal(dec("250")), "undeployed cash comes back")
	assert.True(t, result.CashBalance.Equal(dec("5000")), "got %s", result.CashBalance)
	require.NotNil(t, result.Snapshot)
	assert.Equal(t, portfolio.SnapshotLiquidation, result.Snapshot.Source)

	assert.Equal(t, 0, testingpkg.CountRows(t, f.db, "portfolio_strategies", ""))
	assert.Equal(t, 0, testingpkg.CountRows(t, f.db, "strategy_holdings", ""))
	assert.Equal(t, 0, testingpkg.CountRows(t, f.db, "holdings", ""))
}

func TestStopStrategy(t *testing.T) {
	f := newEngineFixture(t)
	strategyID, _ := f.singleAssetStrategy(t, "AAA", "10")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "2000")
	otherID := testingpkg.SeedPortfolio(t, f.db, 2, "0")

	activation, err := f.engine.ActivateStrategy(portfolioID, strategyID, dec("1000"))
	require.NoError(t, err)

	_, err = f.engine.StopStrategy(otherID, activation.Allocation.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)

	result, err := f.engine.StopStrategy(portfolioID, activation.Allocation.ID)
	require.NoError(t, err)
	require.Len(t, result.Released, 1)
	assert.True(t, result.CashBalance.Equal(dec("2000")))

	_, err = f.engine.StopStrategy(portfolioID, activation.Allocation.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLiquidateStrategy_RejectsCopies(t *testing.T) {
	f := newEngineFixture(t)
	strategyID, _ := f.singleAssetStrategy(t, "AAA", "10")
	leaderID := testingpkg.SeedPortfolio(t, f.db, 1, "0")
	followerID := testingpkg.SeedPortfolio(t, f.db, 2, "0")
	relID := testingpkg.SeedCopyRelationship(t, f.db, followerID, leaderID, "100")
	psID := testingpkg.SeedPortfolioStrategy(t, f.db, followerID, strategyID, &relID, "100")

	_, err := f.engine.LiquidateStrategy(followerID, &psID)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, 1, testingpkg.CountRows(t, f.db, "portfolio_strategies", ""))
}
