package trading

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
	testingpkg "github.com/bensonidabosa/stonecrestcapital/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type ledgerFixture struct {
	db          *sql.DB
	ledger      *Ledger
	assets      *assets.Repository
	portfolios  *portfolio.PortfolioRepository
	holdings    *portfolio.HoldingRepository
	allocations *strategies.PortfolioStrategyRepository
	trades      *TradeRepository
}

func newLedgerFixture(t *testing.T, opts LedgerOptions, manager *events.Manager) *ledgerFixture {
	t.Helper()
	db := testingpkg.NewTestConn(t)
	log := zerolog.Nop()

	f := &ledgerFixture{
		db:          db,
		assets:      assets.NewRepository(db, log),
		portfolios:  portfolio.NewPortfolioRepository(db, log),
		holdings:    portfolio.NewHoldingRepository(db, log),
		allocations: strategies.NewPortfolioStrategyRepository(db, log),
		trades:      NewTradeRepository(db, log),
	}
	f.ledger = NewLedger(db, f.assets, f.portfolios, f.holdings, f.allocations,
		copytrading.NewRepository(db, log), f.trades, manager, opts, log)
	return f
}

func (f *ledgerFixture) buy(t *testing.T, req BuyRequest) (*Execution, error) {
	t.Helper()
	var exec *Execution
	err := database.WithTransaction(f.db, func(tx *sql.Tx) error {
		var err error
		exec, err = f.ledger.ExecuteBuy(tx, req)
		return err
	})
	return exec, err
}

func (f *ledgerFixture) sell(t *testing.T, req SellRequest) *Execution {
	t.Helper()
	var exec *Execution
	err := database.WithTransaction(f.db, func(tx *sql.Tx) error {
		var err error
		exec, err = f.ledger.ExecuteSell(tx, req)
		return err
	})
	require.NoError(t, err)
	return exec
}

func (f *ledgerFixture) allocation(t *testing.T, id int64) *strategies.PortfolioStrategy {
	t.Helper()
	ps, err := f.allocations.GetByID(id)
	require.NoError(t, err)
	return ps
}

func (f *ledgerFixture) cash(t *testing.T, portfolioID int64) decimal.Decimal {
	t.Helper()
	p, err := f.portfolios.GetByID(portfolioID)
	require.NoError(t, err)
	return p.CashBalance
}

func TestExecuteBuy_UnderAllocationDebitsOnlyAllocation(t *testing.T) {
	f := newLedgerFixture(t, LedgerOptions{}, nil)
	assetID := testingpkg.SeedAsset(t, f.db, "ACME", "STOCK", "10")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "1000")
	strategyID := testingpkg.SeedStrategy(t, f.db, "Growth")
	psID := testingpkg.SeedPortfolioStrategy(t, f.db, portfolioID, strategyID, nil, "500")

	ps := f.allocation(t, psID)
	exec, err := f.buy(t, BuyRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("20"), Allocation: ps})
	require.NoError(t, err)
	require.True(t, exec.Executed)
	assert.True(t, exec.Amount.Equal(dec("200")))

	assert.True(t, ps.RemainingCash.Equal(dec("300")), "caller's allocation is refreshed")
	assert.True(t, f.allocation(t, psID).RemainingCash.Equal(dec("300")))
	assert.True(t, f.cash(t, portfolioID).Equal(dec("1000")), "free cash is untouched under an allocation")

	lot, err := f.holdings.GetLot(portfolioID, &psID, assetID)
	require.NoError(t, err)
	require.NotNil(t, lot)
	assert.True(t, lot.Quantity.Equal(dec("20")))
	assert.True(t, lot.AveragePrice.Equal(dec("10")))

	// Second buy at a new price moves the volume-weighted average
	require.NoError(t, f.assets.UpdatePrice(assetID, dec("20")))
	exec, err = f.buy(t, BuyRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("5"), Allocation: ps})
	require.NoError(t, err)
	require.True(t, exec.Executed)

	lot, err = f.holdings.GetLot(portfolioID, &psID, assetID)
	require.NoError(t, err)
	assert.True(t, lot.Quantity.Equal(dec("25")))
	assert.True(t, lot.AveragePrice.Equal(dec("12")), "got %s", lot.AveragePrice)

	holding, err := f.holdings.GetHolding(portfolioID, assetID)
	require.NoError(t, err)
	require.NotNil(t, holding)
	assert.True(t, holding.Quantity.Equal(dec("25")))

	trades, err := f.trades.ListByAllocation(psID)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, TradeTypeBuy, trades[0].TradeType)
	assert.Equal(t, SideBuy, trades[0].Side)
	assert.Equal(t, "ACME", trades[0].Symbol)
	assert.NotEmpty(t, trades[0].Reference)
}

func TestExecuteBuy_CostAboveRemainingIsNoOp(t *testing.T) {
	f := newLedgerFixture(t, LedgerOptions{}, nil)
	assetID := testingpkg.SeedAsset(t, f.db, "ACME", "STOCK", "50")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "1000")
	strategyID := testingpkg.SeedStrategy(t, f.db, "Growth")
	psID := testingpkg.SeedPortfolioStrategy(t, f.db, portfolioID, strategyID, nil, "30")

	exec, err := f.buy(t, BuyRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("1"), Allocation: f.allocation(t, psID)})
	require.NoError(t, err)
	assert.False(t, exec.Executed)
	assert.Equal(t, SkipInsufficientFunds, exec.Skipped)

	assert.True(t, f.allocation(t, psID).RemainingCash.Equal(dec("30")))
	assert.True(t, f.cash(t, portfolioID).Equal(dec("1000")))
	assert.Equal(t, 0, testingpkg.CountRows(t, f.db, "trades", ""))
	assert.Equal(t, 0, testingpkg.CountRows(t, f.db, "strategy_holdings", ""))
}

func TestExecuteBuy_CopyAllocationCappedByRelationship(t *testing.T) {
	f := newLedgerFixture(t, LedgerOptions{}, nil)
	assetID := testingpkg.SeedAsset(t, f.db, "ACME", "STOCK", "10")
	leaderID := testingpkg.SeedPortfolio(t, f.db, 1, "0")
	followerID := testingpkg.SeedPortfolio(t, f.db, 2, "0")
	relID := testingpkg.SeedCopyRelationship(t, f.db, followerID, leaderID, "100")
	strategyID := testingpkg.SeedStrategy(t, f.db, "Growth")
	psID := testingpkg.SeedPortfolioStrategy(t, f.db, followerID, strategyID, &relID, "500")

	exec, err := f.buy(t, BuyRequest{PortfolioID: followerID, AssetID: assetID, Quantity: dec("20"), Allocation: f.allocation(t, psID)})
	require.NoError(t, err)
	assert.False(t, exec.Executed, "relationship remaining 100 is the tighter ceiling")

	exec, err = f.buy(t, BuyRequest{PortfolioID: followerID, AssetID: assetID, Quantity: dec("10"), Allocation: f.allocation(t, psID)})
	require.NoError(t, err)
	assert.True(t, exec.Executed)
	assert.True(t, f.allocation(t, psID).RemainingCash.Equal(dec("400")))

	rel, err := copytrading.NewRepository(f.db, zerolog.Nop()).GetByID(relID)
	require.NoError(t, err)
	assert.True(t, rel.RemainingCash.Equal(dec("100")), "the relationship is capped, not debited")
}

func TestExecuteBuy_Unallocated(t *testing.T) {
	f := newLedgerFixture(t, LedgerOptions{}, nil)
	assetID := testingpkg.SeedAsset(t, f.db, "ACME", "STOCK", "10")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "1000")

	exec, err := f.buy(t, BuyRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("20")})
	require.NoError(t, err)
	require.True(t, exec.Executed)
	assert.True(t, f.cash(t, portfolioID).Equal(dec("800")))

	lot, err := f.holdings.GetLot(portfolioID, nil, assetID)
	require.NoError(t, err)
	require.NotNil(t, lot)
	assert.Nil(t, lot.PortfolioStrategyID)

	exec, err = f.buy(t, BuyRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("81")})
	require.NoError(t, err)
	assert.False(t, exec.Executed, "810 exceeds free cash 800")
	assert.True(t, f.cash(t, portfolioID).Equal(dec("800")))
}

func TestExecuteBuy_StrictCashCheck(t *testing.T) {
	f := newLedgerFixture(t, LedgerOptions{}, nil)
	assetID := testingpkg.SeedAsset(t, f.db, "ACME", "STOCK", "10")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "100")
	strategyID := testingpkg.SeedStrategy(t, f.db, "Growth")
	psID := testingpkg.SeedPortfolioStrategy(t, f.db, portfolioID, strategyID, nil, "500")

	strict := true
	_, err := f.buy(t, BuyRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("20"), Allocation: f.allocation(t, psID), Strict: &strict})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.True(t, f.allocation(t, psID).RemainingCash.Equal(dec("500")))

	exec, err := f.buy(t, BuyRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("20"), Allocation: f.allocation(t, psID)})
	require.NoError(t, err)
	assert.True(t, exec.Executed, "non-strict buys under an allocation only check the pools")
}

func TestExecuteBuy_Preconditions(t *testing.T) {
	f := newLedgerFixture(t, LedgerOptions{}, nil)
	freeID := testingpkg.SeedAsset(t, f.db, "FREE", "STOCK", "0")
	assetID := testingpkg.SeedAsset(t, f.db, "ACME", "STOCK", "10")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "1000")
	strategyID := testingpkg.SeedStrategy(t, f.db, "Growth")
	psID := testingpkg.SeedPortfolioStrategy(t, f.db, portfolioID, strategyID, nil, "500")

	exec, err := f.buy(t, BuyRequest{PortfolioID: portfolioID, AssetID: freeID, Quantity: dec("1")})
	require.NoError(t, err)
	assert.Equal(t, SkipNotTradable, exec.Skipped)

	exec, err = f.buy(t, BuyRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("0")})
	require.NoError(t, err)
	assert.Equal(t, SkipZeroQuantity, exec.Skipped)

	ps := f.allocation(t, psID)
	require.NoError(t, f.allocations.Stop(ps))
	exec, err = f.buy(t, BuyRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("1"), Allocation: ps})
	require.NoError(t, err)
	assert.Equal(t, SkipInactiveAllocation, exec.Skipped)

	other := testingpkg.SeedPortfolio(t, f.db, 2, "1000")
	_, err = f.buy(t, BuyRequest{PortfolioID: other, AssetID: assetID, Quantity: dec("1"), Allocation: ps})
	assert.ErrorIs(t, err, domain.ErrValidation)

	assert.Equal(t, 0, testingpkg.CountRows(t, f.db, "trades", ""))
}

func TestExecuteSell_ClampsAndCreditsBothPools(t *testing.T) {
	f := newLedgerFixture(t, LedgerOptions{}, nil)
	assetID := testingpkg.SeedAsset(t, f.db, "ACME", "STOCK", "10")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "1000")
	strategyID := testingpkg.SeedStrategy(t, f.db, "Growth")
	psID := testingpkg.SeedPortfolioStrategy(t, f.db, portfolioID, strategyID, nil, "500")

	ps := f.allocation(t, psID)
	_, err := f.buy(t, BuyRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("40"), Allocation: ps})
	require.NoError(t, err)
	require.True(t, ps.RemainingCash.Equal(dec("100")))

	exec := f.sell(t, SellRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("100"), Allocation: ps})
	require.True(t, exec.Executed)
	assert.True(t, exec.Quantity.Equal(dec("40")), "never sells more than held")
	assert.True(t, exec.Amount.Equal(dec("400")))

	assert.True(t, f.cash(t, portfolioID).Equal(dec("1400")))
	assert.True(t, ps.RemainingCash.Equal(dec("500")))
	assert.True(t, f.allocation(t, psID).RemainingCash.Equal(dec("500")))

	lot, err := f.holdings.GetLot(portfolioID, &psID, assetID)
	require.NoError(t, err)
	assert.Nil(t, lot, "emptied lot is deleted")

	holding, err := f.holdings.GetHolding(portfolioID, assetID)
	require.NoError(t, err)
	assert.Nil(t, holding, "holding is deleted at zero")

	trades, err := f.trades.ListByAllocation(psID)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, TradeTypeSell, trades[1].TradeType)
	assert.Equal(t, SideSell, trades[1].Side)
}

func TestExecuteSell_MissingPositionIsNoOp(t *testing.T) {
	f := newLedgerFixture(t, LedgerOptions{}, nil)
	assetID := testingpkg.SeedAsset(t, f.db, "ACME", "STOCK", "10")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "1000")

	exec := f.sell(t, SellRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("5")})
	assert.False(t, exec.Executed)
	assert.Equal(t, SkipMissingPosition, exec.Skipped)
	assert.True(t, f.cash(t, portfolioID).Equal(dec("1000")))
	assert.Equal(t, 0, testingpkg.CountRows(t, f.db, "trades", ""))
}

func TestExecuteSell_ProceedsUseBankersRounding(t *testing.T) {
	f := newLedgerFixture(t, LedgerOptions{}, nil)
	assetID := testingpkg.SeedAsset(t, f.db, "PENNY", "STOCK", "1")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "100")

	_, err := f.buy(t, BuyRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("3")})
	require.NoError(t, err)
	require.NoError(t, f.assets.UpdatePrice(assetID, dec("0.335")))

	exec := f.sell(t, SellRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("3")})
	require.True(t, exec.Executed)
	assert.True(t, exec.Amount.Equal(dec("1.00")), "1.005 rounds half to even, got %s", exec.Amount)
	assert.True(t, f.cash(t, portfolioID).Equal(dec("98")))
}

func TestLedger_HoldingIsSumOfLots(t *testing.T) {
	f := newLedgerFixture(t, LedgerOptions{}, nil)
	assetID := testingpkg.SeedAsset(t, f.db, "ACME", "STOCK", "10")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "1000")
	growth := testingpkg.SeedStrategy(t, f.db, "Growth")
	income := testingpkg.SeedStrategy(t, f.db, "Income")
	growthPS := f.allocation(t, testingpkg.SeedPortfolioStrategy(t, f.db, portfolioID, growth, nil, "500"))
	incomePS := f.allocation(t, testingpkg.SeedPortfolioStrategy(t, f.db, portfolioID, income, nil, "500"))

	for _, req := range []BuyRequest{
		{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("10"), Allocation: growthPS},
		{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("15"), Allocation: incomePS},
		{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("5")},
	} {
		exec, err := f.buy(t, req)
		require.NoError(t, err)
		require.True(t, exec.Executed)
	}

	holding, err := f.holdings.GetHolding(portfolioID, assetID)
	require.NoError(t, err)
	assert.True(t, holding.Quantity.Equal(dec("30")))

	f.sell(t, SellRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("4"), Allocation: incomePS})

	holding, err = f.holdings.GetHolding(portfolioID, assetID)
	require.NoError(t, err)
	assert.True(t, holding.Quantity.Equal(dec("26")))

	lots, err := f.holdings.ListLotsByPortfolio(portfolioID)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, lot := range lots {
		sum = sum.Add(lot.Quantity)
	}
	assert.True(t, sum.Equal(holding.Quantity))
}

func TestLedger_BuyWrapperEmitsAfterCommit(t *testing.T) {
	log := zerolog.Nop()
	bus := events.NewBus(log)
	manager := events.NewManager(bus, nil, log)
	f := newLedgerFixture(t, LedgerOptions{ConflictRetries: 2}, manager)

	assetID := testingpkg.SeedAsset(t, f.db, "ACME", "STOCK", "10")
	portfolioID := testingpkg.SeedPortfolio(t, f.db, 1, "1000")

	var seen []*events.TradeExecutedData
	bus.Subscribe(events.TradeExecuted, func(e events.Event) error {
		seen = append(seen, e.Data.(*events.TradeExecutedData))
		return nil
	})

	exec, err := f.ledger.Buy(BuyRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("2")})
	require.NoError(t, err)
	require.True(t, exec.Executed)

	exec, err = f.ledger.Sell(SellRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("9")})
	require.NoError(t, err)
	require.True(t, exec.Executed)

	_, err = f.ledger.Sell(SellRequest{PortfolioID: portfolioID, AssetID: assetID, Quantity: dec("1")})
	require.NoError(t, err)

	require.Len(t, seen, 2, "skipped executions emit nothing")
	assert.Equal(t, "BUY", seen[0].TradeType)
	assert.Equal(t, "20", seen[0].Amount)
	assert.Equal(t, "SELL", seen[1].TradeType)
	assert.True(t, f.cash(t, portfolioID).Equal(dec("1000")))
}
