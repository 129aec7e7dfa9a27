package services

import (
	"database/sql"
	"testing"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/modules/copytrading"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	testingpkg "github.com/bensonidabosa/stonecrestcapital/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSnapshot(t *testing.T, db *sql.DB, portfolioID int64, totalValue string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO portfolio_snapshots (portfolio_id, total_value, cash_balance, source, snapshot_date, created_at)
		VALUES (?, ?, ?, 'MANUAL', ?, ?)`, portfolioID, totalValue, totalValue, "2026-01-01", time.Now().Add(-24*time.Hour).Unix())
	require.NoError(t, err)
}

func newLeaderboard(db *sql.DB) *LeaderboardService {
	log := zerolog.Nop()
	valuation := portfolio.NewService(portfolio.NewPortfolioRepository(db, log), portfolio.NewHoldingRepository(db, log),
		portfolio.NewSnapshotRepository(db, log), decimal.Zero, log)
	return NewLeaderboardService(strategies.NewStrategyRepository(db, log), strategies.NewPortfolioStrategyRepository(db, log),
		copytrading.NewRepository(db, log), valuation, log)
}

func TestLeaderboard(t *testing.T) {
	db := testingpkg.NewTestConn(t)
	asset := testingpkg.SeedAsset(t, db, "AAA", "STOCK", "10")
	alpha := testingpkg.SeedStrategy(t, db, "Alpha", testingpkg.AllocationFixture{AssetID: asset, Percentage: "100"})
	beta := testingpkg.SeedStrategy(t, db, "Beta", testingpkg.AllocationFixture{AssetID: asset, Percentage: "100"})
	idle := testingpkg.SeedStrategy(t, db, "Aardvark", testingpkg.AllocationFixture{AssetID: asset, Percentage: "100"})

	winner := testingpkg.SeedPortfolio(t, db, 1, "1100")
	loser := testingpkg.SeedPortfolio(t, db, 2, "950")
	seedSnapshot(t, db, winner, "1000")
	seedSnapshot(t, db, loser, "1000")

	testingpkg.SeedPortfolioStrategy(t, db, winner, alpha, nil, "100")
	testingpkg.SeedPortfolioStrategy(t, db, loser, alpha, nil, "100")
	testingpkg.SeedPortfolioStrategy(t, db, winner, beta, nil, "100")

	board := newLeaderboard(db)

	t.Run("strategies", func(t *testing.T) {
		rankings, err := board.Strategies()
		require.NoError(t, err)
		require.Len(t, rankings, 3)

		assert.Equal(t, beta, rankings[0].StrategyID)
		assert.True(t, rankings[0].AverageReturn.Equal(decimal.NewFromInt(10)), "got %s", rankings[0].AverageReturn)

		assert.Equal(t, alpha, rankings[1].StrategyID)
		assert.Equal(t, 2, rankings[1].Portfolios)
		assert.True(t, rankings[1].AverageReturn.Equal(decimal.RequireFromString("2.5")), "got %s", rankings[1].AverageReturn)

		assert.Equal(t, idle, rankings[2].StrategyID, "unused strategies rank last")
		assert.Zero(t, rankings[2].Portfolios)
	})

	t.Run("leaders", func(t *testing.T) {
		first := testingpkg.SeedPortfolio(t, db, 3, "0")
		second := testingpkg.SeedPortfolio(t, db, 4, "0")
		testingpkg.SeedCopyRelationship(t, db, first, loser, "500")
		testingpkg.SeedCopyRelationship(t, db, second, loser, "500")
		testingpkg.SeedCopyRelationship(t, db, second, winner, "500")

		rankings, err := board.Leaders()
		require.NoError(t, err)
		require.Len(t, rankings, 2)

		assert.Equal(t, winner, rankings[0].PortfolioID)
		assert.Equal(t, 1, rankings[0].Followers)
		assert.True(t, rankings[0].ReturnPercentage.Equal(decimal.NewFromInt(10)))

		assert.Equal(t, loser, rankings[1].PortfolioID)
		assert.Equal(t, 2, rankings[1].Followers)
		assert.True(t, rankings[1].ReturnPercentage.Equal(decimal.NewFromInt(-5)))
	})
}
