package di

import (
	"context"
	"testing"

	"github.com/bensonidabosa/stonecrestcapital/internal/config"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/assets"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wireForTest(t *testing.T) (*Container, *JobInstances) {
	t.Helper()
	t.Setenv("STONECREST_DATA_DIR", t.TempDir())

	cfg, err := config.Load()
	require.NoError(t, err)

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() {
		container.Close()
	})
	return container, jobs
}

func TestWire(t *testing.T) {
	container, jobs := wireForTest(t)

	// Verify container is fully populated
	assert.NotNil(t, container.LedgerDB)
	assert.NotNil(t, container.EventManager)
	assert.NotNil(t, container.Ledger)
	assert.NotNil(t, container.StrategyEngine)
	assert.NotNil(t, container.CopyPropagator)
	assert.NotNil(t, container.RebalancingService)
	assert.NotNil(t, container.BackupService)

	byName := jobs.ByName()
	assert.Len(t, byName, 5)
	for _, name := range []string{"rebalance_all", "pay_dividends", "daily_snapshots", "backup", "maintenance"} {
		assert.Contains(t, byName, name)
	}

	entries := ScheduleEntries(jobs, config.ScheduleConfig{Rebalance: "0 2 * * *"})
	require.Len(t, entries, 5)
	assert.Equal(t, "0 2 * * *", entries[0].Schedule)
	assert.Empty(t, entries[1].Schedule)
}

func TestWire_LeaderActivationReachesFollower(t *testing.T) {
	c, _ := wireForTest(t)

	asset := &assets.Asset{Symbol: "AAA", Name: "Alpha Corp", AssetType: assets.AssetTypeStock, Price: decimal.NewFromInt(10)}
	require.NoError(t, c.AssetRepo.Create(asset))

	strategy, err := c.StrategyService.CreateStrategy(
		&strategies.Strategy{Name: "Growth", RiskLevel: strategies.RiskMedium, IsActive: true},
		[]strategies.AllocationInput{{AssetID: asset.ID, Percentage: decimal.NewFromInt(100)}},
	)
	require.NoError(t, err)

	leader, err := c.PortfolioService.CreatePortfolio(1, "leader")
	require.NoError(t, err)
	follower, err := c.PortfolioService.CreatePortfolio(2, "follower")
	require.NoError(t, err)

	_, err = c.CopyPropagator.Follow(follower.ID, leader.ID, decimal.NewFromInt(100000))
	require.NoError(t, err)

	_, err = c.StrategyEngine.ActivateStrategy(leader.ID, strategy.ID, decimal.NewFromInt(10000))
	require.NoError(t, err)

	// The bus subscription wired by InitializeServices created the copy
	copies, err := c.AllocationRepo.ListActiveByPortfolio(follower.ID)
	require.NoError(t, err)
	require.Len(t, copies, 1)
	assert.True(t, copies[0].IsCopy())
	assert.Equal(t, strategy.ID, copies[0].StrategyID)

	recent, err := c.EventJournal.Recent(10, "")
	require.NoError(t, err)
	assert.NotEmpty(t, recent, "emitted events are journaled")
}
