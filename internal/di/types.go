/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to handlers for access to services.
 */
package di

import (
	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/events"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/assets"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/cash_flows"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/copytrading"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/dividends"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/rebalancing"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/trading"
	"github.com/bensonidabosa/stonecrestcapital/internal/reliability"
	"github.com/bensonidabosa/stonecrestcapital/internal/scheduler"
	"github.com/bensonidabosa/stonecrestcapital/internal/services"
)

// Container holds all application dependencies
type Container struct {
	// Database
	LedgerDB *database.DB

	// Events
	EventBus     *events.Bus
	EventJournal *events.Journal
	EventManager *events.Manager

	// Repositories
	AssetRepo        *assets.Repository
	PortfolioRepo    *portfolio.PortfolioRepository
	HoldingRepo      *portfolio.HoldingRepository
	SnapshotRepo     *portfolio.SnapshotRepository
	StrategyRepo     *strategies.StrategyRepository
	AllocationRepo   *strategies.PortfolioStrategyRepository
	RelationshipRepo *copytrading.Repository
	TradeRepo        *trading.TradeRepository
	CashFlowRepo     *cash_flows.Repository
	DividendRepo     *dividends.DividendRepository
	RebalanceLogRepo *rebalancing.LogRepository

	// Services
	Ledger             *trading.Ledger
	PortfolioService   *portfolio.Service
	StrategyService    *strategies.Service
	CashFlowService    *cash_flows.Service
	DividendService    *dividends.Service
	RebalancingService *rebalancing.Service
	StrategyEngine     *services.StrategyEngine
	CopyPropagator     *services.CopyPropagator
	Leaderboard        *services.LeaderboardService
	BackupService      *reliability.BackupService
}

// Close releases the database connection
func (c *Container) Close() error {
	if c.LedgerDB == nil {
		return nil
	}
	return c.LedgerDB.Close()
}

// JobInstances holds the periodic jobs
type JobInstances struct {
	Rebalance   scheduler.Job
	Dividends   scheduler.Job
	Snapshots   scheduler.Job
	Backup      scheduler.Job
	Maintenance scheduler.Job
}

// ByName indexes the jobs by their scheduler name
func (j *JobInstances) ByName() map[string]scheduler.Job {
	jobs := make(map[string]scheduler.Job, 5)
	for _, job := range []scheduler.Job{j.Rebalance, j.Dividends, j.Snapshots, j.Backup, j.Maintenance} {
		if job != nil {
			jobs[job.Name()] = job
		}
	}
	return jobs
}
