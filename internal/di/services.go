// Package di provides dependency injection for service implementations.
package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/bensonidabosa/stonecrestcapital/internal/config"
	"github.com/bensonidabosa/stonecrestcapital/internal/events"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/cash_flows"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/dividends"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/rebalancing"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/trading"
	"github.com/bensonidabosa/stonecrestcapital/internal/reliability"
	"github.com/bensonidabosa/stonecrestcapital/internal/services"
	"github.com/rs/zerolog"
)

// InitializeServices creates all services and stores them in the container.
// Order matters: the ledger comes before everything that trades through it.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	db := container.LedgerDB.Conn()
	retries := cfg.Ledger.ConflictRetries

	// ==========================================
	// STEP 1: Events
	// ==========================================
	container.EventBus = events.NewBus(log)
	container.EventManager = events.NewManager(container.EventBus, container.EventJournal, log)

	// ==========================================
	// STEP 2: Ledger primitives and valuation
	// ==========================================
	container.Ledger = trading.NewLedger(
		db,
		container.AssetRepo,
		container.PortfolioRepo,
		container.HoldingRepo,
		container.AllocationRepo,
		container.RelationshipRepo,
		container.TradeRepo,
		container.EventManager,
		trading.LedgerOptions{
			StrictCashCheck: cfg.Ledger.StrictCashCheck,
			ConflictRetries: retries,
		},
		log,
	)

	container.PortfolioService = portfolio.NewService(
		container.PortfolioRepo,
		container.HoldingRepo,
		container.SnapshotRepo,
		cfg.Ledger.InitialCash,
		log,
	)

	container.StrategyService = strategies.NewService(db, container.StrategyRepo, log)

	container.CashFlowService = cash_flows.NewService(
		db,
		container.CashFlowRepo,
		container.PortfolioRepo,
		container.EventManager,
		retries,
		log,
	)

	container.DividendService = dividends.NewService(
		db,
		container.AssetRepo,
		container.PortfolioRepo,
		container.HoldingRepo,
		container.DividendRepo,
		container.TradeRepo,
		container.EventManager,
		retries,
		log,
	)

	// ==========================================
	// STEP 3: Strategy engine and copy trading
	// ==========================================
	container.StrategyEngine = services.NewStrategyEngine(
		db,
		container.Ledger,
		container.PortfolioRepo,
		container.HoldingRepo,
		container.PortfolioService,
		container.StrategyRepo,
		container.AllocationRepo,
		container.RelationshipRepo,
		container.EventManager,
		retries,
		log,
	)

	container.CopyPropagator = services.NewCopyPropagator(
		db,
		container.StrategyEngine,
		container.EventManager,
		cfg.Copy.BuyPercent,
		cfg.Copy.MinCash,
		retries,
		log,
	)
	// Leader activations and removals fan out to followers
	container.CopyPropagator.Subscribe(container.EventBus)

	container.Leaderboard = services.NewLeaderboardService(
		container.StrategyRepo,
		container.AllocationRepo,
		container.RelationshipRepo,
		container.PortfolioService,
		log,
	)

	container.RebalancingService = rebalancing.NewService(
		db,
		container.Ledger,
		container.PortfolioRepo,
		container.PortfolioService,
		container.HoldingRepo,
		container.StrategyRepo,
		container.AllocationRepo,
		container.RelationshipRepo,
		container.RebalanceLogRepo,
		container.EventManager,
		cfg.Ledger.DriftBand,
		retries,
		log,
	)

	// ==========================================
	// STEP 4: Reliability
	// ==========================================
	var store reliability.ObjectStore
	if cfg.Backup.Enabled() {
		s3Store, err := reliability.NewS3Store(ctx, reliability.S3Config{
			Endpoint:  cfg.Backup.Endpoint,
			Bucket:    cfg.Backup.Bucket,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
			Region:    cfg.Backup.Region,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize backup store: %w", err)
		}
		store = s3Store
	} else {
		log.Info().Msg("Off-site backup not configured, keeping backups local")
	}

	container.BackupService = reliability.NewBackupService(
		db,
		filepath.Join(cfg.DataDir, "backups"),
		store,
		cfg.Backup.RetentionDays,
		container.EventManager,
		log,
	)

	log.Info().Msg("Services initialized")
	return nil
}
