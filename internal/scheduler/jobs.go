package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/modules/dividends"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/rebalancing"
	"github.com/bensonidabosa/stonecrestcapital/internal/reliability"
	"github.com/bensonidabosa/stonecrestcapital/internal/utils"
	"github.com/rs/zerolog"
)

// Rebalancer rebalances every self-directed portfolio
type Rebalancer interface {
	RebalanceAll() (*rebalancing.BatchSummary, error)
}

// DividendPayer pays dividends on income-producing holdings
type DividendPayer interface {
	PayREITDividends() (*dividends.PayoutSummary, error)
}

// Snapshotter records end-of-day portfolio values
type Snapshotter interface {
	TakeDailySnapshots() (int, error)
}

// BackupRunner produces one database backup
type BackupRunner interface {
	Run(ctx context.Context) (*reliability.BackupResult, error)
}

// RebalanceJob rebalances all portfolios toward their strategy weights
type RebalanceJob struct {
	rebalancer Rebalancer
	log        zerolog.Logger
}

// NewRebalanceJob creates the nightly rebalance job
func NewRebalanceJob(rebalancer Rebalancer, log zerolog.Logger) *RebalanceJob {
	return &RebalanceJob{
		rebalancer: rebalancer,
		log:        log.With().Str("job", "rebalance_all").Logger(),
	}
}

// Name returns the job name
func (j *RebalanceJob) Name() string {
	return "rebalance_all"
}

// Run executes the rebalance pass. Individual portfolio failures are
// counted in the summary; only a failure to start the pass is an error.
func (j *RebalanceJob) Run() error {
	defer utils.OperationTimer("rebalance_all", j.log)()

	summary, err := j.rebalancer.RebalanceAll()
	if err != nil {
		return fmt.Errorf("rebalance pass failed: %w", err)
	}

	event := j.log.Info()
	if summary.Failed > 0 {
		event = j.log.Warn()
	}
	event.
		Int("portfolios", summary.Portfolios).
		Int("completed", summary.Completed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("trades", summary.Trades).
		Msg("Rebalance pass finished")
	return nil
}

// DividendJob pays the monthly REIT dividend
type DividendJob struct {
	payer DividendPayer
	log   zerolog.Logger
}

// NewDividendJob creates the dividend payout job
func NewDividendJob(payer DividendPayer, log zerolog.Logger) *DividendJob {
	return &DividendJob{
		payer: payer,
		log:   log.With().Str("job", "pay_dividends").Logger(),
	}
}

// Name returns the job name
func (j *DividendJob) Name() string {
	return "pay_dividends"
}

// Run pays dividends on every REIT holding
func (j *DividendJob) Run() error {
	defer utils.OperationTimer("pay_dividends", j.log)()

	summary, err := j.payer.PayREITDividends()
	if err != nil {
		return fmt.Errorf("dividend payout failed: %w", err)
	}

	j.log.Info().
		Int("payments", summary.Payments).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Str("total", summary.Total.StringFixed(2)).
		Msg("Dividend payout finished")

	if summary.Failed > 0 {
		return fmt.Errorf("%d dividend payments failed", summary.Failed)
	}
	return nil
}

// SnapshotJob records the daily value of every portfolio
type SnapshotJob struct {
	snapshotter Snapshotter
	log         zerolog.Logger
}

// NewSnapshotJob creates the daily snapshot job
func NewSnapshotJob(snapshotter Snapshotter, log zerolog.Logger) *SnapshotJob {
	return &SnapshotJob{
		snapshotter: snapshotter,
		log:         log.With().Str("job", "daily_snapshots").Logger(),
	}
}

// Name returns the job name
func (j *SnapshotJob) Name() string {
	return "daily_snapshots"
}

// Run takes the snapshots
func (j *SnapshotJob) Run() error {
	defer utils.OperationTimer("daily_snapshots", j.log)()

	taken, err := j.snapshotter.TakeDailySnapshots()
	if err != nil {
		return fmt.Errorf("daily snapshots failed: %w", err)
	}
	j.log.Info().Int("snapshots", taken).Msg("Daily snapshots taken")
	return nil
}

// BackupJob backs up the ledger database
type BackupJob struct {
	backups BackupRunner
	timeout time.Duration
	log     zerolog.Logger
}

// NewBackupJob creates the backup job
func NewBackupJob(backups BackupRunner, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups: backups,
		timeout: 30 * time.Minute,
		log:     log.With().Str("job", "backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run executes one backup with a bounded duration
func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	result, err := j.backups.Run(ctx)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	j.log.Debug().Str("path", result.Path).Bool("uploaded", result.Uploaded).Msg("Backup job done")
	return nil
}
