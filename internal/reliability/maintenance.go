package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
)

// Disk space thresholds for the data directory
const (
	DefaultMinFreeBytes  uint64 = 500 * 1024 * 1024      // Below this maintenance fails
	DefaultWarnFreeBytes uint64 = 5 * 1024 * 1024 * 1024 // Below this maintenance warns
)

// MaintenanceJob keeps the ledger database healthy: integrity, WAL size and disk space
type MaintenanceJob struct {
	db            *database.DB
	dataDir       string
	minFreeBytes  uint64
	warnFreeBytes uint64
	log           zerolog.Logger
}

// NewMaintenanceJob creates the database maintenance job
func NewMaintenanceJob(db *database.DB, dataDir string, minFreeBytes uint64, log zerolog.Logger) *MaintenanceJob {
	warn := DefaultWarnFreeBytes
	if minFreeBytes > warn {
		warn = minFreeBytes
	}
	return &MaintenanceJob{
		db:            db,
		dataDir:       dataDir,
		minFreeBytes:  minFreeBytes,
		warnFreeBytes: warn,
		log:           log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance pass
func (j *MaintenanceJob) Run() error {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("ledger health check failed: %w", err)
	}

	if err := j.db.WALCheckpoint("TRUNCATE"); err != nil {
		// Busy readers block TRUNCATE; the next pass retries
		j.log.Warn().Err(err).Msg("WAL checkpoint failed")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	if stats, err := j.db.GetStats(); err == nil {
		j.log.Info().
			Float64("size_mb", float64(stats.SizeBytes)/1024/1024).
			Float64("wal_mb", float64(stats.WALSizeBytes)/1024/1024).
			Int64("pages", stats.PageCount).
			Msg("Ledger database size")
	}

	j.log.Info().Dur("duration", time.Since(start)).Msg("Maintenance completed")
	return nil
}

func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read disk usage: %w", err)
	}

	freeGB := float64(usage.Free) / 1024 / 1024 / 1024
	switch {
	case usage.Free < j.minFreeBytes:
		j.log.Error().Float64("free_gb", freeGB).Msg("Disk space critically low")
		return fmt.Errorf("disk space critically low: %.2f GB free", freeGB)
	case usage.Free < j.warnFreeBytes:
		j.log.Warn().Float64("free_gb", freeGB).Float64("used_percent", usage.UsedPercent).Msg("Disk space low")
	default:
		j.log.Debug().Float64("free_gb", freeGB).Msg("Disk space ok")
	}
	return nil
}
