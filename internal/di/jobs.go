// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/bensonidabosa/stonecrestcapital/internal/config"
	"github.com/bensonidabosa/stonecrestcapital/internal/reliability"
	"github.com/bensonidabosa/stonecrestcapital/internal/scheduler"
	"github.com/rs/zerolog"
)

// RegisterJobs creates all periodic jobs
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil || container.RebalancingService == nil {
		return nil, fmt.Errorf("services must be initialized before jobs")
	}

	jobs := &JobInstances{
		Rebalance:   scheduler.NewRebalanceJob(container.RebalancingService, log),
		Dividends:   scheduler.NewDividendJob(container.DividendService, log),
		Snapshots:   scheduler.NewSnapshotJob(container.PortfolioService, log),
		Backup:      scheduler.NewBackupJob(container.BackupService, log),
		Maintenance: reliability.NewMaintenanceJob(container.LedgerDB, cfg.DataDir, reliability.DefaultMinFreeBytes, log),
	}

	log.Info().Int("jobs", len(jobs.ByName())).Msg("Jobs created")
	return jobs, nil
}

// ScheduleEntries pairs each job with its configured cron expression
func ScheduleEntries(jobs *JobInstances, schedules config.ScheduleConfig) []scheduler.Entry {
	return []scheduler.Entry{
		{Schedule: schedules.Rebalance, Job: jobs.Rebalance},
		{Schedule: schedules.Dividends, Job: jobs.Dividends},
		{Schedule: schedules.Snapshots, Job: jobs.Snapshots},
		{Schedule: schedules.Backup, Job: jobs.Backup},
		{Schedule: schedules.Maintenance, Job: jobs.Maintenance},
	}
}
