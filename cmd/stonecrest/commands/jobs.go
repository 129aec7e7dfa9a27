package commands

import (
	"fmt"

	"github.com/bensonidabosa/stonecrestcapital/internal/di"
	"github.com/bensonidabosa/stonecrestcapital/internal/scheduler"
	"github.com/spf13/cobra"
)

// Each one-shot command runs one scheduled job immediately and exits
var (
	rebalanceCmd = &cobra.Command{
		Use:   "rebalance",
		Short: "Rebalance every self-directed portfolio now",
		RunE:  runJob(func(j *di.JobInstances) scheduler.Job { return j.Rebalance }),
	}

	dividendsCmd = &cobra.Command{
		Use:   "dividends",
		Short: "Pay REIT dividends now",
		RunE:  runJob(func(j *di.JobInstances) scheduler.Job { return j.Dividends }),
	}

	snapshotCmd = &cobra.Command{
		Use:   "snapshot",
		Short: "Take today's portfolio value snapshots now",
		RunE:  runJob(func(j *di.JobInstances) scheduler.Job { return j.Snapshots }),
	}

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Back up the ledger database now",
		Long: `Snapshot the ledger with VACUUM INTO, verify and compress it, upload it
when BACKUP_S3_* is configured, and rotate archives older than
BACKUP_RETENTION_DAYS (the newest three are always kept).

Example:
  stonecrest backup`,
		RunE: runJob(func(j *di.JobInstances) scheduler.Job { return j.Backup }),
	}
)

func init() {
	rootCmd.AddCommand(rebalanceCmd, dividendsCmd, snapshotCmd, backupCmd)
}

func runJob(pick func(*di.JobInstances) scheduler.Job) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		container, jobs, err := wire(cmd.Context())
		if err != nil {
			return err
		}
		defer container.Close()

		job := pick(jobs)
		if err := scheduler.New(log).RunNow(job); err != nil {
			return fmt.Errorf("%s failed: %w", job.Name(), err)
		}
		return nil
	}
}
