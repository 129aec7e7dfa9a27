package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/di"
	"github.com/bensonidabosa/stonecrestcapital/internal/scheduler"
	"github.com/bensonidabosa/stonecrestcapital/internal/server"
	"github.com/spf13/cobra"
)

var noScheduler bool

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and job scheduler",
	Long: `Start the JSON API and the cron scheduler.

Scheduled jobs (empty schedule disables):
- rebalance_all     SCHEDULE_REBALANCE
- pay_dividends     SCHEDULE_DIVIDENDS
- daily_snapshots   SCHEDULE_SNAPSHOTS
- backup            SCHEDULE_BACKUP
- maintenance       SCHEDULE_MAINTENANCE

Example:
  stonecrest serve
  stonecrest serve --no-scheduler`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "serve the API without running scheduled jobs")
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Info().Msg("Starting Stonecrest")

	container, jobs, err := wire(cmd.Context())
	if err != nil {
		return err
	}
	defer container.Close()

	sched := scheduler.New(log)
	if !noScheduler {
		if err := sched.AddJobs(di.ScheduleEntries(jobs, cfg.Schedules)); err != nil {
			return err
		}
		sched.Start()
	}

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Jobs:      jobs,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		log.Error().Err(err).Msg("HTTP server failed")
		if !noScheduler {
			sched.Stop()
		}
		return err
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight jobs finish before the database closes
	if !noScheduler {
		sched.Stop()
	}

	if err := container.LedgerDB.WALCheckpoint("TRUNCATE"); err != nil {
		log.Warn().Err(err).Msg("Final WAL checkpoint failed")
	}

	log.Info().Msg("Server stopped")
	return nil
}
