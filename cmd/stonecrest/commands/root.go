// Package commands implements the stonecrest CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/bensonidabosa/stonecrestcapital/internal/config"
	"github.com/bensonidabosa/stonecrestcapital/internal/di"
	"github.com/bensonidabosa/stonecrestcapital/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	logLevel string
	plainLog bool

	cfg *config.Config
	log zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stonecrest",
	Short: "Stonecrest - simulated investment and copy-trading platform",
	Long: `Stonecrest CLI

Runs the portfolio ledger API and its periodic jobs, or executes a single
job against the ledger database and exits.

Configuration is read from the environment (and .env if present).

Examples:
  stonecrest serve
  stonecrest migrate
  stonecrest rebalance
  stonecrest backup`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		log = logger.New(logger.Config{
			Level:   level,
			Pretty:  !plainLog,
			Service: "stonecrest",
		})
		logger.SetGlobalLogger(log)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error), overrides LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVar(&plainLog, "json-log", false, "emit JSON logs instead of console output")
}

// wire builds the full dependency graph; callers close the container
func wire(ctx context.Context) (*di.Container, *di.JobInstances, error) {
	container, jobs, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wire dependencies: %w", err)
	}
	return container, jobs, nil
}
