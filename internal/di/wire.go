// Package di builds the StoneCrest object graph: ledger database,
// repositories, services, event subscriptions and scheduled jobs.
package di

import (
	"context"
	"fmt"

	"github.com/bensonidabosa/stonecrestcapital/internal/config"
	"github.com/rs/zerolog"
)

// Wire builds a ready container plus the job set.
// The ledger database is migrated before any repository touches it, and the
// copy propagator is subscribed to the bus before the container is returned.
// On failure every resource opened so far is closed.
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *Container, _ *JobInstances, err error) {
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("databases: %w", err)
	}
	defer func() {
		if err != nil {
			container.Close()
		}
	}()

	if err = InitializeRepositories(container, log); err != nil {
		return nil, nil, fmt.Errorf("repositories: %w", err)
	}
	if err = InitializeServices(ctx, container, cfg, log); err != nil {
		return nil, nil, fmt.Errorf("services: %w", err)
	}

	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("jobs: %w", err)
	}

	log.Info().
		Str("database", container.LedgerDB.Path()).
		Int("jobs", len(jobs.ByName())).
		Msg("Container wired")

	return container, jobs, nil
}
