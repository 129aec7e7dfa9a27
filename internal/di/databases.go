// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/bensonidabosa/stonecrestcapital/internal/config"
	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the ledger database and applies its schema
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// Every cash and lot mutation lives here, so it gets the ledger profile
	ledgerDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileLedger,
		Name:    "ledger",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
	}

	if err := ledgerDB.Migrate(); err != nil {
		ledgerDB.Close()
		return nil, fmt.Errorf("failed to migrate ledger database: %w", err)
	}
	container.LedgerDB = ledgerDB

	log.Info().Str("path", ledgerDB.Path()).Msg("Ledger database initialized")

	return container, nil
}
