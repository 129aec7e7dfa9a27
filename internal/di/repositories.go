// Package di provides dependency injection for repository implementations.
package di

import (
	"fmt"

	"github.com/bensonidabosa/stonecrestcapital/internal/events"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/assets"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/cash_flows"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/copytrading"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/dividends"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/rebalancing"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/trading"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates all repositories and stores them in the container
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}
	if container.LedgerDB == nil {
		return fmt.Errorf("ledger database not initialized")
	}

	db := container.LedgerDB.Conn()

	container.AssetRepo = assets.NewRepository(db, log)
	container.PortfolioRepo = portfolio.NewPortfolioRepository(db, log)
	container.HoldingRepo = portfolio.NewHoldingRepository(db, log)
	container.SnapshotRepo = portfolio.NewSnapshotRepository(db, log)
	container.StrategyRepo = strategies.NewStrategyRepository(db, log)
	container.AllocationRepo = strategies.NewPortfolioStrategyRepository(db, log)
	container.RelationshipRepo = copytrading.NewRepository(db, log)
	container.TradeRepo = trading.NewTradeRepository(db, log)
	container.CashFlowRepo = cash_flows.NewRepository(db, log)
	container.DividendRepo = dividends.NewDividendRepository(db, log)
	container.RebalanceLogRepo = rebalancing.NewLogRepository(db, log)

	// The journal is a repository over event_journal
	container.EventJournal = events.NewJournal(db, log)

	log.Info().Msg("Repositories initialized")
	return nil
}
