package rebalancing

import (
	"database/sql"
	"fmt"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/internal/events"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/copytrading"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/trading"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Skip notes recorded on SKIPPED runs
const (
	NoteCopyTrading         = "portfolio is copy-trading"
	NoteNoStrategy          = "no active strategy"
	NoteMultipleAllocations = "more than one active strategy allocation"
)

// Result is the outcome of rebalancing one portfolio
type Result struct {
	PortfolioID int64                `json:"portfolio_id"`
	Status      LogStatus            `json:"status"`
	Note        string               `json:"note,omitempty"`
	TotalValue  decimal.Decimal      `json:"total_value"`
	Drifts      []Drift              `json:"drifts"`
	Executions  []*trading.Execution `json:"executions"`

	allocation *strategies.PortfolioStrategy
}

// TradesCount counts the executions that moved money
func (r *Result) TradesCount() int {
	n := 0
	for _, exec := range r.Executions {
		if exec.Executed {
			n++
		}
	}
	return n
}

// BatchSummary reports a RebalanceAll run
type BatchSummary struct {
	Portfolios int `json:"portfolios"`
	Completed  int `json:"completed"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Trades     int `json:"trades"`
}

// Service rebalances self-directed portfolios toward their strategy weights
type Service struct {
	db            *sql.DB
	ledger        *trading.Ledger
	portfolios    *portfolio.PortfolioRepository
	valuation     *portfolio.Service
	holdings      *portfolio.HoldingRepository
	strategies    *strategies.StrategyRepository
	allocations   *strategies.PortfolioStrategyRepository
	relationships *copytrading.Repository
	logs          *LogRepository
	events        *events.Manager
	driftBand     decimal.Decimal
	retries       int
	log           zerolog.Logger
}

// NewService creates a rebalancing service. eventManager may be nil; a
// non-positive driftBand falls back to DefaultDriftBand.
func NewService(
	db *sql.DB,
	ledger *trading.Ledger,
	portfolioRepo *portfolio.PortfolioRepository,
	valuation *portfolio.Service,
	holdingRepo *portfolio.HoldingRepository,
	strategyRepo *strategies.StrategyRepository,
	allocationRepo *strategies.PortfolioStrategyRepository,
	relationshipRepo *copytrading.Repository,
	logRepo *LogRepository,
	eventManager *events.Manager,
	driftBand decimal.Decimal,
	retries int,
	log zerolog.Logger,
) *Service {
	if !driftBand.IsPositive() {
		driftBand = DefaultDriftBand
	}
	return &Service{
		db:            db,
		ledger:        ledger,
		portfolios:    portfolioRepo,
		valuation:     valuation,
		holdings:      holdingRepo,
		strategies:    strategyRepo,
		allocations:   allocationRepo,
		relationships: relationshipRepo,
		logs:          logRepo,
		events:        eventManager,
		driftBand:     driftBand,
		retries:       retries,
		log:           log.With().Str("service", "rebalancing").Logger(),
	}
}

// Logs returns the rebalance log repository
func (s *Service) Logs() *LogRepository {
	return s.logs
}

// Drift computes the current drift of a portfolio without trading
func (s *Service) Drift(portfolioID int64) (*Result, error) {
	var result *Result
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		var err error
		result, err = s.plan(tx, portfolioID)
		return err
	})
	return result, err
}

// RebalancePortfolio closes every drift outside the band with REBALANCE
// trades under the portfolio's single self-directed allocation. Sells run
// before buys so their proceeds refill the allocation. Copy-trading
// portfolios and portfolios with several active allocations are skipped; a
// portfolio without a strategy is a no-op.
func (s *Service) RebalancePortfolio(portfolioID int64) (*Result, error) {
	var result *Result
	err := domain.RetryOnConflict(s.retries, s.log, "rebalance", func() error {
		return database.WithTransaction(s.db, func(tx *sql.Tx) error {
			var err error
			result, err = s.rebalance(tx, portfolioID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	if s.ledger != nil {
		s.ledger.EmitTrades(result.Executions)
	}
	if s.events != nil && result.Note != NoteNoStrategy {
		s.events.Emit("rebalancing", &events.PortfolioRebalancedData{
			PortfolioID: portfolioID,
			Status:      string(result.Status),
			Trades:      result.TradesCount(),
			TotalValue:  result.TotalValue.String(),
		})
	}
	return result, nil
}

// RebalanceAll rebalances every portfolio. One portfolio's failure is logged
// and does not stop the run.
func (s *Service) RebalanceAll() (*BatchSummary, error) {
	list, err := s.portfolios.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}

	summary := &BatchSummary{Portfolios: len(list)}
	for _, p := range list {
		result, err := s.RebalancePortfolio(p.ID)
		if err != nil {
			summary.Failed++
			s.log.Error().Err(err).Int64("portfolio_id", p.ID).Msg("Rebalance failed")
			continue
		}
		if result.Status == LogCompleted {
			summary.Completed++
			summary.Trades += result.TradesCount()
		} else {
			summary.Skipped++
		}
	}

	s.log.Info().
		Int("portfolios", summary.Portfolios).
		Int("completed", summary.Completed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("trades", summary.Trades).
		Msg("Rebalance run finished")
	return summary, nil
}

func (s *Service) rebalance(tx *sql.Tx, portfolioID int64) (*Result, error) {
	result, err := s.plan(tx, portfolioID)
	if err != nil {
		return nil, err
	}

	switch result.Note {
	case NoteNoStrategy:
		return result, nil
	case NoteCopyTrading, NoteMultipleAllocations:
		if result.Note == NoteMultipleAllocations {
			s.log.Warn().Int64("portfolio_id", portfolioID).Msg("Rebalance skipped: several active allocations")
		}
		return result, s.logs.WithTx(tx).Create(&RebalanceLog{
			PortfolioID: portfolioID,
			Status:      LogSkipped,
			TotalValue:  result.TotalValue,
			Note:        result.Note,
		})
	}

	ps := result.allocation

	for _, d := range result.Drifts {
		if d.WithinBand || !d.Difference.IsNegative() {
			continue
		}
		exec, err := s.ledger.ExecuteSell(tx, trading.SellRequest{
			PortfolioID: portfolioID,
			AssetID:     d.AssetID,
			Quantity:    d.Quantity(),
			Allocation:  ps,
			TradeType:   trading.TradeTypeRebalance,
			Note:        fmt.Sprintf("Rebalance SELL to target %s%%", d.TargetPercent),
		})
		if err != nil {
			return nil, err
		}
		result.Executions = append(result.Executions, exec)
	}

	for _, d := range result.Drifts {
		if d.WithinBand || !d.Difference.IsPositive() {
			continue
		}
		exec, err := s.ledger.ExecuteBuy(tx, trading.BuyRequest{
			PortfolioID: portfolioID,
			AssetID:     d.AssetID,
			Quantity:    d.Quantity(),
			Allocation:  ps,
			TradeType:   trading.TradeTypeRebalance,
			Note:        fmt.Sprintf("Rebalance BUY to target %s%%", d.TargetPercent),
		})
		if err != nil {
			if domain.IsLedgerRecoverable(err) {
				s.log.Info().Err(err).Int64("portfolio_id", portfolioID).Str("symbol", d.Symbol).Msg("Rebalance buy skipped")
				continue
			}
			return nil, err
		}
		result.Executions = append(result.Executions, exec)
	}

	result.Status = LogCompleted
	psID := ps.ID
	if err := s.logs.WithTx(tx).Create(&RebalanceLog{
		PortfolioID:         portfolioID,
		PortfolioStrategyID: &psID,
		Status:              LogCompleted,
		TradesCount:         result.TradesCount(),
		TotalValue:          result.TotalValue,
		Note:                fmt.Sprintf("%d drifts outside band", countOutside(result.Drifts)),
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// plan loads the portfolio state and computes drift. Skip conditions are
// reported through Result.Note with Status SKIPPED.
func (s *Service) plan(tx *sql.Tx, portfolioID int64) (*Result, error) {
	result := &Result{PortfolioID: portfolioID, Status: LogSkipped}

	total, err := s.valuation.WithTx(tx).TotalValue(portfolioID)
	if err != nil {
		return nil, err
	}
	result.TotalValue = total

	copying, err := s.relationships.WithTx(tx).IsCopyTrading(portfolioID)
	if err != nil {
		return nil, err
	}
	if copying {
		result.Note = NoteCopyTrading
		return result, nil
	}

	active, err := s.allocations.WithTx(tx).ListActiveSelfDirected(portfolioID)
	if err != nil {
		return nil, err
	}
	switch len(active) {
	case 0:
		result.Note = NoteNoStrategy
		return result, nil
	case 1:
	default:
		result.Note = NoteMultipleAllocations
		return result, nil
	}

	result.allocation = &active[0]
	allocations, err := s.strategies.WithTx(tx).ListAllocations(active[0].StrategyID)
	if err != nil {
		return nil, err
	}
	holdings, err := s.holdings.WithTx(tx).ListHoldings(portfolioID)
	if err != nil {
		return nil, err
	}

	result.Drifts = ComputeDrift(total, allocations, holdings, s.driftBand)
	return result, nil
}

func countOutside(drifts []Drift) int {
	n := 0
	for _, d := range drifts {
		if !d.WithinBand {
			n++
		}
	}
	return n
}
