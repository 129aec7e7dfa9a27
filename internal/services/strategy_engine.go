// Package services provides core business services shared across multiple modules.
//
// StrategyEngine fans allocation cash out across a strategy's target weights
// and liquidates allocations. CopyPropagator mirrors leader strategies to
// followers on top of the engine. Both drive the trading ledger and commit
// their writes in one transaction per operation.
package services

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

// StrategyRun is the outcome of fanning one cash ceiling across a strategy
type StrategyRun struct {
	PortfolioStrategyID int64                `json:"portfolio_strategy_id"`
	Ceiling             decimal.Decimal      `json:"ceiling"`
	Spent               decimal.Decimal      `json:"spent"`
	Executions          []*trading.Execution `json:"executions"`
}

func (r *StrategyRun) executions() []*trading.Execution {
	if r == nil {
		return nil
	}
	return r.Executions
}

// Activation is the outcome of ActivateStrategy
type Activation struct {
	Allocation *strategies.PortfolioStrategy `json:"allocation"`
	Run        *StrategyRun                  `json:"run"`
}

// Release is one allocation unwound and removed
type Release struct {
	PortfolioStrategyID int64                `json:"portfolio_strategy_id"`
	StrategyID          int64                `json:"strategy_id"`
	Proceeds            decimal.Decimal      `json:"proceeds"`
	Returned            decimal.Decimal      `json:"returned"`
	Executions          []*trading.Execution `json:"executions"`
}

// Liquidation is the outcome of LiquidateStrategy and StopStrategy
type Liquidation struct {
	PortfolioID int64               `json:"portfolio_id"`
	Released    []Release           `json:"released"`
	CashBalance decimal.Decimal     `json:"cash_balance"`
	Snapshot    *portfolio.Snapshot `json:"snapshot"`
}

// Switch is the outcome of SwitchStrategy
type Switch struct {
	Released   []Release                     `json:"released"`
	Sold       []*trading.Execution          `json:"sold"`
	Allocation *strategies.PortfolioStrategy `json:"allocation"`
	Run        *StrategyRun                  `json:"run"`
	TotalValue decimal.Decimal               `json:"total_value"`
	Snapshot   *portfolio.Snapshot           `json:"snapshot"`
	Trade      *trading.Trade                `json:"trade"`
}

// StrategyEngine executes, switches and liquidates strategy allocations
type StrategyEngine struct {
	db            *sql.DB
	ledger        *trading.Ledger
	portfolios    *portfolio.PortfolioRepository
	holdings      *portfolio.HoldingRepository
	valuation     *portfolio.Service
	strategies    *strategies.StrategyRepository
	allocations   *strategies.PortfolioStrategyRepository
	relationships *copytrading.Repository
	events        *events.Manager
	retries       int
	log           zerolog.Logger
}

// NewStrategyEngine creates the strategy engine. eventManager may be nil.
func NewStrategyEngine(
	db *sql.DB,
	ledger *trading.Ledger,
	portfolioRepo *portfolio.PortfolioRepository,
	holdingRepo *portfolio.HoldingRepository,
	valuation *portfolio.Service,
	strategyRepo *strategies.StrategyRepository,
	allocationRepo *strategies.PortfolioStrategyRepository,
	relationshipRepo *copytrading.Repository,
	eventManager *events.Manager,
	retries int,
	log zerolog.Logger,
) *StrategyEngine {
	return &StrategyEngine{
		db:            db,
		ledger:        ledger,
		portfolios:    portfolioRepo,
		holdings:      holdingRepo,
		valuation:     valuation,
		strategies:    strategyRepo,
		allocations:   allocationRepo,
		relationships: relationshipRepo,
		events:        eventManager,
		retries:       retries,
		log:           log.With().Str("service", "strategy_engine").Logger(),
	}
}

// ExecuteStrategy spends up to min(remaining_cash, relationship remaining_cash
// for copies, maxCash) across the strategy's weights. Every target is sized
// from the same ceiling before any buy runs, and one asset's skip never
// blocks the others.
func (e *StrategyEngine) ExecuteStrategy(tx *sql.Tx, ps *strategies.PortfolioStrategy, maxCash *decimal.Decimal) (*StrategyRun, error) {
	ceiling := ps.RemainingCash
	if ps.IsCopy() {
		rel, err := e.relationships.WithTx(tx).GetByID(*ps.CopyRelationshipID)
		if err != nil {
			return nil, err
		}
		ceiling = domain.MinDecimal(ceiling, rel.RemainingCash)
	}
	if maxCash != nil {
		ceiling = domain.MinDecimal(ceiling, *maxCash)
	}
	return e.fanOut(tx, ps, ceiling, domain.QuantityPlaces)
}

// ExecuteCopyStrategy spends a copied allocation's own remaining_cash across
// the leader strategy's weights with copy quantity precision.
func (e *StrategyEngine) ExecuteCopyStrategy(tx *sql.Tx, ps *strategies.PortfolioStrategy) (*StrategyRun, error) {
	return e.fanOut(tx, ps, ps.RemainingCash, domain.CopyQuantityPlaces)
}

func (e *StrategyEngine) fanOut(tx *sql.Tx, ps *strategies.PortfolioStrategy, ceiling decimal.Decimal, places int32) (*StrategyRun, error) {
	run := &StrategyRun{PortfolioStrategyID: ps.ID, Ceiling: ceiling, Spent: decimal.Zero}
	if !ceiling.IsPositive() {
		e.log.Debug().Int64("allocation_id", ps.ID).Msg("Nothing to execute: ceiling not positive")
		return run, nil
	}

	weights, err := e.strategies.WithTx(tx).ListAllocations(ps.StrategyID)
	if err != nil {
		return nil, err
	}

	// The allocation's cash already left free cash, so the strict free-cash
	// check never applies to strategy legs.
	strict := false

	for _, w := range weights {
		if !w.Price.IsPositive() {
			continue
		}
		target := domain.FloorCents(domain.PercentOf(w.Percentage, ceiling))
		quantity := target.Div(w.Price).Truncate(places)

		exec, err := e.ledger.ExecuteBuy(tx, trading.BuyRequest{
			PortfolioID: ps.PortfolioID,
			AssetID:     w.AssetID,
			Quantity:    quantity,
			Allocation:  ps,
			TradeType:   trading.TradeTypeBuy,
			Strict:      &strict,
			Note:        fmt.Sprintf("Strategy buy %s %s%%", w.Symbol, w.Percentage),
		})
		if err != nil {
			if domain.IsLedgerRecoverable(err) {
				e.log.Info().Err(err).Int64("allocation_id", ps.ID).Str("symbol", w.Symbol).Msg("Strategy leg skipped")
				continue
			}
			return nil, err
		}
		if exec.Executed {
			run.Spent = run.Spent.Add(exec.Amount)
		}
		run.Executions = append(run.Executions, exec)
	}

	e.log.Info().
		Int64("portfolio_id", ps.PortfolioID).
		Int64("allocation_id", ps.ID).
		Str("ceiling", ceiling.String()).
		Str("spent", run.Spent.String()).
		Msg("Strategy executed")
	return run, nil
}

// ActivateStrategy commits amount of free cash to a strategy and buys into
// its weights. The portfolio must not be copy-trading or already run the
// strategy.
func (e *StrategyEngine) ActivateStrategy(portfolioID, strategyID int64, amount decimal.Decimal) (*Activation, error) {
	amount = domain.Settle(amount)
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	var result *Activation
	err := domain.RetryOnConflict(e.retries, e.log, "activate_strategy", func() error {
		return database.WithTransaction(e.db, func(tx *sql.Tx) error {
			if err := e.ensureNotCopying(tx, portfolioID); err != nil {
				return err
			}
			if _, err := e.loadActiveStrategy(tx, strategyID); err != nil {
				return err
			}

			existing, err := e.allocations.WithTx(tx).FindActiveSelfDirected(portfolioID, strategyID)
			if err != nil {
				return err
			}
			if existing != nil {
				return fmt.Errorf("strategy %d on portfolio %d: %w", strategyID, portfolioID, domain.ErrStrategyActive)
			}

			p, err := e.portfolios.WithTx(tx).GetByID(portfolioID)
			if err != nil {
				return err
			}
			if amount.GreaterThan(p.CashBalance) {
				return fmt.Errorf("allocating %s with %s free: %w", amount, p.CashBalance, domain.ErrInsufficientFunds)
			}

			ps, err := e.allocate(tx, portfolioID, strategyID, amount)
			if err != nil {
				return err
			}
			run, err := e.ExecuteStrategy(tx, ps, nil)
			if err != nil {
				return err
			}
			result = &Activation{Allocation: ps, Run: run}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	e.ledger.EmitTrades(result.Run.executions())
	e.emitActivated(result.Allocation)
	return result, nil
}

// SwitchStrategy sells everything the portfolio holds, removes its
// allocations and commits all free cash to strategyID. A SWITCH trade records
// the total value at switch time and a baseline snapshot is taken.
func (e *StrategyEngine) SwitchStrategy(portfolioID, strategyID int64) (*Switch, error) {
	var result *Switch
	err := domain.RetryOnConflict(e.retries, e.log, "switch_strategy", func() error {
		return database.WithTransaction(e.db, func(tx *sql.Tx) error {
			if err := e.ensureNotCopying(tx, portfolioID); err != nil {
				return err
			}
			strategy, err := e.loadActiveStrategy(tx, strategyID)
			if err != nil {
				return err
			}

			result = &Switch{}
			current, err := e.allocations.WithTx(tx).ListByPortfolio(portfolioID)
			if err != nil {
				return err
			}
			for i := range current {
				release, err := e.release(tx, &current[i], "Strategy switch")
				if err != nil {
					return err
				}
				result.Released = append(result.Released, *release)
			}

			sold, err := e.sellUnallocated(tx, portfolioID, "Strategy switch")
			if err != nil {
				return err
			}
			result.Sold = sold

			p, err := e.portfolios.WithTx(tx).GetByID(portfolioID)
			if err != nil {
				return err
			}
			if !p.CashBalance.IsPositive() {
				return fmt.Errorf("portfolio %d has no cash to switch: %w", portfolioID, domain.ErrInsufficientFunds)
			}

			ps, err := e.allocate(tx, portfolioID, strategyID, p.CashBalance)
			if err != nil {
				return err
			}
			result.Allocation = ps
			if result.Run, err = e.ExecuteStrategy(tx, ps, nil); err != nil {
				return err
			}

			valuation := e.valuation.WithTx(tx)
			if result.Snapshot, err = valuation.TakeSnapshot(portfolioID, portfolio.SnapshotSwitch); err != nil {
				return err
			}
			if result.TotalValue, err = valuation.TotalValue(portfolioID); err != nil {
				return err
			}

			psID := ps.ID
			result.Trade = &trading.Trade{
				PortfolioID:         portfolioID,
				PortfolioStrategyID: &psID,
				TradeType:           trading.TradeTypeSwitch,
				Quantity:            decimal.Zero,
				Price:               decimal.Zero,
				Amount:              result.TotalValue,
				Note:                fmt.Sprintf("Switched to %s", strategy.Name),
			}
			return e.ledger.Trades().WithTx(tx).Create(result.Trade)
		})
	})
	if err != nil {
		return nil, err
	}

	for _, release := range result.Released {
		e.ledger.EmitTrades(release.Executions)
	}
	e.ledger.EmitTrades(result.Sold)
	e.ledger.EmitTrades(result.Run.executions())
	e.emitRemoved(portfolioID, result.Released)
	e.emitActivated(result.Allocation)
	if e.events != nil {
		e.events.Emit("strategies", &events.StrategySwitchedData{
			PortfolioID:         portfolioID,
			PortfolioStrategyID: result.Allocation.ID,
			StrategyID:          strategyID,
			TotalValue:          result.TotalValue.String(),
		})
	}
	return result, nil
}

// LiquidateStrategy unwinds and deletes one self-directed allocation, or
// every ACTIVE self-directed allocation when allocationID is nil, and closes
// with a snapshot. Copied allocations are torn down by stopping copy trading.
func (e *StrategyEngine) LiquidateStrategy(portfolioID int64, allocationID *int64) (*Liquidation, error) {
	var result *Liquidation
	err := domain.RetryOnConflict(e.retries, e.log, "liquidate_strategy", func() error {
		return database.WithTransaction(e.db, func(tx *sql.Tx) error {
			var err error
			result, err = e.liquidate(tx, portfolioID, allocationID)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	for _, release := range result.Released {
		e.ledger.EmitTrades(release.Executions)
	}
	e.emitRemoved(portfolioID, result.Released)
	if e.events != nil {
		e.events.Emit("strategies", &events.StrategyLiquidatedData{
			PortfolioID: portfolioID,
			Allocations: len(result.Released),
			CashBalance: result.CashBalance.String(),
		})
	}
	return result, nil
}

// StopStrategy liquidates one ACTIVE self-directed allocation
func (e *StrategyEngine) StopStrategy(portfolioID, allocationID int64) (*Liquidation, error) {
	ps, err := e.allocations.GetByID(allocationID)
	if err != nil {
		return nil, err
	}
	if ps.PortfolioID != portfolioID {
		return nil, fmt.Errorf("%w: allocation %d does not belong to portfolio %d", domain.ErrValidation, allocationID, portfolioID)
	}
	if !ps.IsActive() {
		return nil, fmt.Errorf("%w: allocation %d is not active", domain.ErrValidation, allocationID)
	}
	return e.LiquidateStrategy(portfolioID, &allocationID)
}

func (e *StrategyEngine) liquidate(tx *sql.Tx, portfolioID int64, allocationID *int64) (*Liquidation, error) {
	allocations := e.allocations.WithTx(tx)

	var targets []strategies.PortfolioStrategy
	if allocationID != nil {
		ps, err := allocations.GetByID(*allocationID)
		if err != nil {
			return nil, err
		}
		if ps.PortfolioID != portfolioID {
			return nil, fmt.Errorf("%w: allocation %d does not belong to portfolio %d", domain.ErrValidation, ps.ID, portfolioID)
		}
		if ps.IsCopy() {
			return nil, fmt.Errorf("%w: allocation %d is a copy; stop copying instead", domain.ErrValidation, ps.ID)
		}
		targets = append(targets, *ps)
	} else {
		active, err := allocations.ListActiveSelfDirected(portfolioID)
		if err != nil {
			return nil, err
		}
		targets = active
	}

	result := &Liquidation{PortfolioID: portfolioID}
	for i := range targets {
		release, err := e.release(tx, &targets[i], "Strategy liquidation")
		if err != nil {
			return nil, err
		}
		result.Released = append(result.Released, *release)
	}

	snap, err := e.valuation.WithTx(tx).TakeSnapshot(portfolioID, portfolio.SnapshotLiquidation)
	if err != nil {
		return nil, err
	}
	result.Snapshot = snap

	p, err := e.portfolios.WithTx(tx).GetByID(portfolioID)
	if err != nil {
		return nil, err
	}
	result.CashBalance = p.CashBalance
	return result, nil
}

func (e *StrategyEngine) allocate(tx *sql.Tx, portfolioID, strategyID int64, amount decimal.Decimal) (*strategies.PortfolioStrategy, error) {
	if _, err := e.portfolios.WithTx(tx).AdjustCash(portfolioID, amount.Neg()); err != nil {
		return nil, err
	}
	ps := &strategies.PortfolioStrategy{
		PortfolioID:   portfolioID,
		StrategyID:    strategyID,
		AllocatedCash: amount,
	}
	if err := e.allocations.WithTx(tx).Create(ps); err != nil {
		return nil, err
	}
	return ps, nil
}

func (e *StrategyEngine) ensureNotCopying(tx *sql.Tx, portfolioID int64) error {
	copying, err := e.relationships.WithTx(tx).IsCopyTrading(portfolioID)
	if err != nil {
		return err
	}
	if copying {
		return fmt.Errorf("portfolio %d: %w", portfolioID, domain.ErrCopyTradingActive)
	}
	return nil
}

func (e *StrategyEngine) loadActiveStrategy(tx *sql.Tx, strategyID int64) (*strategies.Strategy, error) {
	strategy, err := e.strategies.WithTx(tx).GetByID(strategyID)
	if err != nil {
		return nil, err
	}
	if !strategy.IsActive {
		return nil, fmt.Errorf("%w: strategy %d is not active", domain.ErrValidation, strategyID)
	}
	return strategy, nil
}

func (e *StrategyEngine) emitActivated(ps *strategies.PortfolioStrategy) {
	if e.events == nil || ps == nil {
		return
	}
	e.events.Emit("strategies", &events.StrategyActivatedData{
		PortfolioID:         ps.PortfolioID,
		PortfolioStrategyID: ps.ID,
		StrategyID:          ps.StrategyID,
		AllocatedCash:       ps.AllocatedCash.String(),
	})
}

func (e *StrategyEngine) emitRemoved(portfolioID int64, released []Release) {
	if e.events == nil {
		return
	}
	for _, release := range released {
		e.events.Emit("strategies", &events.StrategyRemovedData{
			PortfolioID:         portfolioID,
			PortfolioStrategyID: release.PortfolioStrategyID,
			StrategyID:          release.StrategyID,
			Proceeds:            release.Proceeds.String(),
		})
	}
}
