package trading

import (
	"database/sql"
	"fmt"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/internal/events"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/assets"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/copytrading"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Reasons an execution was skipped without error
const (
	SkipNotTradable        = "asset not tradable"
	SkipZeroQuantity       = "quantity not positive"
	SkipInsufficientFunds  = "cost exceeds cash ceiling"
	SkipMissingPosition    = "no lot under allocation"
	SkipInactiveAllocation = "allocation not active"
)

// LedgerOptions tunes the ledger primitives
type LedgerOptions struct {
	// StrictCashCheck rejects any buy whose cost exceeds free cash
	StrictCashCheck bool
	// ConflictRetries bounds retries of the standalone Buy/Sell operations
	ConflictRetries int
}

// BuyRequest asks the ledger to exchange cash for quantity.
// A nil Allocation buys into the portfolio's unallocated lot with free cash.
// A non-nil Strict overrides LedgerOptions.StrictCashCheck for this call.
type BuyRequest struct {
	PortfolioID int64
	AssetID     int64
	Quantity    decimal.Decimal
	Allocation  *strategies.PortfolioStrategy
	TradeType   TradeType
	Note        string
	Strict      *bool
}

// SellRequest asks the ledger to exchange lot quantity for cash.
// A nil Allocation sells from the unallocated lot.
type SellRequest struct {
	PortfolioID int64
	AssetID     int64
	Quantity    decimal.Decimal
	Allocation  *strategies.PortfolioStrategy
	TradeType   TradeType
	Note        string
}

// Execution is the outcome of a ledger primitive. When Executed is false,
// Skipped says why and nothing was written.
type Execution struct {
	Executed bool            `json:"executed"`
	Skipped  string          `json:"skipped,omitempty"`
	Quantity decimal.Decimal `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Amount   decimal.Decimal `json:"amount"`
	Trade    *Trade          `json:"trade,omitempty"`
}

// Ledger implements the buy and sell primitives. ExecuteBuy and ExecuteSell
// run inside a caller's transaction; each runs its writes in a savepoint, so a
// failed leg leaves the outer transaction usable.
type Ledger struct {
	db            *sql.DB
	assets        *assets.Repository
	portfolios    *portfolio.PortfolioRepository
	holdings      *portfolio.HoldingRepository
	allocations   *strategies.PortfolioStrategyRepository
	relationships *copytrading.Repository
	trades        *TradeRepository
	events        *events.Manager
	opts          LedgerOptions
	log           zerolog.Logger
}

// NewLedger creates the ledger. eventManager may be nil.
func NewLedger(
	db *sql.DB,
	assetRepo *assets.Repository,
	portfolioRepo *portfolio.PortfolioRepository,
	holdingRepo *portfolio.HoldingRepository,
	allocationRepo *strategies.PortfolioStrategyRepository,
	relationshipRepo *copytrading.Repository,
	tradeRepo *TradeRepository,
	eventManager *events.Manager,
	opts LedgerOptions,
	log zerolog.Logger,
) *Ledger {
	return &Ledger{
		db:            db,
		assets:        assetRepo,
		portfolios:    portfolioRepo,
		holdings:      holdingRepo,
		allocations:   allocationRepo,
		relationships: relationshipRepo,
		trades:        tradeRepo,
		events:        eventManager,
		opts:          opts,
		log:           log.With().Str("service", "ledger").Logger(),
	}
}

// Trades returns the trade repository
func (l *Ledger) Trades() *TradeRepository {
	return l.trades
}

// ExecuteBuy debits the applicable cash pool, grows the lot at a
// volume-weighted average price, resyncs the aggregate holding and appends
// the trade.
//
// With an allocation, only its remaining_cash is debited and the ceiling is
// that remaining_cash, tightened by the copy relationship's remaining_cash for
// copies. Without one, free cash is debited and is the ceiling. Exceeding the
// ceiling is a logged no-op. In strict mode a cost above free cash fails with
// domain.ErrInsufficientFunds.
//
// On success req.Allocation is refreshed in place.
func (l *Ledger) ExecuteBuy(tx *sql.Tx, req BuyRequest) (*Execution, error) {
	if req.TradeType == "" {
		req.TradeType = TradeTypeBuy
	}

	asset, err := l.assets.WithTx(tx).GetByID(req.AssetID)
	if err != nil {
		return nil, err
	}

	quantity := req.Quantity.Truncate(domain.QuantityPlaces)
	if !asset.Tradable() {
		return l.skip(SkipNotTradable, req.PortfolioID, req.Allocation, asset, quantity), nil
	}
	if !quantity.IsPositive() {
		return l.skip(SkipZeroQuantity, req.PortfolioID, req.Allocation, asset, quantity), nil
	}

	cost := domain.Settle(quantity.Mul(asset.Price))
	if !cost.IsPositive() {
		return l.skip(SkipZeroQuantity, req.PortfolioID, req.Allocation, asset, quantity), nil
	}

	portfolios := l.portfolios.WithTx(tx)
	p, err := portfolios.GetByID(req.PortfolioID)
	if err != nil {
		return nil, err
	}

	if l.strict(req.Strict) && cost.GreaterThan(p.CashBalance) {
		return nil, fmt.Errorf("buy %s %s costs %s, free cash %s: %w",
			quantity, asset.Symbol, cost, p.CashBalance, domain.ErrInsufficientFunds)
	}

	var (
		ps      *strategies.PortfolioStrategy
		allocID *int64
		ceiling = p.CashBalance
	)
	if req.Allocation != nil {
		ps, err = l.loadAllocation(tx, p.ID, req.Allocation.ID)
		if err != nil {
			return nil, err
		}
		if !ps.IsActive() {
			return l.skip(SkipInactiveAllocation, p.ID, ps, asset, quantity), nil
		}
		ceiling = ps.RemainingCash
		if ps.IsCopy() {
			rel, err := l.relationships.WithTx(tx).GetByID(*ps.CopyRelationshipID)
			if err != nil {
				return nil, err
			}
			ceiling = domain.MinDecimal(ceiling, rel.RemainingCash)
		}
		allocID = &ps.ID
	}

	if cost.GreaterThan(ceiling) {
		l.log.Warn().
			Int64("portfolio_id", p.ID).
			Interface("allocation_id", allocID).
			Str("symbol", asset.Symbol).
			Str("cost", cost.String()).
			Str("ceiling", ceiling.String()).
			Msg("Buy skipped: insufficient funds")
		return &Execution{Skipped: SkipInsufficientFunds, Quantity: quantity, Price: asset.Price, Amount: cost}, nil
	}

	var trade *Trade
	err = database.WithSavepoint(tx, "ledger_buy", func() error {
		if ps != nil {
			if err := l.allocations.WithTx(tx).UpdateRemaining(ps, ps.RemainingCash.Sub(cost)); err != nil {
				return err
			}
		} else {
			if err := portfolios.UpdateCash(p, p.CashBalance.Sub(cost)); err != nil {
				return err
			}
		}

		holdings := l.holdings.WithTx(tx)
		lot, err := holdings.GetLot(p.ID, allocID, asset.ID)
		if err != nil {
			return err
		}
		if lot == nil {
			lot = &portfolio.StrategyHolding{
				PortfolioID:         p.ID,
				PortfolioStrategyID: allocID,
				AssetID:             asset.ID,
			}
		}
		newQuantity := lot.Quantity.Add(quantity)
		lot.AveragePrice = lot.Quantity.Mul(lot.AveragePrice).Add(cost).Div(newQuantity).Round(domain.PricePlaces)
		lot.Quantity = newQuantity
		if err := holdings.SaveLot(lot); err != nil {
			return err
		}
		if _, err := holdings.SyncHolding(p.ID, asset.ID); err != nil {
			return err
		}

		assetID := asset.ID
		trade = &Trade{
			PortfolioID:         p.ID,
			AssetID:             &assetID,
			Symbol:              asset.Symbol,
			PortfolioStrategyID: allocID,
			TradeType:           req.TradeType,
			Side:                SideBuy,
			Quantity:            quantity,
			Price:               asset.Price,
			Amount:              cost,
			Note:                req.Note,
		}
		return l.trades.WithTx(tx).Create(trade)
	})
	if err != nil {
		return nil, fmt.Errorf("buy %s for portfolio %d: %w", asset.Symbol, p.ID, err)
	}

	if req.Allocation != nil {
		*req.Allocation = *ps
	}
	return &Execution{Executed: true, Quantity: quantity, Price: asset.Price, Amount: cost, Trade: trade}, nil
}

// ExecuteSell reduces the lot by at most its held quantity, credits the
// proceeds to free cash and, with an allocation, to its remaining_cash as
// well, resyncs the aggregate holding and appends the trade. A missing lot is
// a logged no-op.
//
// On success req.Allocation is refreshed in place.
func (l *Ledger) ExecuteSell(tx *sql.Tx, req SellRequest) (*Execution, error) {
	if req.TradeType == "" {
		req.TradeType = TradeTypeSell
	}

	asset, err := l.assets.WithTx(tx).GetByID(req.AssetID)
	if err != nil {
		return nil, err
	}
	if !asset.Tradable() {
		return l.skip(SkipNotTradable, req.PortfolioID, req.Allocation, asset, req.Quantity), nil
	}
	if !req.Quantity.IsPositive() {
		return l.skip(SkipZeroQuantity, req.PortfolioID, req.Allocation, asset, req.Quantity), nil
	}

	var allocID *int64
	if req.Allocation != nil {
		id := req.Allocation.ID
		allocID = &id
	}

	holdings := l.holdings.WithTx(tx)
	lot, err := holdings.GetLot(req.PortfolioID, allocID, asset.ID)
	if err != nil {
		return nil, err
	}
	if lot == nil {
		l.log.Info().
			Int64("portfolio_id", req.PortfolioID).
			Interface("allocation_id", allocID).
			Str("symbol", asset.Symbol).
			Msg("Sell skipped: no position")
		return &Execution{Skipped: SkipMissingPosition, Price: asset.Price}, nil
	}

	quantity := domain.MinDecimal(req.Quantity, lot.Quantity)
	proceeds := domain.Settle(quantity.Mul(asset.Price))

	var (
		trade *Trade
		ps    *strategies.PortfolioStrategy
	)
	err = database.WithSavepoint(tx, "ledger_sell", func() error {
		lot.Quantity = lot.Quantity.Sub(quantity)
		if lot.Quantity.IsPositive() {
			if err := holdings.SaveLot(lot); err != nil {
				return err
			}
		} else {
			if err := holdings.DeleteLot(lot.ID); err != nil {
				return err
			}
		}

		if _, err := l.portfolios.WithTx(tx).AdjustCash(req.PortfolioID, proceeds); err != nil {
			return err
		}

		if allocID != nil {
			var err error
			ps, err = l.loadAllocation(tx, req.PortfolioID, *allocID)
			if err != nil {
				return err
			}
			if err := l.allocations.WithTx(tx).UpdateRemaining(ps, ps.RemainingCash.Add(proceeds)); err != nil {
				return err
			}
		}

		if _, err := holdings.SyncHolding(req.PortfolioID, asset.ID); err != nil {
			return err
		}

		assetID := asset.ID
		trade = &Trade{
			PortfolioID:         req.PortfolioID,
			AssetID:             &assetID,
			Symbol:              asset.Symbol,
			PortfolioStrategyID: allocID,
			TradeType:           req.TradeType,
			Side:                SideSell,
			Quantity:            quantity,
			Price:               asset.Price,
			Amount:              proceeds,
			Note:                req.Note,
		}
		return l.trades.WithTx(tx).Create(trade)
	})
	if err != nil {
		return nil, fmt.Errorf("sell %s for portfolio %d: %w", asset.Symbol, req.PortfolioID, err)
	}

	if ps != nil {
		*req.Allocation = *ps
	}
	return &Execution{Executed: true, Quantity: quantity, Price: asset.Price, Amount: proceeds, Trade: trade}, nil
}

// Buy runs ExecuteBuy in its own transaction, retrying lost races, and emits
// TradeExecuted after commit.
func (l *Ledger) Buy(req BuyRequest) (*Execution, error) {
	var exec *Execution
	err := domain.RetryOnConflict(l.opts.ConflictRetries, l.log, "buy", func() error {
		return database.WithTransaction(l.db, func(tx *sql.Tx) error {
			var err error
			exec, err = l.ExecuteBuy(tx, req)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	l.emitTrade(exec)
	return exec, nil
}

// Sell runs ExecuteSell in its own transaction, retrying lost races, and
// emits TradeExecuted after commit.
func (l *Ledger) Sell(req SellRequest) (*Execution, error) {
	var exec *Execution
	err := domain.RetryOnConflict(l.opts.ConflictRetries, l.log, "sell", func() error {
		return database.WithTransaction(l.db, func(tx *sql.Tx) error {
			var err error
			exec, err = l.ExecuteSell(tx, req)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	l.emitTrade(exec)
	return exec, nil
}

// EmitTrades publishes TradeExecuted for committed executions
func (l *Ledger) EmitTrades(execs []*Execution) {
	for _, exec := range execs {
		l.emitTrade(exec)
	}
}

func (l *Ledger) emitTrade(exec *Execution) {
	if l.events == nil || exec == nil || !exec.Executed || exec.Trade == nil {
		return
	}
	l.events.Emit("trading", &events.TradeExecutedData{
		PortfolioID: exec.Trade.PortfolioID,
		Reference:   exec.Trade.Reference,
		TradeType:   string(exec.Trade.TradeType),
		Symbol:      exec.Trade.Symbol,
		Quantity:    exec.Trade.Quantity.String(),
		Price:       exec.Trade.Price.String(),
		Amount:      exec.Trade.Amount.String(),
	})
}

func (l *Ledger) loadAllocation(tx *sql.Tx, portfolioID, id int64) (*strategies.PortfolioStrategy, error) {
	ps, err := l.allocations.WithTx(tx).GetByID(id)
	if err != nil {
		return nil, err
	}
	if ps.PortfolioID != portfolioID {
		return nil, fmt.Errorf("%w: allocation %d does not belong to portfolio %d", domain.ErrValidation, id, portfolioID)
	}
	return ps, nil
}

func (l *Ledger) strict(override *bool) bool {
	if override != nil {
		return *override
	}
	return l.opts.StrictCashCheck
}

func (l *Ledger) skip(reason string, portfolioID int64, ps *strategies.PortfolioStrategy, asset *assets.Asset, quantity decimal.Decimal) *Execution {
	event := l.log.Info().
		Int64("portfolio_id", portfolioID).
		Str("symbol", asset.Symbol).
		Str("price", asset.Price.String()).
		Str("quantity", quantity.String())
	if ps != nil {
		event = event.Int64("allocation_id", ps.ID)
	}
	event.Msgf("Execution skipped: %s", reason)
	return &Execution{Skipped: reason, Quantity: quantity, Price: asset.Price}
}
