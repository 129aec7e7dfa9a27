package trading

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// tradeColumns is the list of columns read from trades joined with assets.
// Column order must match scanTrade().
const tradeColumns = `t.id, t.reference, t.portfolio_id, t.asset_id, IFNULL(a.symbol, ''), t.portfolio_strategy_id,
	t.trade_type, IFNULL(t.side, ''), t.quantity, t.price, t.amount, t.note, t.executed_at`

const tradeFrom = ` FROM trades t LEFT JOIN assets a ON a.id = t.asset_id`

// TradeRepository appends to and reads the trade history.
// Trades are never updated or deleted; the schema enforces it.
type TradeRepository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewTradeRepository creates a new trade repository
func NewTradeRepository(db database.Querier, log zerolog.Logger) *TradeRepository {
	return &TradeRepository{
		db:  db,
		log: log.With().Str("repo", "trade").Logger(),
	}
}

// WithTx returns a repository bound to the given transaction
func (r *TradeRepository) WithTx(q database.Querier) *TradeRepository {
	return &TradeRepository{db: q, log: r.log}
}

// Create appends a trade. A reference and execution time are assigned when
// missing.
func (r *TradeRepository) Create(trade *Trade) error {
	if err := trade.Validate(); err != nil {
		return fmt.Errorf("failed to create trade: %w", err)
	}
	if trade.Reference == "" {
		trade.Reference = uuid.NewString()
	}
	if trade.ExecutedAt.IsZero() {
		trade.ExecutedAt = time.Now().UTC()
	}

	var side interface{}
	if trade.Side != "" {
		side = string(trade.Side)
	}

	result, err := r.db.Exec(`
		INSERT INTO trades
		(reference, portfolio_id, asset_id, portfolio_strategy_id, trade_type, side,
		 quantity, price, amount, note, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		trade.Reference,
		trade.PortfolioID,
		nullInt64(trade.AssetID),
		nullInt64(trade.PortfolioStrategyID),
		string(trade.TradeType),
		side,
		trade.Quantity.String(),
		trade.Price.String(),
		trade.Amount.String(),
		trade.Note,
		trade.ExecutedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read trade id: %w", err)
	}
	trade.ID = id

	r.log.Debug().
		Str("reference", trade.Reference).
		Int64("portfolio_id", trade.PortfolioID).
		Str("type", string(trade.TradeType)).
		Str("amount", trade.Amount.String()).
		Msg("Trade recorded")
	return nil
}

// GetByReference returns one trade
func (r *TradeRepository) GetByReference(reference string) (*Trade, error) {
	row := r.db.QueryRow(`SELECT `+tradeColumns+tradeFrom+` WHERE t.reference = ?`, reference)
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trade %s: %w", reference, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trade: %w", err)
	}
	return trade, nil
}

// ListByPortfolio returns a portfolio's trades, newest first
func (r *TradeRepository) ListByPortfolio(portfolioID int64, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.query(`SELECT `+tradeColumns+tradeFrom+`
		WHERE t.portfolio_id = ? ORDER BY t.id DESC LIMIT ?`, portfolioID, limit)
}

// ListByAllocation returns the trades made under one strategy allocation, oldest first
func (r *TradeRepository) ListByAllocation(portfolioStrategyID int64) ([]Trade, error) {
	return r.query(`SELECT `+tradeColumns+tradeFrom+`
		WHERE t.portfolio_strategy_id = ? ORDER BY t.id`, portfolioStrategyID)
}

// CountByType counts a portfolio's trades of one type
func (r *TradeRepository) CountByType(portfolioID int64, tradeType TradeType) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE portfolio_id = ? AND trade_type = ?`,
		portfolioID, string(tradeType)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return n, nil
}

func (r *TradeRepository) query(query string, args ...interface{}) ([]Trade, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, *trade)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*Trade, error) {
	var (
		trade      Trade
		assetID    sql.NullInt64
		psID       sql.NullInt64
		tradeType  string
		side       string
		executedAt int64
	)
	err := row.Scan(
		&trade.ID,
		&trade.Reference,
		&trade.PortfolioID,
		&assetID,
		&trade.Symbol,
		&psID,
		&tradeType,
		&side,
		&trade.Quantity,
		&trade.Price,
		&trade.Amount,
		&trade.Note,
		&executedAt,
	)
	if err != nil {
		return nil, err
	}

	if assetID.Valid {
		trade.AssetID = &assetID.Int64
	}
	if psID.Valid {
		trade.PortfolioStrategyID = &psID.Int64
	}
	trade.TradeType = TradeType(tradeType)
	trade.Side = Side(side)
	trade.ExecutedAt = time.Unix(executedAt, 0).UTC()
	return &trade, nil
}

func nullInt64(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
