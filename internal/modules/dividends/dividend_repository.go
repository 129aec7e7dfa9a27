// Package dividends pays periodic REIT dividends into free cash and keeps
// the payout log.
package dividends

import (
	"fmt"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// DividendLog records one dividend paid on one holding
type DividendLog struct {
	ID          int64           `json:"id"`
	PortfolioID int64           `json:"portfolio_id"`
	AssetID     int64           `json:"asset_id"`
	Symbol      string          `json:"symbol,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	PeriodYield decimal.Decimal `json:"period_yield"`
	Amount      decimal.Decimal `json:"amount"`
	PaidAt      time.Time       `json:"paid_at"`
}

// DividendRepository handles dividend log persistence
type DividendRepository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewDividendRepository creates a new dividend repository
func NewDividendRepository(db database.Querier, log zerolog.Logger) *DividendRepository {
	return &DividendRepository{
		db:  db,
		log: log.With().Str("repo", "dividends").Logger(),
	}
}

// WithTx returns a repository bound to the given transaction
func (r *DividendRepository) WithTx(q database.Querier) *DividendRepository {
	return &DividendRepository{db: q, log: r.log}
}

// Create inserts a dividend log row
func (r *DividendRepository) Create(entry *DividendLog) error {
	if entry.PaidAt.IsZero() {
		entry.PaidAt = time.Now().UTC()
	}
	result, err := r.db.Exec(`
		INSERT INTO dividend_logs (portfolio_id, asset_id, quantity, price, period_yield, amount, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.PortfolioID, entry.AssetID, entry.Quantity.String(), entry.Price.String(),
		entry.PeriodYield.String(), entry.Amount.String(), entry.PaidAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert dividend log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read dividend log id: %w", err)
	}
	entry.ID = id
	return nil
}

// ListByPortfolio returns a portfolio's dividend history, newest first
func (r *DividendRepository) ListByPortfolio(portfolioID int64) ([]DividendLog, error) {
	rows, err := r.db.Query(`
		SELECT d.id, d.portfolio_id, d.asset_id, a.symbol, d.quantity, d.price, d.period_yield, d.amount, d.paid_at
		FROM dividend_logs d JOIN assets a ON a.id = d.asset_id
		WHERE d.portfolio_id = ?
		ORDER BY d.id DESC
	`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dividend logs: %w", err)
	}
	defer rows.Close()

	var logs []DividendLog
	for rows.Next() {
		var (
			entry  DividendLog
			paidAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.PortfolioID, &entry.AssetID, &entry.Symbol, &entry.Quantity,
			&entry.Price, &entry.PeriodYield, &entry.Amount, &paidAt); err != nil {
			return nil, fmt.Errorf("failed to scan dividend log: %w", err)
		}
		entry.PaidAt = time.Unix(paidAt, 0).UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dividend logs: %w", err)
	}
	return logs, nil
}

// TotalByPortfolio sums the dividends paid to a portfolio
func (r *DividendRepository) TotalByPortfolio(portfolioID int64) (decimal.Decimal, error) {
	logs, err := r.ListByPortfolio(portfolioID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, entry := range logs {
		total = total.Add(entry.Amount)
	}
	return total, nil
}
