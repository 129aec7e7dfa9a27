package rebalancing

import (
	"fmt"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// LogStatus is the outcome of a rebalance run
type LogStatus string

const (
	LogCompleted LogStatus = "COMPLETED"
	LogSkipped   LogStatus = "SKIPPED"
)

// RebalanceLog records one rebalance run of a portfolio
type RebalanceLog struct {
	ID                  int64           `json:"id"`
	PortfolioID         int64           `json:"portfolio_id"`
	PortfolioStrategyID *int64          `json:"portfolio_strategy_id,omitempty"`
	Status              LogStatus       `json:"status"`
	TradesCount         int             `json:"trades_count"`
	TotalValue          decimal.Decimal `json:"total_value"`
	Note                string          `json:"note"`
	CreatedAt           time.Time       `json:"created_at"`
}

// LogRepository handles rebalance log persistence
type LogRepository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewLogRepository creates a new rebalance log repository
func NewLogRepository(db database.Querier, log zerolog.Logger) *LogRepository {
	return &LogRepository{
		db:  db,
		log: log.With().Str("repo", "rebalance_logs").Logger(),
	}
}

// WithTx returns a repository bound to the given transaction
func (r *LogRepository) WithTx(q database.Querier) *LogRepository {
	return &LogRepository{db: q, log: r.log}
}

// Create inserts a rebalance log row
func (r *LogRepository) Create(entry *RebalanceLog) error {
	now := time.Now().Unix()
	var psID interface{}
	if entry.PortfolioStrategyID != nil {
		psID = *entry.PortfolioStrategyID
	}

	result, err := r.db.Exec(`
		INSERT INTO rebalance_logs (portfolio_id, portfolio_strategy_id, status, trades_count, total_value, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.PortfolioID, psID, string(entry.Status), entry.TradesCount, entry.TotalValue.String(), entry.Note, now)
	if err != nil {
		return fmt.Errorf("failed to insert rebalance log: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read rebalance log id: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = time.Unix(now, 0).UTC()
	return nil
}

// ListByPortfolio returns a portfolio's rebalance runs, newest first
func (r *LogRepository) ListByPortfolio(portfolioID int64, limit int) ([]RebalanceLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`
		SELECT id, portfolio_id, portfolio_strategy_id, status, trades_count, total_value, note, created_at
		FROM rebalance_logs WHERE portfolio_id = ? ORDER BY id DESC LIMIT ?
	`, portfolioID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rebalance logs: %w", err)
	}
	defer rows.Close()

	var logs []RebalanceLog
	for rows.Next() {
		var (
			entry     RebalanceLog
			psID      *int64
			status    string
			createdAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.PortfolioID, &psID, &status, &entry.TradesCount,
			&entry.TotalValue, &entry.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan rebalance log: %w", err)
		}
		entry.PortfolioStrategyID = psID
		entry.Status = LogStatus(status)
		entry.CreatedAt = time.Unix(createdAt, 0).UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rebalance logs: %w", err)
	}
	return logs, nil
}
