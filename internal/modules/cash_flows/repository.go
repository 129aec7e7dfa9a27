package cash_flows

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const cashFlowColumns = `id, portfolio_id, flow_type, amount, status, balance_after, created_at`

// Repository handles cash flow persistence
type Repository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewRepository creates a new cash flow repository
func NewRepository(db database.Querier, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "cash_flows").Logger(),
	}
}

// WithTx returns a repository bound to the given transaction
func (r *Repository) WithTx(q database.Querier) *Repository {
	return &Repository{db: q, log: r.log}
}

// Create inserts a cash flow
func (r *Repository) Create(flow *CashFlow) error {
	now := time.Now().Unix()
	result, err := r.db.Exec(`
		INSERT INTO cash_flows (portfolio_id, flow_type, amount, status, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, flow.PortfolioID, string(flow.FlowType), flow.Amount.String(), string(flow.Status), flow.BalanceAfter.String(), now)
	if err != nil {
		return fmt.Errorf("failed to insert cash flow: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read cash flow id: %w", err)
	}
	flow.ID = id
	flow.CreatedAt = time.Unix(now, 0).UTC()
	return nil
}

// GetByID returns one cash flow
func (r *Repository) GetByID(id int64) (*CashFlow, error) {
	row := r.db.QueryRow(`SELECT `+cashFlowColumns+` FROM cash_flows WHERE id = ?`, id)
	flow, err := scanCashFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("cash flow %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cash flow: %w", err)
	}
	return flow, nil
}

// ListByPortfolio returns a portfolio's cash flows, newest first
func (r *Repository) ListByPortfolio(portfolioID int64) ([]CashFlow, error) {
	rows, err := r.db.Query(`SELECT `+cashFlowColumns+` FROM cash_flows WHERE portfolio_id = ? ORDER BY id DESC`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cash flows: %w", err)
	}
	defer rows.Close()

	var flows []CashFlow
	for rows.Next() {
		flow, err := scanCashFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cash flow: %w", err)
		}
		flows = append(flows, *flow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cash flows: %w", err)
	}
	return flows, nil
}

// GetTotalsByType sums a portfolio's cash flows per type
func (r *Repository) GetTotalsByType(portfolioID int64) (map[FlowType]decimal.Decimal, error) {
	flows, err := r.ListByPortfolio(portfolioID)
	if err != nil {
		return nil, err
	}

	totals := map[FlowType]decimal.Decimal{
		FlowDeposit:    decimal.Zero,
		FlowWithdrawal: decimal.Zero,
	}
	for _, flow := range flows {
		totals[flow.FlowType] = totals[flow.FlowType].Add(flow.Amount)
	}
	return totals, nil
}

// MarkCompleted moves a PENDING flow to COMPLETED
func (r *Repository) MarkCompleted(id int64) error {
	result, err := r.db.Exec(`UPDATE cash_flows SET status = 'COMPLETED' WHERE id = ? AND status = 'PENDING'`, id)
	if err != nil {
		return fmt.Errorf("failed to complete cash flow %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("pending cash flow %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCashFlow(row rowScanner) (*CashFlow, error) {
	var (
		flow      CashFlow
		flowType  string
		status    string
		createdAt int64
	)
	if err := row.Scan(&flow.ID, &flow.PortfolioID, &flowType, &flow.Amount, &status, &flow.BalanceAfter, &createdAt); err != nil {
		return nil, err
	}
	flow.FlowType = FlowType(flowType)
	flow.Status = Status(status)
	flow.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &flow, nil
}
