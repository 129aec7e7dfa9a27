package strategies

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

const portfolioStrategyColumns = `id, portfolio_id, strategy_id, copy_relationship_id, allocated_cash, remaining_cash, status, version, created_at, updated_at`

// PortfolioStrategyRepository handles strategy activations on portfolios
type PortfolioStrategyRepository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewPortfolioStrategyRepository creates a new portfolio strategy repository
func NewPortfolioStrategyRepository(db database.Querier, log zerolog.Logger) *PortfolioStrategyRepository {
	return &PortfolioStrategyRepository{
		db:  db,
		log: log.With().Str("repo", "portfolio_strategies").Logger(),
	}
}

// WithTx returns a repository bound to the given transaction
func (r *PortfolioStrategyRepository) WithTx(q database.Querier) *PortfolioStrategyRepository {
	return &PortfolioStrategyRepository{db: q, log: r.log}
}

// Create inserts an ACTIVE allocation with remaining = allocated
func (r *PortfolioStrategyRepository) Create(ps *PortfolioStrategy) error {
	if ps.AllocatedCash.IsNegative() {
		return fmt.Errorf("%w: allocated cash must not be negative", domain.ErrValidation)
	}

	now := time.Now().Unix()
	result, err := r.db.Exec(`
		INSERT INTO portfolio_strategies (portfolio_id, strategy_id, copy_relationship_id, allocated_cash, remaining_cash, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'ACTIVE', 0, ?, ?)
	`, ps.PortfolioID, ps.StrategyID, nullInt64(ps.CopyRelationshipID), ps.AllocatedCash.String(), ps.AllocatedCash.String(), now, now)
	if err != nil {
		return fmt.Errorf("failed to create portfolio strategy: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read portfolio strategy id: %w", err)
	}
	ps.ID = id
	ps.RemainingCash = ps.AllocatedCash
	ps.Status = StatusActive
	ps.Version = 0
	ps.CreatedAt = time.Unix(now, 0).UTC()
	ps.UpdatedAt = ps.CreatedAt
	return nil
}

// GetOrCreateCopy returns the follower's copy of a leader strategy under a
// relationship, creating it with the given cash if it does not exist yet.
// The second result reports whether the row was created by this call.
func (r *PortfolioStrategyRepository) GetOrCreateCopy(portfolioID, strategyID, copyRelationshipID int64, cash decimal.Decimal) (*PortfolioStrategy, bool, error) {
	now := time.Now().Unix()
	result, err := r.db.Exec(`
		INSERT INTO portfolio_strategies (portfolio_id, strategy_id, copy_relationship_id, allocated_cash, remaining_cash, status, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 'ACTIVE', 0, ?, ?)
		ON CONFLICT DO NOTHING
	`, portfolioID, strategyID, copyRelationshipID, cash.String(), cash.String(), now, now)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create copied strategy: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	ps, err := scanPortfolioStrategy(r.db.QueryRow(`
		SELECT `+portfolioStrategyColumns+` FROM portfolio_strategies
		WHERE copy_relationship_id = ? AND strategy_id = ?
	`, copyRelationshipID, strategyID))
	if err != nil {
		return nil, false, fmt.Errorf("failed to load copied strategy: %w", err)
	}
	return ps, n == 1, nil
}

// GetByID retrieves a portfolio strategy by ID
func (r *PortfolioStrategyRepository) GetByID(id int64) (*PortfolioStrategy, error) {
	ps, err := scanPortfolioStrategy(r.db.QueryRow("SELECT "+portfolioStrategyColumns+" FROM portfolio_strategies WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("portfolio strategy %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio strategy %d: %w", id, err)
	}
	return ps, nil
}

// ListByPortfolio returns every allocation of a portfolio
func (r *PortfolioStrategyRepository) ListByPortfolio(portfolioID int64) ([]PortfolioStrategy, error) {
	return r.query(`SELECT `+portfolioStrategyColumns+` FROM portfolio_strategies WHERE portfolio_id = ? ORDER BY id`, portfolioID)
}

// ListActiveByPortfolio returns the ACTIVE allocations of a portfolio, copies included
func (r *PortfolioStrategyRepository) ListActiveByPortfolio(portfolioID int64) ([]PortfolioStrategy, error) {
	return r.query(`SELECT `+portfolioStrategyColumns+` FROM portfolio_strategies
		WHERE portfolio_id = ? AND status = 'ACTIVE' ORDER BY id`, portfolioID)
}

// ListActiveSelfDirected returns the ACTIVE allocations that are not copies
func (r *PortfolioStrategyRepository) ListActiveSelfDirected(portfolioID int64) ([]PortfolioStrategy, error) {
	return r.query(`SELECT `+portfolioStrategyColumns+` FROM portfolio_strategies
		WHERE portfolio_id = ? AND status = 'ACTIVE' AND copy_relationship_id IS NULL ORDER BY id`, portfolioID)
}

// ListByCopyRelationship returns every allocation copied under a relationship
func (r *PortfolioStrategyRepository) ListByCopyRelationship(copyRelationshipID int64) ([]PortfolioStrategy, error) {
	return r.query(`SELECT `+portfolioStrategyColumns+` FROM portfolio_strategies
		WHERE copy_relationship_id = ? ORDER BY id`, copyRelationshipID)
}

// FindCopy returns the allocation copied from a leader strategy under a relationship, or nil
func (r *PortfolioStrategyRepository) FindCopy(copyRelationshipID, strategyID int64) (*PortfolioStrategy, error) {
	ps, err := scanPortfolioStrategy(r.db.QueryRow(`
		SELECT `+portfolioStrategyColumns+` FROM portfolio_strategies
		WHERE copy_relationship_id = ? AND strategy_id = ?
	`, copyRelationshipID, strategyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find copied strategy: %w", err)
	}
	return ps, nil
}

// FindActiveSelfDirected returns the portfolio's ACTIVE non-copy activation of a strategy, or nil
func (r *PortfolioStrategyRepository) FindActiveSelfDirected(portfolioID, strategyID int64) (*PortfolioStrategy, error) {
	ps, err := scanPortfolioStrategy(r.db.QueryRow(`
		SELECT `+portfolioStrategyColumns+` FROM portfolio_strategies
		WHERE portfolio_id = ? AND strategy_id = ? AND status = 'ACTIVE' AND copy_relationship_id IS NULL
		ORDER BY id LIMIT 1
	`, portfolioID, strategyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active strategy: %w", err)
	}
	return ps, nil
}

// ListActiveByStrategy returns every ACTIVE activation of a strategy across portfolios
func (r *PortfolioStrategyRepository) ListActiveByStrategy(strategyID int64) ([]PortfolioStrategy, error) {
	return r.query(`SELECT `+portfolioStrategyColumns+` FROM portfolio_strategies
		WHERE strategy_id = ? AND status = 'ACTIVE' ORDER BY portfolio_id`, strategyID)
}

// UpdateRemaining writes a new remaining_cash for ps under optimistic
// concurrency and updates ps in place. A negative balance is rejected.
func (r *PortfolioStrategyRepository) UpdateRemaining(ps *PortfolioStrategy, remaining decimal.Decimal) error {
	if remaining.IsNegative() {
		return fmt.Errorf("portfolio strategy %d remaining would be %s: %w", ps.ID, remaining, domain.ErrInsufficientFunds)
	}
	return r.update(ps, remaining, ps.Status)
}

// Stop zeroes the allocation's remaining cash and marks it STOPPED
func (r *PortfolioStrategyRepository) Stop(ps *PortfolioStrategy) error {
	return r.update(ps, decimal.Zero, StatusStopped)
}

// Delete removes an allocation row
func (r *PortfolioStrategyRepository) Delete(id int64) error {
	if _, err := r.db.Exec("DELETE FROM portfolio_strategies WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete portfolio strategy %d: %w", id, err)
	}
	return nil
}

func (r *PortfolioStrategyRepository) update(ps *PortfolioStrategy, remaining decimal.Decimal, status Status) error {
	now := time.Now().Unix()
	result, err := r.db.Exec(`
		UPDATE portfolio_strategies SET remaining_cash = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, remaining.String(), string(status), now, ps.ID, ps.Version)
	if err != nil {
		return fmt.Errorf("failed to update portfolio strategy %d: %w", ps.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("portfolio strategy %d: %w", ps.ID, domain.ErrConcurrentUpdate)
	}

	ps.RemainingCash = remaining
	ps.Status = status
	ps.Version++
	ps.UpdatedAt = time.Unix(now, 0).UTC()
	return nil
}

func (r *PortfolioStrategyRepository) query(query string, args ...interface{}) ([]PortfolioStrategy, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query portfolio strategies: %w", err)
	}
	defer rows.Close()

	var result []PortfolioStrategy
	for rows.Next() {
		ps, err := scanPortfolioStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio strategy: %w", err)
		}
		result = append(result, *ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolio strategies: %w", err)
	}
	return result, nil
}

func scanPortfolioStrategy(row rowScanner) (*PortfolioStrategy, error) {
	var (
		ps        PortfolioStrategy
		relID     sql.NullInt64
		status    string
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&ps.ID, &ps.PortfolioID, &ps.StrategyID, &relID, &ps.AllocatedCash, &ps.RemainingCash,
		&status, &ps.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if relID.Valid {
		id := relID.Int64
		ps.CopyRelationshipID = &id
	}
	ps.Status = Status(status)
	ps.CreatedAt = time.Unix(createdAt, 0).UTC()
	ps.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &ps, nil
}

func nullInt64(id *int64) interface{} {
	if id == nil {
		return nil
	}
	return *id
}
