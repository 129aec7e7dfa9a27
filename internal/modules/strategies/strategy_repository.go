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

const strategyColumns = `id, name, description, risk_level, target_return_min, target_return_max, is_active, created_at`

// StrategyRepository handles strategy and target-allocation database operations
type StrategyRepository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewStrategyRepository creates a new strategy repository
func NewStrategyRepository(db database.Querier, log zerolog.Logger) *StrategyRepository {
	return &StrategyRepository{
		db:  db,
		log: log.With().Str("repo", "strategies").Logger(),
	}
}

// WithTx returns a repository bound to the given transaction
func (r *StrategyRepository) WithTx(q database.Querier) *StrategyRepository {
	return &StrategyRepository{db: q, log: r.log}
}

// Create inserts a strategy and sets its ID
func (r *StrategyRepository) Create(s *Strategy) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("failed to create strategy: %w", err)
	}

	now := time.Now().Unix()
	result, err := r.db.Exec(`
		INSERT INTO strategies (name, description, risk_level, target_return_min, target_return_max, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.Name, s.Description, string(s.RiskLevel), s.TargetReturnMin.String(), s.TargetReturnMax.String(), s.IsActive, now)
	if err != nil {
		return fmt.Errorf("failed to create strategy %s: %w", s.Name, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read strategy id: %w", err)
	}
	s.ID = id
	s.CreatedAt = time.Unix(now, 0).UTC()
	return nil
}

// GetByID retrieves a strategy with its allocations
func (r *StrategyRepository) GetByID(id int64) (*Strategy, error) {
	s, err := scanStrategy(r.db.QueryRow("SELECT "+strategyColumns+" FROM strategies WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("strategy %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy %d: %w", id, err)
	}

	s.Allocations, err = r.ListAllocations(id)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// List returns strategies ordered by name, optionally only active ones.
// Allocations are not loaded.
func (r *StrategyRepository) List(activeOnly bool) ([]Strategy, error) {
	query := "SELECT " + strategyColumns + " FROM strategies"
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY name"

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list strategies: %w", err)
	}
	defer rows.Close()

	var result []Strategy
	for rows.Next() {
		s, err := scanStrategy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan strategy: %w", err)
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating strategies: %w", err)
	}
	return result, nil
}

// SetActive toggles whether a strategy may be activated
func (r *StrategyRepository) SetActive(id int64, active bool) error {
	result, err := r.db.Exec("UPDATE strategies SET is_active = ? WHERE id = ?", active, id)
	if err != nil {
		return fmt.Errorf("failed to update strategy %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("strategy %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListAllocations returns a strategy's target weights in configured order,
// joined with each asset's symbol and current price
func (r *StrategyRepository) ListAllocations(strategyID int64) ([]Allocation, error) {
	rows, err := r.db.Query(`
		SELECT sa.id, sa.strategy_id, sa.asset_id, sa.percentage, sa.position, a.symbol, a.price
		FROM strategy_allocations sa JOIN assets a ON a.id = sa.asset_id
		WHERE sa.strategy_id = ?
		ORDER BY sa.position, sa.id
	`, strategyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allocations for strategy %d: %w", strategyID, err)
	}
	defer rows.Close()

	result := []Allocation{}
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.StrategyID, &a.AssetID, &a.Percentage, &a.Position, &a.Symbol, &a.Price); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocations: %w", err)
	}
	return result, nil
}

// SetAllocation adds or replaces the weight of one asset in a strategy.
// The strategy's total weight may not exceed 100%; run inside a transaction
// so the check and the write see the same rows.
func (r *StrategyRepository) SetAllocation(strategyID, assetID int64, percentage decimal.Decimal) (*Allocation, error) {
	if !percentage.IsPositive() || percentage.GreaterThan(domain.Hundred) {
		return nil, fmt.Errorf("%w: percentage must be in (0, 100]", domain.ErrValidation)
	}

	existing, err := r.ListAllocations(strategyID)
	if err != nil {
		return nil, err
	}

	total := percentage
	position := len(existing)
	for _, a := range existing {
		if a.AssetID == assetID {
			position = a.Position
			continue
		}
		total = total.Add(a.Percentage)
	}
	if total.GreaterThan(domain.Hundred) {
		return nil, fmt.Errorf("strategy %d would total %s%%: %w", strategyID, total, domain.ErrAllocationExceeded)
	}

	_, err = r.db.Exec(`
		INSERT INTO strategy_allocations (strategy_id, asset_id, percentage, position) VALUES (?, ?, ?, ?)
		ON CONFLICT(strategy_id, asset_id) DO UPDATE SET percentage = excluded.percentage
	`, strategyID, assetID, percentage.String(), position)
	if err != nil {
		return nil, fmt.Errorf("failed to set allocation: %w", err)
	}

	allocations, err := r.ListAllocations(strategyID)
	if err != nil {
		return nil, err
	}
	for i := range allocations {
		if allocations[i].AssetID == assetID {
			return &allocations[i], nil
		}
	}
	return nil, fmt.Errorf("allocation for asset %d: %w", assetID, domain.ErrNotFound)
}

// DeleteAllocation removes one asset from a strategy
func (r *StrategyRepository) DeleteAllocation(strategyID, assetID int64) error {
	result, err := r.db.Exec("DELETE FROM strategy_allocations WHERE strategy_id = ? AND asset_id = ?", strategyID, assetID)
	if err != nil {
		return fmt.Errorf("failed to delete allocation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("allocation for asset %d: %w", assetID, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanStrategy(row rowScanner) (*Strategy, error) {
	var (
		s         Strategy
		riskLevel string
		createdAt int64
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Description, &riskLevel, &s.TargetReturnMin, &s.TargetReturnMax, &s.IsActive, &createdAt); err != nil {
		return nil, err
	}
	s.RiskLevel = RiskLevel(riskLevel)
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &s, nil
}
