package copytrading

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

const relationshipColumns = `id, follower_id, leader_id, allocated_cash, remaining_cash, is_active, version, created_at, updated_at`

// Repository handles copy relationship database operations
type Repository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewRepository creates a new copy relationship repository
func NewRepository(db database.Querier, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "copy_relationships").Logger(),
	}
}

// WithTx returns a repository bound to the given transaction
func (r *Repository) WithTx(q database.Querier) *Repository {
	return &Repository{db: q, log: r.log}
}

// Create inserts an active relationship with remaining = allocated
func (r *Repository) Create(rel *CopyRelationship) error {
	if rel.FollowerID == rel.LeaderID {
		return domain.ErrSelfFollow
	}

	now := time.Now().Unix()
	result, err := r.db.Exec(`
		INSERT INTO copy_relationships (follower_id, leader_id, allocated_cash, remaining_cash, is_active, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, 0, ?, ?)
	`, rel.FollowerID, rel.LeaderID, rel.AllocatedCash.String(), rel.AllocatedCash.String(), now, now)
	if err != nil {
		return fmt.Errorf("failed to create copy relationship: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read copy relationship id: %w", err)
	}
	rel.ID = id
	rel.RemainingCash = rel.AllocatedCash
	rel.IsActive = true
	rel.Version = 0
	rel.CreatedAt = time.Unix(now, 0).UTC()
	rel.UpdatedAt = rel.CreatedAt
	return nil
}

// GetByID retrieves a relationship by ID
func (r *Repository) GetByID(id int64) (*CopyRelationship, error) {
	rel, err := scanRelationship(r.db.QueryRow("SELECT "+relationshipColumns+" FROM copy_relationships WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("copy relationship %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get copy relationship %d: %w", id, err)
	}
	return rel, nil
}

// Find returns the relationship between follower and leader, or nil
func (r *Repository) Find(followerID, leaderID int64) (*CopyRelationship, error) {
	rel, err := scanRelationship(r.db.QueryRow(`SELECT `+relationshipColumns+` FROM copy_relationships
		WHERE follower_id = ? AND leader_id = ?`, followerID, leaderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find copy relationship: %w", err)
	}
	return rel, nil
}

// ListActiveByLeader returns every active relationship following a leader
func (r *Repository) ListActiveByLeader(leaderID int64) ([]CopyRelationship, error) {
	return r.query(`SELECT `+relationshipColumns+` FROM copy_relationships
		WHERE leader_id = ? AND is_active = 1 ORDER BY id`, leaderID)
}

// ListByFollower returns every relationship of a follower
func (r *Repository) ListByFollower(followerID int64) ([]CopyRelationship, error) {
	return r.query(`SELECT `+relationshipColumns+` FROM copy_relationships
		WHERE follower_id = ? ORDER BY id`, followerID)
}

// IsCopyTrading reports whether the portfolio follows any leader
func (r *Repository) IsCopyTrading(portfolioID int64) (bool, error) {
	var exists int
	err := r.db.QueryRow(`SELECT 1 FROM copy_relationships WHERE follower_id = ? AND is_active = 1 LIMIT 1`, portfolioID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check copy trading for portfolio %d: %w", portfolioID, err)
	}
	return true, nil
}

// UpdateRemaining writes a new remaining_cash under optimistic concurrency
// and updates rel in place. A negative balance is rejected.
func (r *Repository) UpdateRemaining(rel *CopyRelationship, remaining decimal.Decimal) error {
	if remaining.IsNegative() {
		return fmt.Errorf("copy relationship %d remaining would be %s: %w", rel.ID, remaining, domain.ErrInsufficientFunds)
	}

	now := time.Now().Unix()
	result, err := r.db.Exec(`
		UPDATE copy_relationships SET remaining_cash = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, remaining.String(), now, rel.ID, rel.Version)
	if err != nil {
		return fmt.Errorf("failed to update copy relationship %d: %w", rel.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("copy relationship %d: %w", rel.ID, domain.ErrConcurrentUpdate)
	}

	rel.RemainingCash = remaining
	rel.Version++
	rel.UpdatedAt = time.Unix(now, 0).UTC()
	return nil
}

// Delete removes a relationship. Its copied allocations must be deleted first.
func (r *Repository) Delete(id int64) error {
	if _, err := r.db.Exec("DELETE FROM copy_relationships WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete copy relationship %d: %w", id, err)
	}
	return nil
}

// LeaderStats returns every leader with active followers, most followed first
func (r *Repository) LeaderStats() ([]LeaderStats, error) {
	rows, err := r.db.Query(`
		SELECT leader_id, COUNT(*) FROM copy_relationships
		WHERE is_active = 1
		GROUP BY leader_id
		ORDER BY COUNT(*) DESC, leader_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leader stats: %w", err)
	}
	defer rows.Close()

	var result []LeaderStats
	for rows.Next() {
		var s LeaderStats
		if err := rows.Scan(&s.LeaderID, &s.FollowerCount); err != nil {
			return nil, fmt.Errorf("failed to scan leader stats: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *Repository) query(query string, args ...interface{}) ([]CopyRelationship, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query copy relationships: %w", err)
	}
	defer rows.Close()

	var result []CopyRelationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan copy relationship: %w", err)
		}
		result = append(result, *rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating copy relationships: %w", err)
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRelationship(row rowScanner) (*CopyRelationship, error) {
	var (
		rel       CopyRelationship
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&rel.ID, &rel.FollowerID, &rel.LeaderID, &rel.AllocatedCash, &rel.RemainingCash,
		&rel.IsActive, &rel.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rel.CreatedAt = time.Unix(createdAt, 0).UTC()
	rel.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &rel, nil
}
