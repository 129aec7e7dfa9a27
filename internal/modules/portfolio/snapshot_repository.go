package portfolio

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/rs/zerolog"
)

const snapshotColumns = `id, portfolio_id, total_value, cash_balance, source, snapshot_date, created_at`

// SnapshotRepository handles portfolio snapshot database operations
type SnapshotRepository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(db database.Querier, log zerolog.Logger) *SnapshotRepository {
	return &SnapshotRepository{
		db:  db,
		log: log.With().Str("repo", "snapshots").Logger(),
	}
}

// WithTx returns a repository bound to the given transaction
func (r *SnapshotRepository) WithTx(q database.Querier) *SnapshotRepository {
	return &SnapshotRepository{db: q, log: r.log}
}

// Create inserts a snapshot. DAILY snapshots are unique per portfolio and day;
// a second one for the same day is ignored and Create reports false.
func (r *SnapshotRepository) Create(s *Snapshot) (bool, error) {
	result, err := r.db.Exec(`
		INSERT INTO portfolio_snapshots (portfolio_id, total_value, cash_balance, source, snapshot_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, s.PortfolioID, s.TotalValue.String(), s.CashBalance.String(), string(s.Source), s.SnapshotDate, s.CreatedAt.Unix())
	if err != nil {
		return false, fmt.Errorf("failed to create snapshot for portfolio %d: %w", s.PortfolioID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to read snapshot id: %w", err)
	}
	s.ID = id
	return true, nil
}

// First returns the portfolio's earliest snapshot, or nil if it has none
func (r *SnapshotRepository) First(portfolioID int64) (*Snapshot, error) {
	row := r.db.QueryRow(`
		SELECT `+snapshotColumns+` FROM portfolio_snapshots
		WHERE portfolio_id = ? ORDER BY created_at ASC, id ASC LIMIT 1
	`, portfolioID)

	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get first snapshot: %w", err)
	}
	return s, nil
}

// List returns a portfolio's snapshots oldest first. limit <= 0 returns all.
func (r *SnapshotRepository) List(portfolioID int64, limit int) ([]Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM portfolio_snapshots WHERE portfolio_id = ? ORDER BY created_at ASC, id ASC`
	args := []interface{}{portfolioID}
	if limit > 0 {
		// Most recent `limit` rows, still returned oldest first
		query = `SELECT * FROM (SELECT ` + snapshotColumns + ` FROM portfolio_snapshots WHERE portfolio_id = ?
			ORDER BY created_at DESC, id DESC LIMIT ?) ORDER BY created_at ASC, id ASC`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var result []Snapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return result, nil
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var (
		s         Snapshot
		source    string
		createdAt int64
	)
	if err := row.Scan(&s.ID, &s.PortfolioID, &s.TotalValue, &s.CashBalance, &source, &s.SnapshotDate, &createdAt); err != nil {
		return nil, err
	}
	s.Source = SnapshotSource(source)
	s.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &s, nil
}
