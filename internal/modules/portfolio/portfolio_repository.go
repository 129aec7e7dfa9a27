package portfolio

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

const portfolioColumns = `id, user_id, name, cash_balance, is_kyc_verified, version, created_at, updated_at`

// PortfolioRepository handles portfolio database operations
type PortfolioRepository struct {
	db  database.Querier
	log zerolog.Logger
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db database.Querier, log zerolog.Logger) *PortfolioRepository {
	return &PortfolioRepository{
		db:  db,
		log: log.With().Str("repo", "portfolio").Logger(),
	}
}

// WithTx returns a repository bound to the given transaction
func (r *PortfolioRepository) WithTx(q database.Querier) *PortfolioRepository {
	return &PortfolioRepository{db: q, log: r.log}
}

// Create inserts a portfolio. One portfolio per user.
func (r *PortfolioRepository) Create(p *Portfolio) error {
	if p.CashBalance.IsNegative() {
		return fmt.Errorf("%w: initial cash must not be negative", domain.ErrValidation)
	}

	now := time.Now().Unix()
	result, err := r.db.Exec(`
		INSERT INTO portfolios (user_id, name, cash_balance, is_kyc_verified, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, ?)
	`, p.UserID, p.Name, p.CashBalance.String(), p.IsKYCVerified, now, now)
	if err != nil {
		return fmt.Errorf("failed to create portfolio for user %d: %w", p.UserID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read portfolio id: %w", err)
	}
	p.ID = id
	p.Version = 0
	p.CreatedAt = time.Unix(now, 0).UTC()
	p.UpdatedAt = p.CreatedAt

	r.log.Info().Int64("portfolio_id", id).Int64("user_id", p.UserID).Str("cash", p.CashBalance.String()).Msg("Portfolio created")
	return nil
}

// GetByID retrieves a portfolio by ID
func (r *PortfolioRepository) GetByID(id int64) (*Portfolio, error) {
	p, err := scanPortfolio(r.db.QueryRow("SELECT "+portfolioColumns+" FROM portfolios WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("portfolio %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio %d: %w", id, err)
	}
	return p, nil
}

// GetByUserID retrieves the portfolio owned by a user
func (r *PortfolioRepository) GetByUserID(userID int64) (*Portfolio, error) {
	p, err := scanPortfolio(r.db.QueryRow("SELECT "+portfolioColumns+" FROM portfolios WHERE user_id = ?", userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("portfolio for user %d: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio for user %d: %w", userID, err)
	}
	return p, nil
}

// List returns all portfolios ordered by ID
func (r *PortfolioRepository) List() ([]Portfolio, error) {
	rows, err := r.db.Query("SELECT " + portfolioColumns + " FROM portfolios ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var result []Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating portfolios: %w", err)
	}
	return result, nil
}

// UpdateCash writes a new free balance for p under optimistic concurrency.
// p must carry the version it was read at; on success p is updated in place.
// Returns domain.ErrConcurrentUpdate if the row changed since it was read.
func (r *PortfolioRepository) UpdateCash(p *Portfolio, balance decimal.Decimal) error {
	now := time.Now().Unix()
	result, err := r.db.Exec(`
		UPDATE portfolios SET cash_balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, balance.String(), now, p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("failed to update cash for portfolio %d: %w", p.ID, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("portfolio %d: %w", p.ID, domain.ErrConcurrentUpdate)
	}

	p.CashBalance = balance
	p.Version++
	p.UpdatedAt = time.Unix(now, 0).UTC()
	return nil
}

// AdjustCash reads the portfolio and moves its free balance by delta.
// The balance is allowed to go negative; callers pre-check.
func (r *PortfolioRepository) AdjustCash(id int64, delta decimal.Decimal) (*Portfolio, error) {
	p, err := r.GetByID(id)
	if err != nil {
		return nil, err
	}
	if err := r.UpdateCash(p, p.CashBalance.Add(delta)); err != nil {
		return nil, err
	}
	return p, nil
}

// SetKYCVerified records the external KYC gate's decision
func (r *PortfolioRepository) SetKYCVerified(id int64, verified bool) error {
	result, err := r.db.Exec(`
		UPDATE portfolios SET is_kyc_verified = ?, version = version + 1, updated_at = ? WHERE id = ?
	`, verified, time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to set kyc for portfolio %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("portfolio %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPortfolio(row rowScanner) (*Portfolio, error) {
	var (
		p         Portfolio
		createdAt int64
		updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.CashBalance, &p.IsKYCVerified, &p.Version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &p, nil
}
