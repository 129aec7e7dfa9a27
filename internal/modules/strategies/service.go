package strategies

import (
	"database/sql"

	"github.com/bensonidabosa/stonecrestcapital/internal/database"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AllocationInput is a requested target weight
type AllocationInput struct {
	AssetID    int64           `json:"asset_id"`
	Percentage decimal.Decimal `json:"percentage"`
}

// Service runs strategy definition writes inside transactions so the 100%
// allocation ceiling is checked against the rows being written
type Service struct {
	db   *sql.DB
	repo *StrategyRepository
	log  zerolog.Logger
}

// NewService creates a new strategy service
func NewService(db *sql.DB, repo *StrategyRepository, log zerolog.Logger) *Service {
	return &Service{
		db:   db,
		repo: repo,
		log:  log.With().Str("service", "strategies").Logger(),
	}
}

// CreateStrategy inserts a strategy and its allocations atomically
func (s *Service) CreateStrategy(strategy *Strategy, allocations []AllocationInput) (*Strategy, error) {
	var created *Strategy
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(strategy); err != nil {
			return err
		}
		for _, a := range allocations {
			if _, err := repo.SetAllocation(strategy.ID, a.AssetID, a.Percentage); err != nil {
				return err
			}
		}
		var err error
		created, err = repo.GetByID(strategy.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("strategy_id", created.ID).Str("name", created.Name).Int("allocations", len(created.Allocations)).Msg("Strategy created")
	return created, nil
}

// SetAllocation adds or replaces one target weight
func (s *Service) SetAllocation(strategyID, assetID int64, percentage decimal.Decimal) (*Allocation, error) {
	var allocation *Allocation
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.GetByID(strategyID); err != nil {
			return err
		}
		var err error
		allocation, err = repo.SetAllocation(strategyID, assetID, percentage)
		return err
	})
	return allocation, err
}
