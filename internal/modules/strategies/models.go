// Package strategies defines target-weight strategies and their activations
// (portfolio strategies) on portfolios.
package strategies

import (
	"fmt"
	"strings"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/shopspring/decimal"
)

// RiskLevel grades a strategy
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Status of a portfolio strategy
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusStopped Status = "STOPPED"
)

// Strategy is a named target-weight basket
type Strategy struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	RiskLevel       RiskLevel       `json:"risk_level"`
	TargetReturnMin decimal.Decimal `json:"target_return_min"`
	TargetReturnMax decimal.Decimal `json:"target_return_max"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	Allocations     []Allocation    `json:"allocations"`
}

// Validate checks the strategy before it is written
func (s *Strategy) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return fmt.Errorf("%w: strategy name is required", domain.ErrValidation)
	}
	switch s.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		return fmt.Errorf("%w: unknown risk level %q", domain.ErrValidation, s.RiskLevel)
	}
	if s.TargetReturnMin.GreaterThan(s.TargetReturnMax) {
		return fmt.Errorf("%w: target return min %s exceeds max %s", domain.ErrValidation, s.TargetReturnMin, s.TargetReturnMax)
	}
	return nil
}

// Allocation is one target weight of a strategy. Symbol and Price are read
// from the asset when allocations are loaded.
type Allocation struct {
	ID         int64           `json:"id"`
	StrategyID int64           `json:"strategy_id"`
	AssetID    int64           `json:"asset_id"`
	Percentage decimal.Decimal `json:"percentage"`
	Position   int             `json:"position"`
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
}

// TotalPercentage sums the weights of a strategy's allocations
func TotalPercentage(allocations []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.Percentage)
	}
	return total
}

// PortfolioStrategy is one activation of a strategy on a portfolio with its
// own cash budget. A non-nil CopyRelationshipID marks a follower-owned copy of
// a leader's strategy; copies never propagate further.
type PortfolioStrategy struct {
	ID                 int64           `json:"id"`
	PortfolioID        int64           `json:"portfolio_id"`
	StrategyID         int64           `json:"strategy_id"`
	CopyRelationshipID *int64          `json:"copy_relationship_id"`
	AllocatedCash      decimal.Decimal `json:"allocated_cash"`
	RemainingCash      decimal.Decimal `json:"remaining_cash"`
	Status             Status          `json:"status"`
	Version            int64           `json:"-"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// IsCopy reports whether the allocation belongs to a copy relationship
func (ps *PortfolioStrategy) IsCopy() bool {
	return ps.CopyRelationshipID != nil
}

// IsActive reports whether the allocation is ACTIVE
func (ps *PortfolioStrategy) IsActive() bool {
	return ps.Status == StatusActive
}
