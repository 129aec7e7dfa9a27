// Package portfolio owns portfolios, their position lots and aggregate
// holdings, snapshots and valuation.
package portfolio

import (
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/modules/assets"
	"github.com/shopspring/decimal"
)

// Portfolio is a user's simulated brokerage account. CashBalance is the free
// balance; cash committed to strategies or copy relationships lives in those rows.
type Portfolio struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Name          string          `json:"name"`
	CashBalance   decimal.Decimal `json:"cash_balance"`
	IsKYCVerified bool            `json:"is_kyc_verified"`
	Version       int64           `json:"-"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// StrategyHolding is a position lot scoped to one strategy allocation and one
// asset. A nil PortfolioStrategyID is the portfolio's unallocated lot.
type StrategyHolding struct {
	ID                  int64           `json:"id"`
	PortfolioID         int64           `json:"portfolio_id"`
	PortfolioStrategyID *int64          `json:"portfolio_strategy_id"`
	AssetID             int64           `json:"asset_id"`
	Quantity            decimal.Decimal `json:"quantity"`
	AveragePrice        decimal.Decimal `json:"average_price"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Holding is the aggregate position of a portfolio in one asset.
// Quantity is always the sum of the asset's StrategyHolding lots.
type Holding struct {
	ID          int64           `json:"id"`
	PortfolioID int64           `json:"portfolio_id"`
	AssetID     int64           `json:"asset_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// HoldingValue is a holding joined with its asset's current price
type HoldingValue struct {
	Holding
	Symbol    string           `json:"symbol"`
	AssetType assets.AssetType `json:"asset_type"`
	Price     decimal.Decimal  `json:"price"`
}

// MarketValue returns price × quantity
func (h HoldingValue) MarketValue() decimal.Decimal {
	return h.Price.Mul(h.Quantity)
}

// SnapshotSource records why a snapshot was taken
type SnapshotSource string

const (
	SnapshotDaily       SnapshotSource = "DAILY"
	SnapshotSwitch      SnapshotSource = "SWITCH"
	SnapshotLiquidation SnapshotSource = "LIQUIDATION"
	SnapshotManual      SnapshotSource = "MANUAL"
)

// Snapshot is a point-in-time valuation of a portfolio
type Snapshot struct {
	ID           int64           `json:"id"`
	PortfolioID  int64           `json:"portfolio_id"`
	TotalValue   decimal.Decimal `json:"total_value"`
	CashBalance  decimal.Decimal `json:"cash_balance"`
	Source       SnapshotSource  `json:"source"`
	SnapshotDate string          `json:"snapshot_date"` // YYYY-MM-DD, UTC
	CreatedAt    time.Time       `json:"created_at"`
}

// Summary is a portfolio with its valued holdings
type Summary struct {
	Portfolio        Portfolio       `json:"portfolio"`
	Holdings         []HoldingValue  `json:"holdings"`
	HoldingsValue    decimal.Decimal `json:"holdings_value"`
	TotalValue       decimal.Decimal `json:"total_value"`
	ReturnPercentage decimal.Decimal `json:"return_percentage"`
}

// PerformanceReport summarises a portfolio's snapshot history
type PerformanceReport struct {
	PortfolioID      int64           `json:"portfolio_id"`
	SnapshotCount    int             `json:"snapshot_count"`
	ReturnPercentage decimal.Decimal `json:"return_percentage"`
	MeanReturn       float64         `json:"mean_return"`
	Volatility       float64         `json:"volatility"`
	MovingAverage    *float64        `json:"moving_average,omitempty"`
}
