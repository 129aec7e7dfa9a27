// Package trading owns the append-only trade history and the ledger
// primitives that exchange cash for lot quantity.
package trading

import (
	"fmt"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/shopspring/decimal"
)

// TradeType classifies a cash-moving event
type TradeType string

const (
	TradeTypeBuy       TradeType = "BUY"
	TradeTypeSell      TradeType = "SELL"
	TradeTypeDividend  TradeType = "DIVIDEND"
	TradeTypeRebalance TradeType = "REBALANCE"
	TradeTypeSwitch    TradeType = "SWITCH"
)

// Valid reports whether t is a known trade type
func (t TradeType) Valid() bool {
	switch t {
	case TradeTypeBuy, TradeTypeSell, TradeTypeDividend, TradeTypeRebalance, TradeTypeSwitch:
		return true
	}
	return false
}

// Side is the direction of an asset exchange. Dividend and switch records
// carry no side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade is an immutable record of one cash-moving event
type Trade struct {
	ID                  int64           `json:"id"`
	Reference           string          `json:"reference"`
	PortfolioID         int64           `json:"portfolio_id"`
	AssetID             *int64          `json:"asset_id,omitempty"`
	Symbol              string          `json:"symbol,omitempty"`
	PortfolioStrategyID *int64          `json:"portfolio_strategy_id,omitempty"`
	TradeType           TradeType       `json:"trade_type"`
	Side                Side            `json:"side,omitempty"`
	Quantity            decimal.Decimal `json:"quantity"`
	Price               decimal.Decimal `json:"price"`
	Amount              decimal.Decimal `json:"amount"`
	Note                string          `json:"note"`
	ExecutedAt          time.Time       `json:"executed_at"`
}

// Validate checks structural rules before insertion
func (t *Trade) Validate() error {
	if t.PortfolioID <= 0 {
		return fmt.Errorf("%w: trade needs a portfolio", domain.ErrValidation)
	}
	if !t.TradeType.Valid() {
		return fmt.Errorf("%w: unknown trade type %q", domain.ErrValidation, t.TradeType)
	}
	if t.Side != "" && t.Side != SideBuy && t.Side != SideSell {
		return fmt.Errorf("%w: unknown side %q", domain.ErrValidation, t.Side)
	}
	if t.Quantity.IsNegative() || t.Price.IsNegative() || t.Amount.IsNegative() {
		return fmt.Errorf("%w: trade quantity, price and amount must not be negative", domain.ErrValidation)
	}
	if t.Side != "" && t.AssetID == nil {
		return fmt.Errorf("%w: %s trade needs an asset", domain.ErrValidation, t.Side)
	}
	return nil
}
