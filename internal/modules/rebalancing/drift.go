// Package rebalancing computes allocation drift against strategy target
// weights and issues corrective REBALANCE trades.
package rebalancing

import (
	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/portfolio"
	"github.com/bensonidabosa/stonecrestcapital/internal/modules/strategies"
	"github.com/shopspring/decimal"
)

// DefaultDriftBand is the absolute value difference below which a position
// is left alone
var DefaultDriftBand = decimal.NewFromInt(1)

// Drift is one target weight compared with the current position.
// Difference is target minus current; positive means buy.
type Drift struct {
	AssetID       int64           `json:"asset_id"`
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	TargetPercent decimal.Decimal `json:"target_percent"`
	TargetValue   decimal.Decimal `json:"target_value"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	Difference    decimal.Decimal `json:"difference"`
	WithinBand    bool            `json:"within_band"`
}

// Quantity returns the quantity that closes the gap, truncated to ledger precision
func (d Drift) Quantity() decimal.Decimal {
	if !d.Price.IsPositive() {
		return decimal.Zero
	}
	return d.Difference.Abs().Div(d.Price).Truncate(domain.QuantityPlaces)
}

// ComputeDrift compares each target weight of a strategy with the
// portfolio's aggregate holding in that asset. target_value is
// percentage/100 × totalValue; differences smaller than band are marked
// WithinBand.
func ComputeDrift(
	totalValue decimal.Decimal,
	allocations []strategies.Allocation,
	holdings []portfolio.HoldingValue,
	band decimal.Decimal,
) []Drift {
	byAsset := make(map[int64]portfolio.HoldingValue, len(holdings))
	for _, h := range holdings {
		byAsset[h.AssetID] = h
	}

	drifts := make([]Drift, 0, len(allocations))
	for _, alloc := range allocations {
		target := domain.PercentOf(alloc.Percentage, totalValue)
		current := decimal.Zero
		if h, ok := byAsset[alloc.AssetID]; ok {
			current = h.MarketValue()
		}
		diff := target.Sub(current)

		drifts = append(drifts, Drift{
			AssetID:       alloc.AssetID,
			Symbol:        alloc.Symbol,
			Price:         alloc.Price,
			TargetPercent: alloc.Percentage,
			TargetValue:   domain.Settle(target),
			CurrentValue:  domain.Settle(current),
			Difference:    domain.Settle(diff),
			WithinBand:    diff.Abs().LessThan(band),
		})
	}
	return drifts
}
