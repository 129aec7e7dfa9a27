// Package domain holds the money arithmetic and error taxonomy shared by every module.
package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Precision used across the ledger
const (
	CentPlaces         = 2 // settlement amounts
	PricePlaces        = 8 // average cost basis
	QuantityPlaces     = 8 // strategy-sized quantities
	CopyQuantityPlaces = 4 // copy-strategy quantities, floored to avoid dust
)

var (
	// Hundred is the percentage base
	Hundred = decimal.NewFromInt(100)
	// DefaultInitialCash is the virtual balance a new portfolio starts with
	DefaultInitialCash = decimal.NewFromInt(1_000_000)
)

// Settle rounds a monetary amount to cents using banker's rounding.
func Settle(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundBank(CentPlaces)
}

// FloorCents rounds a monetary amount down to cents. Used for copy slices so a
// running balance never goes negative through rounding.
func FloorCents(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundFloor(CentPlaces)
}

// PercentOf returns pct% of base.
func PercentOf(pct, base decimal.Decimal) decimal.Decimal {
	return pct.Div(Hundred).Mul(base)
}

// MinDecimal returns the smallest of the given values.
func MinDecimal(first decimal.Decimal, rest ...decimal.Decimal) decimal.Decimal {
	return decimal.Min(first, rest...)
}

// ParseAmount parses a positive decimal amount from user input.
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid amount %q", ErrValidation, s)
	}
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}
