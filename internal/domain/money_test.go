package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestSettle_UsesBankersRounding(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"10.125", "10.12"},
		{"10.135", "10.14"},
		{"10.126", "10.13"},
		{"-3.335", "-3.34"},
		{"7", "7"},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			assert.True(t, d(tc.want).Equal(Settle(d(tc.in))), "Settle(%s) = %s", tc.in, Settle(d(tc.in)))
		})
	}
}

func TestFloorCents(t *testing.T) {
	assert.Equal(t, "1999.99", FloorCents(d("1999.999")).StringFixed(2))
	assert.Equal(t, "40.01", FloorCents(d("40.0199")).StringFixed(2))
}

func TestPercentOf(t *testing.T) {
	assert.True(t, d("250").Equal(PercentOf(d("25"), d("1000"))))
	assert.True(t, decimal.Zero.Equal(PercentOf(d("0"), d("1000"))))
}

func TestMinDecimal(t *testing.T) {
	assert.True(t, d("3").Equal(MinDecimal(d("5"), d("3"), d("4"))))
	assert.True(t, d("5").Equal(MinDecimal(d("5"))))
}

func TestParseAmount(t *testing.T) {
	amount, err := ParseAmount("125.50")
	require.NoError(t, err)
	assert.True(t, d("125.5").Equal(amount))

	_, err = ParseAmount("0")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseAmount("abc")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestErrorClassification(t *testing.T) {
	wrapped := fmt.Errorf("switch strategy: %w", ErrCopyTradingActive)
	assert.True(t, IsInvariantViolation(wrapped))
	assert.False(t, IsInvariantViolation(ErrInsufficientFunds))
	assert.False(t, IsInvariantViolation(errors.New("boom")))

	assert.True(t, IsLedgerRecoverable(fmt.Errorf("buy: %w", ErrInsufficientFunds)))
	assert.True(t, IsLedgerRecoverable(ErrMissingPosition))
	assert.False(t, IsLedgerRecoverable(ErrAllocationExceeded))
}
