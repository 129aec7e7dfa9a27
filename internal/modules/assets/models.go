// Package assets is the registry of tradeable instruments and their simulated prices.
package assets

import (
	"fmt"
	"strings"
	"time"

	"github.com/bensonidabosa/stonecrestcapital/internal/domain"
	"github.com/shopspring/decimal"
)

// AssetType classifies an instrument
type AssetType string

const (
	AssetTypeStock  AssetType = "STOCK"
	AssetTypeETF    AssetType = "ETF"
	AssetTypeREIT   AssetType = "REIT"
	AssetTypeCrypto AssetType = "CRYPTO"
)

// Valid reports whether t is a known asset type
func (t AssetType) Valid() bool {
	switch t {
	case AssetTypeStock, AssetTypeETF, AssetTypeREIT, AssetTypeCrypto:
		return true
	}
	return false
}

// DividendFrequency is how often a REIT pays out
type DividendFrequency string

const (
	DividendMonthly   DividendFrequency = "MONTHLY"
	DividendQuarterly DividendFrequency = "QUARTERLY"
)

// Asset is a tradeable instrument. Price is written only by the external
// price feed through Repository.UpdatePrice.
type Asset struct {
	ID                int64               `json:"id"`
	Symbol            string              `json:"symbol"`
	Name              string              `json:"name"`
	AssetType         AssetType           `json:"asset_type"`
	Price             decimal.Decimal     `json:"price"`
	Volatility        decimal.Decimal     `json:"volatility"`
	AnnualYield       decimal.NullDecimal `json:"annual_yield"`
	DividendFrequency DividendFrequency   `json:"dividend_frequency,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Validate checks the asset before it is written
func (a *Asset) Validate() error {
	a.Symbol = strings.ToUpper(strings.TrimSpace(a.Symbol))
	if a.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", domain.ErrValidation)
	}
	if !a.AssetType.Valid() {
		return fmt.Errorf("%w: unknown asset type %q", domain.ErrValidation, a.AssetType)
	}
	if a.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", domain.ErrValidation)
	}

	hasDividendFields := a.AnnualYield.Valid || a.DividendFrequency != ""
	if a.AssetType != AssetTypeREIT && hasDividendFields {
		return fmt.Errorf("%w: dividend yield and frequency are only allowed for REIT assets", domain.ErrValidation)
	}
	if a.DividendFrequency != "" && a.DividendFrequency != DividendMonthly && a.DividendFrequency != DividendQuarterly {
		return fmt.Errorf("%w: unknown dividend frequency %q", domain.ErrValidation, a.DividendFrequency)
	}
	if a.AnnualYield.Valid && a.AnnualYield.Decimal.IsNegative() {
		return fmt.Errorf("%w: annual yield must not be negative", domain.ErrValidation)
	}

	return nil
}

// Tradable reports whether the asset can currently be bought or sold
func (a *Asset) Tradable() bool {
	return a.Price.IsPositive()
}

// PeriodYield returns the percentage yield paid per dividend period.
// Anything but MONTHLY, including an unset frequency, pays quarterly.
// The second result is false when the asset pays no dividend.
func (a *Asset) PeriodYield() (decimal.Decimal, bool) {
	if a.AssetType != AssetTypeREIT || !a.AnnualYield.Valid || !a.AnnualYield.Decimal.IsPositive() {
		return decimal.Zero, false
	}

	if a.DividendFrequency == DividendMonthly {
		return a.AnnualYield.Decimal.Div(decimal.NewFromInt(12)), true
	}
	return a.AnnualYield.Decimal.Div(decimal.NewFromInt(4)), true
}
