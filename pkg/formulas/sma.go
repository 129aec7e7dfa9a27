package formulas

import (
	"github.com/markcheno/go-talib"
)

// CalculateSMA returns the simple moving average of the last length values,
// or nil when the series is shorter than length.
func CalculateSMA(values []float64, length int) *float64 {
	if length <= 0 || len(values) < length {
		return nil
	}

	// talib requires a period of at least 2
	if length == 1 {
		last := values[len(values)-1]
		return &last
	}

	sma := talib.Sma(values, length)
	if len(sma) > 0 && !isNaN(sma[len(sma)-1]) {
		result := sma[len(sma)-1]
		return &result
	}

	result := Mean(values[len(values)-length:])
	return &result
}
