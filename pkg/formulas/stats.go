package formulas

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// PercentReturns converts a price series to simple returns.
// Returns[i] = (Price[i+1] - Price[i]) / Price[i]; a zero or NaN base yields NaN.
func PercentReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 || isNaN(prev) || isNaN(prices[i]) {
			returns[i-1] = math.NaN()
			continue
		}
		returns[i-1] = (prices[i] - prev) / prev
	}

	return returns
}
