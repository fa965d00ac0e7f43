package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// TrailingReturn returns the signed rate of change between the last close and
// the close `period` observations earlier: (last - prev) / prev.
//
// Returns ok=false when fewer than period+1 closes are available.
func TrailingReturn(closes []float64, period int) (float64, bool) {
	if period <= 0 || len(closes) < period+1 {
		return 0, false
	}

	rocp := talib.Rocp(closes, period)
	if len(rocp) == 0 {
		return 0, false
	}

	last := rocp[len(rocp)-1]
	if isNaN(last) || math.IsInf(last, 0) {
		return 0, false
	}
	return last, true
}

// DropNaN returns the finite values of data in order.
func DropNaN(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if !isNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

func isNaN(f float64) bool {
	return f != f
}
