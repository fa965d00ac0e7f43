package formulas

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrailingReturn_Flat(t *testing.T) {
	closes := make([]float64, 61)
	for i := range closes {
		closes[i] = 100
	}

	ret, ok := TrailingReturn(closes, 60)
	require.True(t, ok)
	assert.Equal(t, 0.0, ret)
}

func TestTrailingReturn_Linear(t *testing.T) {
	closes := make([]float64, 61)
	for i := range closes {
		closes[i] = 100 + float64(i)*10.0/60.0
	}

	ret, ok := TrailingReturn(closes, 60)
	require.True(t, ok)
	assert.InDelta(t, 0.10, ret, 1e-9)
}

func TestTrailingReturn_Insufficient(t *testing.T) {
	_, ok := TrailingReturn([]float64{1, 2, 3}, 3)
	assert.False(t, ok)

	_, ok = TrailingReturn(nil, 0)
	assert.False(t, ok)
}

func TestPercentReturns(t *testing.T) {
	returns := PercentReturns([]float64{100, 110, 99})
	require.Len(t, returns, 2)
	assert.InDelta(t, 0.10, returns[0], 1e-12)
	assert.InDelta(t, -0.10, returns[1], 1e-12)

	withGap := PercentReturns([]float64{math.NaN(), 100, 0, 5})
	assert.True(t, math.IsNaN(withGap[0]))
	assert.Equal(t, -1.0, withGap[1])
	assert.True(t, math.IsNaN(withGap[2]))
}

func TestDropNaN(t *testing.T) {
	assert.Equal(t, []float64{1, 2}, DropNaN([]float64{math.NaN(), 1, math.Inf(1), 2}))
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.InDelta(t, 2.0, Mean([]float64{1, 2, 3}), 1e-12)
}
