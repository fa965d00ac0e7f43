package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/pkg/formulas"
)

const (
	// MinCovarianceRows is the number of joint return rows needed before the
	// sample covariance is trusted.
	MinCovarianceRows = 60
	// FallbackVariance is the diagonal of the identity fallback (20% vol).
	FallbackVariance = 0.04
	// CovarianceLookbackDays is the calendar window loaded for estimation.
	CovarianceLookbackDays = 365
)

// CovarianceEstimate is Σ in the column order of the source matrix.
type CovarianceEstimate struct {
	Symbols    []string
	Matrix     [][]float64
	WindowDays int
	Sample     bool
}

// EstimateCovariance builds a covariance matrix from a forward-filled price
// matrix. Returns are taken per column, rows with any NaN are dropped, and
// fewer than MinCovarianceRows joint rows yields FallbackVariance·I.
func EstimateCovariance(pm *domain.PriceMatrix, symbols []string) CovarianceEstimate {
	k := len(symbols)
	est := CovarianceEstimate{
		Symbols:    symbols,
		WindowDays: pm.Rows(),
	}

	rows := jointReturns(pm, symbols)
	if len(rows) < MinCovarianceRows {
		est.Matrix = scaledIdentity(k, FallbackVariance)
		return est
	}

	flat := make([]float64, 0, len(rows)*k)
	for _, r := range rows {
		flat = append(flat, r...)
	}
	x := mat.NewDense(len(rows), k, flat)

	cov := mat.NewSymDense(k, nil)
	stat.CovarianceMatrix(cov, x, nil)

	est.Matrix = make([][]float64, k)
	for i := 0; i < k; i++ {
		est.Matrix[i] = make([]float64, k)
		for j := 0; j < k; j++ {
			v := cov.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			est.Matrix[i][j] = v
		}
	}
	est.Sample = true
	return est
}

// jointReturns returns one row of simple returns per date where every
// requested symbol has a finite return. Symbols absent from the matrix make
// every row incomplete.
func jointReturns(pm *domain.PriceMatrix, symbols []string) [][]float64 {
	if pm.Rows() < 2 || len(symbols) == 0 {
		return nil
	}

	cols := make([][]float64, len(symbols))
	for i, sym := range symbols {
		closes := pm.Column(sym)
		if closes == nil {
			return nil
		}
		cols[i] = formulas.PercentReturns(closes)
	}

	n := len(cols[0])
	out := make([][]float64, 0, n)
	for r := 0; r < n; r++ {
		row := make([]float64, len(cols))
		ok := true
		for c := range cols {
			v := cols[c][r]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				ok = false
				break
			}
			row[c] = v
		}
		if ok {
			out = append(out, row)
		}
	}
	return out
}

func scaledIdentity(n int, v float64) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = v
	}
	return m
}
