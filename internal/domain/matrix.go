package domain

import (
	"math"
	"time"
)

// PriceMatrix is a date-indexed, symbol-columned table of closes.
// Values[row][col] is NaN where no observation exists.
type PriceMatrix struct {
	Dates   []time.Time
	Symbols []string
	Values  [][]float64
}

// Rows returns the number of dates in the matrix.
func (m *PriceMatrix) Rows() int {
	if m == nil {
		return 0
	}
	return len(m.Dates)
}

// Empty reports whether the matrix holds no rows.
func (m *PriceMatrix) Empty() bool {
	return m.Rows() == 0
}

// Column returns the closes for symbol in date order, or nil when the symbol
// is not a column.
func (m *PriceMatrix) Column(symbol string) []float64 {
	if m == nil {
		return nil
	}
	col := -1
	for i, s := range m.Symbols {
		if s == symbol {
			col = i
			break
		}
	}
	if col < 0 {
		return nil
	}

	out := make([]float64, len(m.Values))
	for i, row := range m.Values {
		out[i] = row[col]
	}
	return out
}

// ForwardFill carries the last observed value of each column forward over
// gaps, then drops rows in which every column is still missing.
func (m *PriceMatrix) ForwardFill() {
	if m == nil {
		return
	}

	last := make([]float64, len(m.Symbols))
	for i := range last {
		last[i] = math.NaN()
	}

	dates := m.Dates[:0]
	values := m.Values[:0]
	for r, row := range m.Values {
		allMissing := true
		for c, v := range row {
			if math.IsNaN(v) {
				row[c] = last[c]
			} else {
				last[c] = v
			}
			if !math.IsNaN(row[c]) {
				allMissing = false
			}
		}
		if allMissing {
			continue
		}
		dates = append(dates, m.Dates[r])
		values = append(values, row)
	}
	m.Dates = dates
	m.Values = values
}
