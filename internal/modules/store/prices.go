package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/domain"
)

// UpsertPrices inserts or updates (close, volume) keyed on (asset_id, date).
// The batch is applied in one transaction.
func (s *Store) UpsertPrices(ctx context.Context, rows []domain.PriceObservation) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var affected int64
	err := database.WithTransactionContext(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO prices (asset_id, date, close, volume)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(asset_id, date) DO UPDATE SET
				close = excluded.close,
				volume = excluded.volume
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare price upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			if r.Volume.IsNegative() {
				return fmt.Errorf("negative volume for asset %d on %s", r.AssetID, r.Date.Format(domain.DateLayout))
			}
			res, err := stmt.ExecContext(ctx, r.AssetID, domain.Date(r.Date).Format(domain.DateLayout), r.Close.String(), r.Volume.String())
			if err != nil {
				return fmt.Errorf("failed to upsert price for asset %d: %w", r.AssetID, err)
			}
			n, _ := res.RowsAffected()
			affected += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Debug().Int("rows", len(rows)).Int64("affected", affected).Msg("Upserted prices")
	return affected, nil
}

// LoadPrices returns stored observations for one asset in date order
func (s *Store) LoadPrices(ctx context.Context, assetID int64, start, end time.Time) ([]domain.PriceObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, close, volume
		FROM prices
		WHERE asset_id = ? AND date BETWEEN ? AND ?
		ORDER BY date
	`, assetID, start.Format(domain.DateLayout), end.Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var out []domain.PriceObservation
	for rows.Next() {
		var date, closeStr, volumeStr string
		if err := rows.Scan(&date, &closeStr, &volumeStr); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		d, err := time.Parse(domain.DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("invalid stored date %q: %w", date, err)
		}
		closeVal, err := decimal.NewFromString(closeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stored close %q: %w", closeStr, err)
		}
		volume, err := decimal.NewFromString(volumeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stored volume %q: %w", volumeStr, err)
		}
		out = append(out, domain.PriceObservation{AssetID: assetID, Date: d, Close: closeVal, Volume: volume})
	}
	return out, rows.Err()
}

// LoadPriceMatrix pivots closes for symbols over [start, end] into a
// date-indexed table, forward-fills gaps and drops rows where every symbol
// is missing. Columns follow the order of symbols.
func (s *Store) LoadPriceMatrix(ctx context.Context, symbols []string, start, end time.Time) (*domain.PriceMatrix, error) {
	symbols = domain.NormalizeSymbols(symbols)
	matrix := &domain.PriceMatrix{Symbols: symbols}
	if len(symbols) == 0 {
		return matrix, nil
	}

	col := make(map[string]int, len(symbols))
	args := make([]any, 0, len(symbols)+2)
	for i, sym := range symbols {
		col[sym] = i
		args = append(args, sym)
	}
	args = append(args, start.Format(domain.DateLayout), end.Format(domain.DateLayout))

	query := fmt.Sprintf(`
		SELECT a.symbol, p.date, p.close
		FROM prices p
		JOIN assets a ON a.id = p.asset_id
		WHERE a.symbol IN (%s) AND p.date BETWEEN ? AND ?
		ORDER BY p.date
	`, strings.TrimSuffix(strings.Repeat("?,", len(symbols)), ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price matrix: %w", err)
	}
	defer rows.Close()

	rowIndex := make(map[string]int)
	for rows.Next() {
		var symbol, date, closeStr string
		if err := rows.Scan(&symbol, &date, &closeStr); err != nil {
			return nil, fmt.Errorf("failed to scan price matrix row: %w", err)
		}
		closeVal, err := decimal.NewFromString(closeStr)
		if err != nil {
			return nil, fmt.Errorf("invalid stored close %q: %w", closeStr, err)
		}

		r, ok := rowIndex[date]
		if !ok {
			d, err := time.Parse(domain.DateLayout, date)
			if err != nil {
				return nil, fmt.Errorf("invalid stored date %q: %w", date, err)
			}
			r = len(matrix.Dates)
			rowIndex[date] = r
			matrix.Dates = append(matrix.Dates, d)
			row := make([]float64, len(symbols))
			for i := range row {
				row[i] = math.NaN()
			}
			matrix.Values = append(matrix.Values, row)
		}
		matrix.Values[r][col[symbol]] = closeVal.InexactFloat64()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate price matrix: %w", err)
	}

	matrix.ForwardFill()
	return matrix, nil
}

// TopByAverageVolume ranks stored symbols by mean daily volume over the
// trailing lookbackDays, highest first.
func (s *Store) TopByAverageVolume(ctx context.Context, k, lookbackDays int) ([]string, error) {
	end := domain.Date(s.now())
	start := end.AddDate(0, 0, -lookbackDays)

	rows, err := s.db.QueryContext(ctx, `
		SELECT a.symbol, AVG(CAST(p.volume AS REAL)) AS avgv
		FROM prices p
		JOIN assets a ON a.id = p.asset_id
		WHERE p.date BETWEEN ? AND ?
		GROUP BY a.symbol
		ORDER BY avgv DESC, a.symbol
		LIMIT ?
	`, start.Format(domain.DateLayout), end.Format(domain.DateLayout), k)
	if err != nil {
		return nil, fmt.Errorf("failed to rank by volume: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		var avg float64
		if err := rows.Scan(&symbol, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan volume rank: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}
