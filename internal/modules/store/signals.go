package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/domain"
)

// UpsertSignals inserts or updates (value, metadata) keyed on
// (asset_id, date, kind). The batch is applied in one transaction.
func (s *Store) UpsertSignals(ctx context.Context, rows []domain.SignalObservation) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var affected int64
	err := database.WithTransactionContext(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO signals (asset_id, date, kind, value, metadata)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(asset_id, date, kind) DO UPDATE SET
				value = excluded.value,
				metadata = excluded.metadata
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare signal upsert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			meta := r.Metadata
			if meta == nil {
				meta = map[string]any{}
			}
			metaJSON, err := json.Marshal(meta)
			if err != nil {
				return fmt.Errorf("failed to encode signal metadata: %w", err)
			}

			res, err := stmt.ExecContext(ctx, r.AssetID, domain.Date(r.Date).Format(domain.DateLayout), string(r.Kind), r.Value, string(metaJSON))
			if err != nil {
				return fmt.Errorf("failed to upsert %s signal for asset %d: %w", r.Kind, r.AssetID, err)
			}
			n, _ := res.RowsAffected()
			affected += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return affected, nil
}

// LatestSignals returns the most recent observation of each kind for symbol
func (s *Store) LatestSignals(ctx context.Context, symbol string) (map[domain.SignalKind]domain.SignalObservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.asset_id, s.date, s.kind, s.value, s.metadata
		FROM signals s
		JOIN assets a ON a.id = s.asset_id
		WHERE a.symbol = ?
		  AND s.date = (
			SELECT MAX(s2.date) FROM signals s2
			WHERE s2.asset_id = s.asset_id AND s2.kind = s.kind
		  )
	`, domain.NormalizeSymbol(symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to query latest signals: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.SignalKind]domain.SignalObservation)
	for rows.Next() {
		obs, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out[obs.Kind] = obs
	}
	return out, rows.Err()
}

// CountSignals returns the number of stored signal rows for an asset
func (s *Store) CountSignals(ctx context.Context, assetID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM signals WHERE asset_id = ?`, assetID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count signals: %w", err)
	}
	return n, nil
}

// UniverseEntry is an asset with its latest composite score
type UniverseEntry struct {
	domain.Asset
	Score     *float64 `json:"score"`
	ScoreDate string   `json:"score_date,omitempty"`
}

// ListUniverse returns every asset with its most recent composite score, best first
func (s *Store) ListUniverse(ctx context.Context) ([]UniverseEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.symbol, a.name, a.asset_class, a.created_at, s.value, s.date
		FROM assets a
		LEFT JOIN signals s ON s.asset_id = a.id
			AND s.kind = ?
			AND s.date = (SELECT MAX(date) FROM signals WHERE asset_id = a.id AND kind = ?)
		ORDER BY s.value IS NULL, s.value DESC, a.symbol
	`, string(domain.SignalComposite), string(domain.SignalComposite))
	if err != nil {
		return nil, fmt.Errorf("failed to list universe: %w", err)
	}
	defer rows.Close()

	var out []UniverseEntry
	for rows.Next() {
		var (
			e         UniverseEntry
			class     string
			createdAt string
			score     sql.NullFloat64
			date      sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Name, &class, &createdAt, &score, &date); err != nil {
			return nil, fmt.Errorf("failed to scan universe entry: %w", err)
		}
		e.AssetClass = domain.AssetClass(class)
		e.CreatedAt = parseTimestamp(createdAt)
		if score.Valid {
			v := score.Float64
			e.Score = &v
			e.ScoreDate = date.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanSignal(row rowScanner) (domain.SignalObservation, error) {
	var (
		obs      domain.SignalObservation
		date     string
		kind     string
		metadata string
	)
	if err := row.Scan(&obs.AssetID, &date, &kind, &obs.Value, &metadata); err != nil {
		return obs, fmt.Errorf("failed to scan signal: %w", err)
	}
	d, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		return obs, fmt.Errorf("invalid stored date %q: %w", date, err)
	}
	obs.Date = d
	obs.Kind = domain.SignalKind(kind)
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &obs.Metadata); err != nil {
			return obs, fmt.Errorf("invalid stored metadata: %w", err)
		}
	}
	return obs, nil
}
