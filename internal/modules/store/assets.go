package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/domain"
)

// EnsureAssets creates missing symbols and updates name/class of existing
// ones, returning ids in input order. An empty Name or AssetClass leaves the
// stored value untouched (new rows default to the symbol and "etf").
func (s *Store) EnsureAssets(ctx context.Context, specs []domain.AssetSpec) ([]int64, error) {
	ids := make([]int64, len(specs))
	if len(specs) == 0 {
		return ids, nil
	}

	err := database.WithTransactionContext(ctx, s.db, func(tx *sql.Tx) error {
		upsert, err := tx.PrepareContext(ctx, `
			INSERT INTO assets (symbol, name, asset_class, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(symbol) DO UPDATE SET
				name = COALESCE(NULLIF(?, ''), assets.name),
				asset_class = COALESCE(NULLIF(?, ''), assets.asset_class)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare asset upsert: %w", err)
		}
		defer upsert.Close()

		lookup, err := tx.PrepareContext(ctx, `SELECT id FROM assets WHERE symbol = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare asset lookup: %w", err)
		}
		defer lookup.Close()

		now := s.timestamp()
		for i, spec := range specs {
			symbol := domain.NormalizeSymbol(spec.Symbol)
			if symbol == "" {
				return fmt.Errorf("asset %d: empty symbol", i)
			}

			name, class := spec.Name, string(spec.AssetClass)
			insertName, insertClass := name, class
			if insertName == "" {
				insertName = symbol
			}
			if insertClass == "" {
				insertClass = string(domain.AssetClassETF)
			}

			if _, err := upsert.ExecContext(ctx, symbol, insertName, insertClass, now, name, class); err != nil {
				return fmt.Errorf("failed to upsert asset %s: %w", symbol, err)
			}
			if err := lookup.QueryRowContext(ctx, symbol).Scan(&ids[i]); err != nil {
				return fmt.Errorf("failed to read asset id for %s: %w", symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// GetAssetBySymbol returns the asset or nil when the symbol is unknown
func (s *Store) GetAssetBySymbol(ctx context.Context, symbol string) (*domain.Asset, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, name, asset_class, created_at
		FROM assets
		WHERE symbol = ?
	`, domain.NormalizeSymbol(symbol))

	asset, err := scanAsset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset %s: %w", symbol, err)
	}
	return asset, nil
}

// ListAssets returns assets ordered by id
func (s *Store) ListAssets(ctx context.Context, offset, limit int) ([]domain.Asset, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, name, asset_class, created_at
		FROM assets
		ORDER BY id
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	defer rows.Close()

	var assets []domain.Asset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *asset)
	}
	return assets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*domain.Asset, error) {
	var (
		a         domain.Asset
		class     string
		createdAt string
	)
	if err := row.Scan(&a.ID, &a.Symbol, &a.Name, &class, &createdAt); err != nil {
		return nil, err
	}
	a.AssetClass = domain.AssetClass(class)
	a.CreatedAt = parseTimestamp(createdAt)
	return &a, nil
}
