package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aristath/allocator/internal/domain"
)

// SavePortfolio stores a user's allocation and returns it with its id
func (s *Store) SavePortfolio(ctx context.Context, p domain.SavedPortfolio) (*domain.SavedPortfolio, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if p.Policy == nil {
		p.Policy = map[string]any{}
	}

	allocations, err := json.Marshal(p.Allocations)
	if err != nil {
		return nil, fmt.Errorf("failed to encode allocations: %w", err)
	}
	policy, err := json.Marshal(p.Policy)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy: %w", err)
	}

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO portfolios (user_id, allocations, policy, created_at)
		VALUES (?, ?, ?, ?)
	`, p.UserID, string(allocations), string(policy), s.timestamp())
	if err != nil {
		return nil, fmt.Errorf("failed to save portfolio: %w", err)
	}

	p.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read portfolio id: %w", err)
	}
	p.CreatedAt = now
	return &p, nil
}

// LoadPortfolios returns every saved portfolio for userID, oldest first
func (s *Store) LoadPortfolios(ctx context.Context, userID string) ([]domain.SavedPortfolio, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, allocations, policy, created_at
		FROM portfolios
		WHERE user_id = ?
		ORDER BY id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load portfolios: %w", err)
	}
	defer rows.Close()

	var out []domain.SavedPortfolio
	for rows.Next() {
		var (
			p           domain.SavedPortfolio
			allocations string
			policy      string
			createdAt   string
		)
		if err := rows.Scan(&p.ID, &p.UserID, &allocations, &policy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		if err := json.Unmarshal([]byte(allocations), &p.Allocations); err != nil {
			return nil, fmt.Errorf("invalid stored allocations: %w", err)
		}
		if err := json.Unmarshal([]byte(policy), &p.Policy); err != nil {
			return nil, fmt.Errorf("invalid stored policy: %w", err)
		}
		p.CreatedAt = parseTimestamp(createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}
