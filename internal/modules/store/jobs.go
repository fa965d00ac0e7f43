package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aristath/allocator/internal/domain"
)

// CreateJob inserts a new job record
func (s *Store) CreateJob(ctx context.Context, job *domain.JobRecord) error {
	now := s.now().UTC()
	job.CreatedAt, job.UpdatedAt = now, now
	ts := s.timestamp()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, type, state, phase, attempts, payload, result, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, job.ID, job.Type, string(job.State), job.Phase, job.Attempts, job.Payload, job.Result, job.Error, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.ID, err)
	}
	return nil
}

// UpdateJob persists the mutable fields of a job record
func (s *Store) UpdateJob(ctx context.Context, job *domain.JobRecord) error {
	job.UpdatedAt = s.now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, phase = ?, attempts = ?, result = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, string(job.State), job.Phase, job.Attempts, job.Result, job.Error, s.timestamp(), job.ID)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s not found", job.ID)
	}
	return nil
}

// GetJob returns a job record, or nil when id is unknown
func (s *Store) GetJob(ctx context.Context, id string) (*domain.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, state, phase, attempts, payload, result, error, created_at, updated_at
		FROM jobs
		WHERE id = ?
	`, id)

	var (
		job                  domain.JobRecord
		state                string
		createdAt, updatedAt string
	)
	err := row.Scan(&job.ID, &job.Type, &state, &job.Phase, &job.Attempts, &job.Payload, &job.Result, &job.Error, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}

	job.State = domain.JobState(state)
	job.CreatedAt = parseTimestamp(createdAt)
	job.UpdatedAt = parseTimestamp(updatedAt)
	return &job, nil
}
