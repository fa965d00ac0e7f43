package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/orchestrator"
	"github.com/aristath/allocator/internal/reliability"
	"github.com/aristath/allocator/internal/work"
)

// UniverseBuilder selects the symbols of a refresh
type UniverseBuilder interface {
	ExpandedUniverse(ctx context.Context, count int) []string
}

// AssetCatalog registers symbols before their prices are stored
type AssetCatalog interface {
	EnsureAssets(ctx context.Context, specs []domain.AssetSpec) ([]int64, error)
}

// Submitter enqueues background work
type Submitter interface {
	Submit(ctx context.Context, jobType string, payload any) (string, error)
}

// UniverseRefreshJob rebuilds the universe and queues a universe batch for it
type UniverseRefreshJob struct {
	universe     UniverseBuilder
	catalog      AssetCatalog
	jobs         Submitter
	count        int
	lookbackDays int
	log          zerolog.Logger
}

// NewUniverseRefreshJob creates the daily universe refresh
func NewUniverseRefreshJob(universe UniverseBuilder, catalog AssetCatalog, jobs Submitter, count, lookbackDays int, log zerolog.Logger) *UniverseRefreshJob {
	return &UniverseRefreshJob{
		universe:     universe,
		catalog:      catalog,
		jobs:         jobs,
		count:        count,
		lookbackDays: lookbackDays,
		log:          log.With().Str("job", "universe_refresh").Logger(),
	}
}

// Name returns the job name
func (j *UniverseRefreshJob) Name() string {
	return "universe_refresh"
}

// Run registers the expanded universe and submits the batch
func (j *UniverseRefreshJob) Run(ctx context.Context) error {
	symbols := j.universe.ExpandedUniverse(ctx, j.count)
	if len(symbols) == 0 {
		return fmt.Errorf("universe is empty")
	}

	if _, err := j.catalog.EnsureAssets(ctx, orchestrator.AssetSpecs(symbols)); err != nil {
		return fmt.Errorf("failed to register universe: %w", err)
	}

	id, err := j.jobs.Submit(ctx, work.TypeUniverseBatch, work.UniverseBatchPayload{
		Symbols:      symbols,
		LookbackDays: j.lookbackDays,
	})
	if err != nil {
		return fmt.Errorf("failed to submit universe batch: %w", err)
	}

	j.log.Info().
		Str("job_id", id).
		Int("symbols", len(symbols)).
		Int("lookback_days", j.lookbackDays).
		Msg("Universe batch queued")
	return nil
}

// MaintenanceJob runs database maintenance
type MaintenanceJob struct {
	maintenance *reliability.MaintenanceService
}

// NewMaintenanceJob creates the daily maintenance job
func NewMaintenanceJob(m *reliability.MaintenanceService) *MaintenanceJob {
	return &MaintenanceJob{maintenance: m}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "database_maintenance"
}

// Run executes the maintenance pass
func (j *MaintenanceJob) Run(ctx context.Context) error {
	_, err := j.maintenance.Run(ctx)
	return err
}

// Backuper uploads and rotates remote backups
type Backuper interface {
	CreateAndUpload(ctx context.Context) (*reliability.BackupInfo, error)
	RotateOldBackups(ctx context.Context, retentionDays int) (int, error)
}

// BackupJob uploads a snapshot, then prunes archives past retention
type BackupJob struct {
	backups       Backuper
	retentionDays int
	log           zerolog.Logger
}

// NewBackupJob creates the remote backup job
func NewBackupJob(backups Backuper, retentionDays int, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		backups:       backups,
		retentionDays: retentionDays,
		log:           log.With().Str("job", "remote_backup").Logger(),
	}
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "remote_backup"
}

// Run uploads a backup. Rotation runs only after a successful upload.
func (j *BackupJob) Run(ctx context.Context) error {
	if _, err := j.backups.CreateAndUpload(ctx); err != nil {
		return err
	}
	if _, err := j.backups.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}
