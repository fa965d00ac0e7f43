package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/reliability"
	"github.com/aristath/allocator/internal/scheduler"
)

// JobInstances holds the scheduled jobs so they can also be run on demand
type JobInstances struct {
	UniverseRefresh *scheduler.UniverseRefreshJob
	Maintenance     *scheduler.MaintenanceJob
	Backup          *scheduler.BackupJob // nil without remote storage
}

// RegisterJobs creates the reliability services and the cron scheduler.
// The scheduler is returned stopped.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	container.Maintenance = reliability.NewMaintenanceService(container.DB, cfg.DataDir, cfg.Backup.MinFreeGB, log)

	if cfg.HasBackup() {
		s3, err := reliability.NewS3Client(context.Background(), reliability.S3Options{
			Bucket:          cfg.Backup.Bucket,
			AccountID:       cfg.Backup.AccountID,
			Endpoint:        cfg.Backup.Endpoint,
			Region:          cfg.Backup.Region,
			AccessKeyID:     cfg.Backup.AccessKeyID,
			SecretAccessKey: cfg.Backup.SecretAccessKey,
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize backup storage - remote backup disabled")
		} else {
			container.Backups = reliability.NewBackupService(container.DB, s3, cfg.DataDir, log)
		}
	} else {
		log.Debug().Msg("Backup storage not configured - remote backup disabled")
	}

	jobs := &JobInstances{
		UniverseRefresh: scheduler.NewUniverseRefreshJob(
			container.Universe,
			container.Store,
			container.Processor,
			cfg.Universe.Size,
			cfg.Universe.LookbackDays,
			log,
		),
		Maintenance: scheduler.NewMaintenanceJob(container.Maintenance),
	}
	if container.Backups != nil {
		jobs.Backup = scheduler.NewBackupJob(container.Backups, cfg.Backup.RetentionDays, log)
	}

	sched := scheduler.New(log)
	if cfg.Universe.Enabled {
		if err := sched.AddJob(cfg.Universe.Schedule, jobs.UniverseRefresh); err != nil {
			return nil, err
		}
	}
	if err := sched.AddJob(cfg.Backup.MaintenanceSchedule, jobs.Maintenance); err != nil {
		return nil, err
	}
	if jobs.Backup != nil {
		if err := sched.AddJob(cfg.Backup.Schedule, jobs.Backup); err != nil {
			return nil, fmt.Errorf("backup schedule: %w", err)
		}
	}
	container.Scheduler = sched

	return jobs, nil
}
