package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/allocator/internal/database"
)

const (
	// walWarnFrames marks a WAL worth a warning before checkpoint
	walWarnFrames = 1000
	// diskWarnGB logs a warning below this many free gigabytes
	diskWarnGB = 5.0
)

// WALStatus is the result of PRAGMA wal_checkpoint
type WALStatus struct {
	Busy         int `json:"busy"`
	Frames       int `json:"frames"`
	Checkpointed int `json:"checkpointed"`
}

// MaintenanceReport summarizes one maintenance run
type MaintenanceReport struct {
	Integrity string    `json:"integrity"`
	WAL       WALStatus `json:"wal"`
	FreeGB    float64   `json:"free_gb"`
	Duration  time.Duration
}

// MaintenanceService runs integrity checks, WAL checkpoints and disk checks
type MaintenanceService struct {
	db        *database.DB
	dataDir   string
	minFreeGB float64
	log       zerolog.Logger
}

// NewMaintenanceService creates a maintenance service. Runs fail when fewer
// than minFreeGB gigabytes are free under dataDir.
func NewMaintenanceService(db *database.DB, dataDir string, minFreeGB float64, log zerolog.Logger) *MaintenanceService {
	return &MaintenanceService{
		db:        db,
		dataDir:   dataDir,
		minFreeGB: minFreeGB,
		log:       log.With().Str("service", "maintenance").Logger(),
	}
}

// Run checks integrity, truncates the WAL, optimizes query plans and
// verifies free disk space. Only corruption and a full disk are errors.
func (m *MaintenanceService) Run(ctx context.Context) (*MaintenanceReport, error) {
	start := time.Now()
	report := &MaintenanceReport{}

	if err := m.db.Conn().QueryRowContext(ctx, "PRAGMA quick_check").Scan(&report.Integrity); err != nil {
		return nil, fmt.Errorf("integrity check failed: %w", err)
	}
	if report.Integrity != "ok" {
		m.log.Error().Str("result", report.Integrity).Msg("Database integrity check failed")
		return report, fmt.Errorf("database %s is corrupt: %s", m.db.Name(), report.Integrity)
	}

	wal, err := m.Checkpoint(ctx, "TRUNCATE")
	if err != nil {
		m.log.Warn().Err(err).Msg("WAL checkpoint failed")
	} else {
		report.WAL = *wal
	}

	if _, err := m.db.Conn().ExecContext(ctx, "PRAGMA optimize"); err != nil {
		m.log.Warn().Err(err).Msg("PRAGMA optimize failed")
	}

	free, err := m.FreeGB()
	if err != nil {
		m.log.Warn().Err(err).Msg("Disk usage unavailable")
	} else {
		report.FreeGB = free
		if free < m.minFreeGB {
			m.log.Error().Float64("free_gb", free).Msg("Insufficient disk space")
			return report, fmt.Errorf("only %.2f GB free under %s", free, m.dataDir)
		}
		if free < diskWarnGB {
			m.log.Warn().Float64("free_gb", free).Msg("Disk space running low")
		}
	}

	report.Duration = time.Since(start)
	m.log.Info().
		Int("wal_frames", report.WAL.Frames).
		Float64("free_gb", report.FreeGB).
		Dur("duration", report.Duration).
		Msg("Maintenance completed")
	return report, nil
}

// Checkpoint runs PRAGMA wal_checkpoint in the given mode
// (PASSIVE, FULL, RESTART or TRUNCATE).
func (m *MaintenanceService) Checkpoint(ctx context.Context, mode string) (*WALStatus, error) {
	switch mode {
	case "PASSIVE", "FULL", "RESTART", "TRUNCATE":
	default:
		return nil, fmt.Errorf("invalid checkpoint mode %q", mode)
	}

	var st WALStatus
	q := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)
	if err := m.db.Conn().QueryRowContext(ctx, q).Scan(&st.Busy, &st.Frames, &st.Checkpointed); err != nil {
		return nil, err
	}
	if st.Frames > walWarnFrames {
		m.log.Warn().Int("wal_frames", st.Frames).Msg("WAL file is large")
	}
	return &st, nil
}

// Vacuum rebuilds the database file to reclaim free pages
func (m *MaintenanceService) Vacuum(ctx context.Context) error {
	start := time.Now()
	if _, err := m.db.Conn().ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum failed: %w", err)
	}
	m.log.Info().Dur("duration", time.Since(start)).Msg("Database vacuumed")
	return nil
}

// FreeGB reports free space on the filesystem holding the data directory
func (m *MaintenanceService) FreeGB() (float64, error) {
	usage, err := disk.Usage(m.dataDir)
	if err != nil {
		return 0, err
	}
	return float64(usage.Free) / 1e9, nil
}
