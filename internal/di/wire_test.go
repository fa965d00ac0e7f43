package di

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/work"
)

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DATA_DIR", t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_PATH", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("POLYGON_API_KEY", "")
	t.Setenv("NEWSAPI_API_KEY", "")
	t.Setenv("BACKUP_BUCKET", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestWire(t *testing.T) {
	cfg := loadTestConfig(t)

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.Store)
	assert.NotNil(t, container.Recommender)
	assert.NotNil(t, container.Processor)
	assert.IsType(t, &work.MemoryQueue{}, container.WorkQueue)
	assert.Equal(t, "yahoo", container.Gateway.PriceProviderName())

	assert.NotNil(t, jobs.UniverseRefresh)
	assert.NotNil(t, jobs.Maintenance)
	assert.Nil(t, jobs.Backup)
	assert.Nil(t, container.Backups)

	assert.Equal(t, 3, container.WorkRegistry.Count())

	entries := container.Scheduler.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "database_maintenance", entries[0].Name)
	assert.Equal(t, "universe_refresh", entries[1].Name)
}

func TestWire_WithBackups(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Backup.Bucket = "allocator-backups"
	cfg.Backup.AccountID = "account"
	cfg.Backup.AccessKeyID = "key"
	cfg.Backup.SecretAccessKey = "secret"

	container, jobs, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer container.Close()

	assert.NotNil(t, container.Backups)
	assert.NotNil(t, jobs.Backup)
	assert.Len(t, container.Scheduler.Entries(), 3)
}

func TestWire_BadSchedule(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Universe.Schedule = "every night"

	_, _, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
}
