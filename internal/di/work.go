package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/work"
)

// InitializeWork registers the job types and creates the processor. A
// configured REDIS_URL selects the Redis queue; otherwise jobs stay in memory.
func InitializeWork(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.WorkRegistry = work.NewRegistry()
	work.RegisterAllocationJobs(container.WorkRegistry, container.Batch, container.Engine)

	if cfg.Work.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		q, err := work.NewRedisQueueFromURL(ctx, cfg.Work.RedisURL, cfg.Work.KeyPrefix, log)
		if err != nil {
			return fmt.Errorf("failed to connect job queue: %w", err)
		}
		container.WorkQueue = q
		log.Info().Str("key", q.Key()).Msg("Using Redis job queue")
	} else {
		container.WorkQueue = work.NewMemoryQueue(cfg.Work.QueueSize)
		log.Info().Int("size", cfg.Work.QueueSize).Msg("Using in-memory job queue")
	}

	container.Processor = work.NewProcessor(
		container.WorkRegistry,
		container.WorkQueue,
		container.Store,
		cfg.Work.Workers,
		log,
	)
	return nil
}
