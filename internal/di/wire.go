package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/config"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
//  1. Database and store
//  2. Vendor clients
//  3. Domain services
//  4. Work processor (not started)
//  5. Reliability services and scheduler (not started)
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	container := &Container{}

	if err := InitializeDatabase(container, cfg, log); err != nil {
		return nil, nil, err
	}

	InitializeClients(container, cfg, log)
	InitializeServices(container, cfg, log)

	if err := InitializeWork(container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize work processor: %w", err)
	}

	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().Msg("Dependency injection wiring completed successfully")
	return container, jobs, nil
}

// Close releases the solver pool, the job queue and the database. Stop the
// scheduler and processor first.
func (c *Container) Close() {
	if c.SolverPool != nil {
		c.SolverPool.Close()
	}
	if c.WorkQueue != nil {
		c.WorkQueue.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
}
