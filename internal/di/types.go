// Package di wires the allocator's components from configuration.
//
// The Container is the single source of truth for service instances; it is
// built once by Wire and handed to the server and scheduler.
package di

import (
	"github.com/aristath/allocator/internal/clients/googlenews"
	"github.com/aristath/allocator/internal/clients/huggingface"
	"github.com/aristath/allocator/internal/clients/newsapi"
	"github.com/aristath/allocator/internal/clients/polygon"
	"github.com/aristath/allocator/internal/clients/yahoo"
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/orchestrator"
	"github.com/aristath/allocator/internal/modules/providers"
	"github.com/aristath/allocator/internal/modules/sentiment"
	"github.com/aristath/allocator/internal/modules/signals"
	"github.com/aristath/allocator/internal/modules/store"
	"github.com/aristath/allocator/internal/reliability"
	"github.com/aristath/allocator/internal/scheduler"
	"github.com/aristath/allocator/internal/work"
)

// Container holds all application dependencies
type Container struct {
	// Persistence
	DB    *database.DB
	Store *store.Store

	// Vendor clients
	PolygonClient     *polygon.Client
	YahooClient       *yahoo.Client
	NewsAPIClient     *newsapi.Client
	GoogleNewsClient  *googlenews.Client
	HuggingFaceClient *huggingface.Client

	// Domain services
	Gateway     *providers.Gateway
	Scorer      *sentiment.Scorer
	Engine      *signals.Engine
	Optimizer   *optimization.MVOptimizer
	SolverPool  *optimization.Pool
	Universe    *orchestrator.Universe
	Batch       *orchestrator.Batch
	Recommender *orchestrator.Recommender

	// Background work
	WorkRegistry *work.Registry
	WorkQueue    work.Queue
	Processor    *work.Processor

	// Reliability; Backups is nil when remote storage is not configured
	Maintenance *reliability.MaintenanceService
	Backups     *reliability.BackupService

	Scheduler *scheduler.Scheduler
}
