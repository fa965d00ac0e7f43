// Package main is the entry point of the allocator service.
//
// Startup order: configuration, logging, dependency wiring, work
// processor, scheduler, HTTP server. Shutdown runs in reverse.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/di"
	"github.com/aristath/allocator/internal/metrics"
	orchestratorhandlers "github.com/aristath/allocator/internal/modules/orchestrator/handlers"
	signalshandlers "github.com/aristath/allocator/internal/modules/signals/handlers"
	"github.com/aristath/allocator/internal/server"
	"github.com/aristath/allocator/internal/work"
	"github.com/aristath/allocator/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("version", version).Msg("Starting allocator")

	metrics.Register()

	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	container.Processor.Start()
	log.Info().Int("workers", cfg.Work.Workers).Msg("Work processor started")

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:      log,
		DB:       container.DB.Conn(),
		Jobs:     container.Processor,
		Schedule: container.Scheduler,
		Modules: []server.RouteRegistrar{
			orchestratorhandlers.NewHandler(container.Recommender, container.Universe, container.Batch, container.Store, log),
			signalshandlers.NewHandler(container.Engine, container.Store, log),
			work.NewHandlers(container.Processor, container.WorkRegistry, log),
		},
		Version: version,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	if cfg.Universe.RefreshOnStart {
		go func() {
			if err := container.Scheduler.RunNow(context.Background(), jobs.UniverseRefresh); err != nil {
				log.Error().Err(err).Msg("Initial universe refresh failed")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.Scheduler.Stop()
	container.Processor.Stop()
	log.Info().Msg("Work processor stopped")

	log.Info().Msg("Server stopped")
}
