package di

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/clients/googlenews"
	"github.com/aristath/allocator/internal/clients/huggingface"
	"github.com/aristath/allocator/internal/clients/newsapi"
	"github.com/aristath/allocator/internal/clients/polygon"
	"github.com/aristath/allocator/internal/clients/yahoo"
	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/optimization"
	"github.com/aristath/allocator/internal/modules/orchestrator"
	"github.com/aristath/allocator/internal/modules/providers"
	"github.com/aristath/allocator/internal/modules/sentiment"
	"github.com/aristath/allocator/internal/modules/signals"
)

// warmupTimeout bounds the first classifier call, which may load the model
const warmupTimeout = 2 * time.Minute

// InitializeClients creates every vendor client. Keyed vendors are created
// even without a key so the gateway can report which one it chose.
func InitializeClients(container *Container, cfg *config.Config, log zerolog.Logger) {
	timeout := time.Duration(cfg.Providers.HTTPTimeoutSeconds) * time.Second

	container.PolygonClient = polygon.NewClient(polygon.Config{
		APIKey:         cfg.Providers.PolygonAPIKey,
		BaseURL:        cfg.Providers.PolygonBaseURL,
		RequestsPerMin: cfg.Providers.PolygonRequestsPerMin,
		Timeout:        timeout,
	}, log)
	container.YahooClient = yahoo.NewClient(log)
	container.NewsAPIClient = newsapi.NewClient(cfg.Providers.NewsAPIKey, cfg.Providers.NewsAPIBaseURL, timeout, log)
	container.GoogleNewsClient = googlenews.NewClient(cfg.Providers.GoogleNewsBaseURL, timeout, log)
	container.HuggingFaceClient = huggingface.NewClient(
		cfg.Sentiment.InferenceBaseURL,
		cfg.Sentiment.Model,
		cfg.Sentiment.HuggingFaceToken,
		0,
		log,
	)
}

// InitializeServices creates the gateway, scorer, signal engine, optimizer
// and orchestration services.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) {
	retry := providers.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Providers.MaxAttempts

	gw := providers.Config{
		Prices: providers.Choose[domain.PriceProvider](container.PolygonClient, container.YahooClient),
		News:   providers.Choose[domain.NewsProvider](container.NewsAPIClient, container.GoogleNewsClient),
		Retry:  retry,
	}
	if container.PolygonClient.Configured() {
		gw.MostActive = container.PolygonClient
	}
	container.Gateway = providers.NewGateway(gw, log)

	hf := container.HuggingFaceClient
	container.Scorer = sentiment.NewScorer(func(context.Context) (domain.SentimentClassifier, error) {
		// The warmup outlives the request that triggered it.
		ctx, cancel := context.WithTimeout(context.Background(), warmupTimeout)
		defer cancel()
		if err := hf.Warmup(ctx); err != nil {
			return nil, err
		}
		return hf, nil
	}, sentiment.Options{BatchSize: cfg.Sentiment.BatchSize}, log)

	container.Engine = signals.NewEngine(container.Store, container.Gateway, container.Gateway, container.Scorer, log)

	container.Optimizer = optimization.NewMVOptimizer(log)
	container.SolverPool = optimization.NewPool(container.Optimizer, solverWorkers())

	container.Universe = orchestrator.NewUniverse(container.Gateway, container.Store, log)
	container.Batch = orchestrator.NewBatch(container.Engine, cfg.Universe.Concurrency, log)
	container.Recommender = orchestrator.NewRecommender(container.Engine, container.Store, container.SolverPool, log)

	log.Info().
		Str("prices", container.Gateway.PriceProviderName()).
		Str("news", container.Gateway.NewsProviderName()).
		Msg("Services initialized")
}

// solverWorkers leaves a core for I/O on larger machines
func solverWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		return 1
	}
	if n > 4 {
		return 4
	}
	return n
}
