package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/metrics"
	"github.com/aristath/allocator/internal/modules/providers"
)

const (
	// DefaultBatchConcurrency caps in-flight per-symbol tasks
	DefaultBatchConcurrency = 10
	// DefaultBatchLookbackDays is the backfill window of a universe batch
	DefaultBatchLookbackDays = 3 * 365

	PhaseBackfill = "backfill"
	PhaseSignals  = "signals"

	// ErrMsgCancelled marks symbols the batch never got to
	ErrMsgCancelled = "cancelled"
)

// SignalEngine is the part of signals.Engine a batch drives
type SignalEngine interface {
	BackfillPrices(ctx context.Context, symbol string, lookbackDays int) (int64, error)
	ComputeAndPersist(ctx context.Context, symbol string, date time.Time) (*domain.SignalSnapshot, error)
}

// BatchResult summarizes a universe batch. Per-symbol failures are recorded
// in Errors and never fail the batch. Cancelled is set when the context ended
// before every symbol was processed.
type BatchResult struct {
	Upserts   map[string]int64                 `json:"upserts" msgpack:"upserts"`
	Signals   map[string]domain.SignalSnapshot `json:"signals" msgpack:"signals"`
	Errors    map[string]string                `json:"errors" msgpack:"errors"`
	Symbols   []string                         `json:"symbols" msgpack:"symbols"`
	Cancelled bool                             `json:"cancelled,omitempty" msgpack:"cancelled,omitempty"`
}

// PhaseFunc is told when the batch enters a phase
type PhaseFunc func(phase string)

// Batch runs two-phase universe refreshes: backfill everything, then
// compute signals for everything.
type Batch struct {
	engine      SignalEngine
	concurrency int
	retry       providers.RetryPolicy
	now         func() time.Time
	log         zerolog.Logger
}

// NewBatch creates a batch runner. concurrency < 1 uses DefaultBatchConcurrency.
func NewBatch(engine SignalEngine, concurrency int, log zerolog.Logger) *Batch {
	if concurrency < 1 {
		concurrency = DefaultBatchConcurrency
	}
	retry := providers.TaskRetryPolicy()
	retry.Retryable = RetryableTask

	return &Batch{
		engine:      engine,
		concurrency: concurrency,
		retry:       retry,
		now:         time.Now,
		log:         log.With().Str("component", "batch").Logger(),
	}
}

// WithRetryPolicy replaces the per-symbol signal retry policy. A nil
// Retryable keeps the batch default.
func (b *Batch) WithRetryPolicy(p providers.RetryPolicy) *Batch {
	if p.Retryable == nil {
		p.Retryable = RetryableTask
	}
	b.retry = p
	return b
}

// RetryableTask retries everything except unknown assets and cancellation.
// It is the default for batch signal tasks and single-symbol signal jobs.
func RetryableTask(err error) bool {
	if errors.Is(err, domain.ErrUnknownAsset) {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Backfill fetches and stores prices for every symbol with at most
// concurrency fetches in flight. A failed symbol counts as 0 rows.
func (b *Batch) Backfill(ctx context.Context, symbols []string, lookbackDays int) map[string]int64 {
	upserts, _ := b.backfill(ctx, symbols, lookbackDays)
	return upserts
}

func (b *Batch) backfill(ctx context.Context, symbols []string, lookbackDays int) (map[string]int64, map[string]string) {
	var (
		mu      sync.Mutex
		upserts = make(map[string]int64, len(symbols))
		errs    = make(map[string]string)
	)

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for _, sym := range symbols {
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				defer mu.Unlock()
				metrics.BatchSymbols.WithLabelValues(PhaseBackfill, ErrMsgCancelled).Inc()
				upserts[sym] = 0
				errs[sym] = ErrMsgCancelled
				return nil
			}
			n, err := b.engine.BackfillPrices(ctx, sym, lookbackDays)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				b.log.Warn().Err(err).Str("symbol", sym).Msg("Backfill failed")
				metrics.BatchSymbols.WithLabelValues(PhaseBackfill, "failed").Inc()
				upserts[sym] = 0
				errs[sym] = err.Error()
				return nil
			}
			metrics.BatchSymbols.WithLabelValues(PhaseBackfill, "succeeded").Inc()
			upserts[sym] = n
			return nil
		})
	}
	_ = g.Wait()

	return upserts, errs
}

// RunUniverseBatch backfills every symbol, waits for all of them, then
// computes and persists signals for every symbol. Signal tasks are retried
// with jittered backoff. The batch never fails: when ctx ends early the
// partial result is returned with the unstarted symbols marked cancelled.
func (b *Batch) RunUniverseBatch(ctx context.Context, symbols []string, lookbackDays int, onPhase PhaseFunc) (*BatchResult, error) {
	if onPhase == nil {
		onPhase = func(string) {}
	}
	if lookbackDays <= 0 {
		lookbackDays = DefaultBatchLookbackDays
	}
	symbols = domain.NormalizeSymbols(symbols)
	start := time.Now()

	onPhase(PhaseBackfill)
	upserts, backfillErrs := b.backfill(ctx, symbols, lookbackDays)

	onPhase(PhaseSignals)
	date := domain.Date(b.now())

	var (
		mu   sync.Mutex
		sigs = make(map[string]domain.SignalSnapshot, len(symbols))
		errs = make(map[string]string)
	)
	for sym, msg := range backfillErrs {
		errs[sym] = "backfill: " + msg
	}

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for _, sym := range symbols {
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				defer mu.Unlock()
				metrics.BatchSymbols.WithLabelValues(PhaseSignals, ErrMsgCancelled).Inc()
				if _, ok := errs[sym]; !ok {
					errs[sym] = ErrMsgCancelled
				}
				return nil
			}
			var snap *domain.SignalSnapshot
			err := b.retry.Do(ctx, func(ctx context.Context, attempt int) error {
				var err error
				snap, err = b.engine.ComputeAndPersist(ctx, sym, date)
				if err != nil && attempt < b.retry.MaxAttempts && RetryableTask(err) {
					b.log.Debug().Err(err).Str("symbol", sym).Int("attempt", attempt).Msg("Signal task failed, retrying")
				}
				return err
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				b.log.Warn().Err(err).Str("symbol", sym).Msg("Signal computation failed")
				metrics.BatchSymbols.WithLabelValues(PhaseSignals, "failed").Inc()
				errs[sym] = err.Error()
				return nil
			}
			metrics.BatchSymbols.WithLabelValues(PhaseSignals, "succeeded").Inc()
			sigs[sym] = *snap
			return nil
		})
	}
	_ = g.Wait()

	cancelled := ctx.Err() != nil
	if cancelled {
		b.log.Warn().Err(ctx.Err()).
			Int("symbols", len(symbols)).
			Int("signals", len(sigs)).
			Msg("Universe batch cut short, returning partial result")
	}

	b.log.Info().
		Int("symbols", len(symbols)).
		Int("signals", len(sigs)).
		Int("errors", len(errs)).
		Dur("duration", time.Since(start)).
		Msg("Universe batch completed")

	return &BatchResult{
		Symbols:   symbols,
		Upserts:   upserts,
		Signals:   sigs,
		Errors:    errs,
		Cancelled: cancelled,
	}, nil
}
