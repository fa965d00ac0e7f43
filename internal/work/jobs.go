package work

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/orchestrator"
	"github.com/aristath/allocator/pkg/request"
)

// UniverseBatchPayload is the payload of universe:batch
type UniverseBatchPayload struct {
	Symbols      []string `json:"symbols" msgpack:"symbols" validate:"required,min=1,max=600,dive,required,max=16"`
	LookbackDays int      `json:"lookback_days" msgpack:"lookback_days" default:"1095" validate:"gte=1,lte=7300"`
}

// PriceBackfillPayload is the payload of prices:backfill
type PriceBackfillPayload struct {
	Symbol       string `json:"symbol" msgpack:"symbol" validate:"required,max=16"`
	LookbackDays int    `json:"lookback_days" msgpack:"lookback_days" default:"1095" validate:"gte=1,lte=7300"`
}

// SignalComputePayload is the payload of signals:compute
type SignalComputePayload struct {
	Symbol string `json:"symbol" msgpack:"symbol" validate:"required,max=16"`
	// Date defaults to the day the job runs
	Date string `json:"date,omitempty" msgpack:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// BackfillResult is the result of prices:backfill
type BackfillResult struct {
	Symbol   string `msgpack:"symbol"`
	Upserted int64  `msgpack:"upserted"`
}

// BatchRunner runs two-phase universe batches
type BatchRunner interface {
	RunUniverseBatch(ctx context.Context, symbols []string, lookbackDays int, onPhase orchestrator.PhaseFunc) (*orchestrator.BatchResult, error)
}

// SignalEngine backfills prices and computes signals for one symbol
type SignalEngine interface {
	BackfillPrices(ctx context.Context, symbol string, lookbackDays int) (int64, error)
	ComputeAndPersist(ctx context.Context, symbol string, date time.Time) (*domain.SignalSnapshot, error)
}

// RegisterAllocationJobs registers the universe, price and signal job types.
func RegisterAllocationJobs(registry *Registry, batch BatchRunner, engine SignalEngine) {
	registry.Register(&WorkType{
		ID: TypeUniverseBatch,
		// Per-symbol failures and timeouts end in a partial result, never a failure.
		MaxAttempts: 1,
		Execute: func(ctx context.Context, job *Job) (any, error) {
			var p UniverseBatchPayload
			if err := decodePayload(job, &p); err != nil {
				return nil, err
			}
			return batch.RunUniverseBatch(ctx, p.Symbols, p.LookbackDays, job.SetPhase)
		},
	})

	registry.Register(&WorkType{
		ID:          TypePricesBackfill,
		MaxAttempts: 3,
		Retryable:   domain.IsTransient,
		Execute: func(ctx context.Context, job *Job) (any, error) {
			var p PriceBackfillPayload
			if err := decodePayload(job, &p); err != nil {
				return nil, err
			}
			n, err := engine.BackfillPrices(ctx, p.Symbol, p.LookbackDays)
			if err != nil {
				return nil, err
			}
			return BackfillResult{Symbol: domain.NormalizeSymbol(p.Symbol), Upserted: n}, nil
		},
	})

	registry.Register(&WorkType{
		ID:          TypeSignalsCompute,
		MaxAttempts: 3,
		Retryable:   orchestrator.RetryableTask,
		Execute: func(ctx context.Context, job *Job) (any, error) {
			var p SignalComputePayload
			if err := decodePayload(job, &p); err != nil {
				return nil, err
			}
			date := domain.Today()
			if p.Date != "" {
				date, _ = time.Parse(domain.DateLayout, p.Date)
			}
			return engine.ComputeAndPersist(ctx, p.Symbol, date)
		},
	})
}

// decodePayload unmarshals, defaults and validates a job payload.
// Defaults run after decoding so zero values in the payload are filled.
func decodePayload(job *Job, dst any) error {
	if err := job.Decode(dst); err != nil {
		return fmt.Errorf("invalid %s payload: %w", job.Type, err)
	}
	if err := request.Defaults(dst); err != nil {
		return err
	}
	if err := request.Validate(dst); err != nil {
		return fmt.Errorf("invalid %s payload: %w", job.Type, err)
	}
	return nil
}
