package work

import (
	"context"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/allocator/internal/domain"
)

// WorkTimeout is the maximum duration a job attempt can run before being cancelled.
const WorkTimeout = 30 * time.Minute

// DefaultWorkers is the worker count when none is configured.
const DefaultWorkers = 4

// Job types
const (
	TypeUniverseBatch  = "universe:batch"
	TypePricesBackfill = "prices:backfill"
	TypeSignalsCompute = "signals:compute"
)

// Job is what a WorkType's Execute receives
type Job struct {
	ID      string
	Type    string
	Payload []byte
	Attempt int
	// SetPhase records a sub-state of a running job (e.g. "backfill")
	SetPhase func(phase string)
}

// Decode unmarshals the msgpack payload into dst.
func (j *Job) Decode(dst any) error {
	return msgpack.Unmarshal(j.Payload, dst)
}

// WorkType defines a type of job that can be executed.
type WorkType struct {
	// ID is the job type (e.g., "universe:batch").
	ID string

	// MaxAttempts bounds executions of one job; 0 or 1 means no retry.
	MaxAttempts int

	// Retryable decides whether a failed attempt is worth repeating.
	// Defaults to domain.IsTransient.
	Retryable func(error) bool

	// Timeout overrides WorkTimeout for one attempt.
	Timeout time.Duration

	// Execute runs one attempt. The returned value is msgpack-encoded as the job result.
	Execute func(ctx context.Context, job *Job) (any, error)
}

func (wt *WorkType) attempts() int {
	if wt.MaxAttempts < 1 {
		return 1
	}
	return wt.MaxAttempts
}

func (wt *WorkType) retryable(err error) bool {
	if wt.Retryable != nil {
		return wt.Retryable(err)
	}
	return domain.IsTransient(err)
}

func (wt *WorkType) timeout() time.Duration {
	if wt.Timeout > 0 {
		return wt.Timeout
	}
	return WorkTimeout
}

// Envelope is the queued reference to a persisted job
type Envelope struct {
	ID       string    `msgpack:"id"`
	Type     string    `msgpack:"type"`
	Attempts int       `msgpack:"attempts"`
	QueuedAt time.Time `msgpack:"queued_at"`
}
