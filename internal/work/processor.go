package work

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/metrics"
	"github.com/aristath/allocator/internal/modules/providers"
)

var (
	// ErrUnknownJobType is returned by Submit for unregistered types.
	ErrUnknownJobType = errors.New("unknown job type")
	// ErrJobNotFound is returned by Get for unknown ids.
	ErrJobNotFound = errors.New("job not found")
)

// storeWriteTimeout bounds a single job state write
const storeWriteTimeout = 10 * time.Second

// JobStore persists job records
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.JobRecord) error
	UpdateJob(ctx context.Context, job *domain.JobRecord) error
	GetJob(ctx context.Context, id string) (*domain.JobRecord, error)
}

// Status is the caller-facing view of a job
type Status struct {
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Result    any             `json:"result,omitempty"`
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	State     domain.JobState `json:"state"`
	Phase     string          `json:"phase,omitempty"`
	Error     string          `json:"error,omitempty"`
	Attempts  int             `json:"attempts"`
}

// StatusOf converts a stored record, decoding its msgpack result.
func StatusOf(rec *domain.JobRecord) Status {
	st := Status{
		ID:        rec.ID,
		Type:      rec.Type,
		State:     rec.State,
		Phase:     rec.Phase,
		Error:     rec.Error,
		Attempts:  rec.Attempts,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	if len(rec.Result) > 0 {
		var v any
		if err := msgpack.Unmarshal(rec.Result, &v); err == nil {
			st.Result = v
		}
	}
	return st
}

// Processor executes queued jobs on a fixed number of workers.
type Processor struct {
	registry *Registry
	queue    Queue
	store    JobStore
	events   *Broadcaster
	backoff  providers.RetryPolicy
	workers  int

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	mu      sync.Mutex
	log     zerolog.Logger
}

// NewProcessor creates a processor. workers < 1 uses DefaultWorkers.
func NewProcessor(registry *Registry, queue Queue, store JobStore, workers int, log zerolog.Logger) *Processor {
	if workers < 1 {
		workers = DefaultWorkers
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		registry: registry,
		queue:    queue,
		store:    store,
		events:   NewBroadcaster(),
		backoff:  providers.TaskRetryPolicy(),
		workers:  workers,
		ctx:      ctx,
		cancel:   cancel,
		log:      log.With().Str("component", "work_processor").Logger(),
	}
}

// WithBackoff replaces the policy whose Delay spaces job retries.
func (p *Processor) WithBackoff(policy providers.RetryPolicy) *Processor {
	p.backoff = policy
	return p
}

// Events returns the broadcaster of job state changes.
func (p *Processor) Events() *Broadcaster {
	return p.events
}

// Registry returns the work type registry.
func (p *Processor) Registry() *Registry {
	return p.registry
}

// Start launches the workers. Calling it twice is a no-op.
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.log.Info().Int("workers", p.workers).Strs("types", p.registry.IDs()).Msg("Work processor started")
}

// Stop cancels running jobs and waits for the workers to exit.
func (p *Processor) Stop() {
	p.cancel()
	p.wg.Wait()
	p.log.Info().Msg("Work processor stopped")
}

// Submit persists a pending job and queues it.
func (p *Processor) Submit(ctx context.Context, jobType string, payload any) (string, error) {
	if !p.registry.Has(jobType) {
		return "", fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}

	data, err := msgpack.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	rec := &domain.JobRecord{
		ID:      uuid.NewString(),
		Type:    jobType,
		State:   domain.JobPending,
		Payload: data,
	}
	if err := p.store.CreateJob(ctx, rec); err != nil {
		return "", err
	}

	if err := p.queue.Push(ctx, Envelope{ID: rec.ID, Type: jobType, QueuedAt: time.Now().UTC()}); err != nil {
		rec.State = domain.JobFailed
		rec.Error = "enqueue: " + err.Error()
		p.save(rec)
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	p.log.Debug().Str("job_id", rec.ID).Str("type", jobType).Msg("Job submitted")
	p.events.Publish(*rec)
	return rec.ID, nil
}

// Get returns the current status of a job.
func (p *Processor) Get(ctx context.Context, id string) (*Status, error) {
	rec, err := p.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	st := StatusOf(rec)
	return &st, nil
}

func (p *Processor) worker(id int) {
	defer p.wg.Done()

	for {
		env, err := p.queue.Pop(p.ctx)
		if err != nil {
			if p.ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				return
			}
			p.log.Error().Err(err).Int("worker", id).Msg("Queue pop failed")
			continue
		}
		p.execute(env)
	}
}

func (p *Processor) execute(env Envelope) {
	wt := p.registry.Get(env.Type)

	rec, err := p.load(env.ID)
	if err != nil {
		p.log.Error().Err(err).Str("job_id", env.ID).Msg("Failed to load job")
		return
	}
	if rec == nil {
		p.log.Warn().Str("job_id", env.ID).Msg("Dropping envelope for unknown job")
		return
	}
	if rec.State.Terminal() {
		return
	}
	if wt == nil {
		rec.State = domain.JobFailed
		rec.Error = fmt.Sprintf("%s: %s", ErrUnknownJobType, env.Type)
		p.finish(rec)
		return
	}

	var mu sync.Mutex
	rec.State = domain.JobRunning
	rec.Attempts++
	rec.Error = ""
	p.save(rec)
	p.events.Publish(*rec)

	job := &Job{
		ID:      rec.ID,
		Type:    rec.Type,
		Payload: rec.Payload,
		Attempt: rec.Attempts,
		SetPhase: func(phase string) {
			mu.Lock()
			defer mu.Unlock()
			rec.Phase = phase
			p.save(rec)
			p.events.Publish(*rec)
		},
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(p.ctx, wt.timeout())
	result, err := runSafely(ctx, wt, job)
	cancel()

	mu.Lock()
	defer mu.Unlock()

	if err == nil {
		data, encErr := msgpack.Marshal(result)
		if encErr != nil {
			err = fmt.Errorf("encode result: %w", encErr)
		} else {
			rec.State = domain.JobSucceeded
			rec.Result = data
			p.log.Info().Str("job_id", rec.ID).Str("type", rec.Type).Dur("duration", time.Since(start)).Msg("Job succeeded")
			p.finish(rec)
			return
		}
	}

	rec.Error = err.Error()
	if rec.Attempts < wt.attempts() && wt.retryable(err) && p.ctx.Err() == nil {
		rec.State = domain.JobRetrying
		delay := p.backoff.Delay(rec.Attempts)
		p.log.Warn().Err(err).Str("job_id", rec.ID).Int("attempt", rec.Attempts).Dur("delay", delay).Msg("Job failed, retrying")
		p.save(rec)
		p.events.Publish(*rec)
		p.requeueAfter(Envelope{ID: rec.ID, Type: rec.Type, Attempts: rec.Attempts, QueuedAt: time.Now().UTC()}, delay)
		return
	}

	rec.State = domain.JobFailed
	p.log.Error().Err(err).Str("job_id", rec.ID).Str("type", rec.Type).Int("attempts", rec.Attempts).Msg("Job failed")
	p.finish(rec)
}

func runSafely(ctx context.Context, wt *WorkType, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return wt.Execute(ctx, job)
}

func (p *Processor) requeueAfter(env Envelope, delay time.Duration) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
		}

		if err := p.queue.Push(p.ctx, env); err != nil && p.ctx.Err() == nil {
			p.log.Error().Err(err).Str("job_id", env.ID).Msg("Failed to requeue job")
		}
	}()
}

func (p *Processor) finish(rec *domain.JobRecord) {
	metrics.Jobs.WithLabelValues(rec.Type, string(rec.State)).Inc()
	p.save(rec)
	p.events.Publish(*rec)
}

func (p *Processor) load(id string) (*domain.JobRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()
	return p.store.GetJob(ctx, id)
}

// save writes outside the processor context so shutdown still records state
func (p *Processor) save(rec *domain.JobRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()
	if err := p.store.UpdateJob(ctx, rec); err != nil {
		p.log.Error().Err(err).Str("job_id", rec.ID).Msg("Failed to persist job state")
	}
}
