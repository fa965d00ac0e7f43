package work

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Push and Pop once a queue is closed.
var ErrQueueClosed = errors.New("queue closed")

// Queue carries job envelopes from Submit to the workers.
type Queue interface {
	Push(ctx context.Context, env Envelope) error
	// Pop blocks until an envelope is available, ctx is done or the queue closes.
	Pop(ctx context.Context) (Envelope, error)
	Close() error
}

// DefaultMemoryQueueSize is the buffer of a MemoryQueue when none is given.
const DefaultMemoryQueueSize = 256

// MemoryQueue is a single-process queue over a buffered channel.
type MemoryQueue struct {
	ch        chan Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue creates a queue buffering up to size envelopes.
func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = DefaultMemoryQueueSize
	}
	return &MemoryQueue{
		ch:     make(chan Envelope, size),
		closed: make(chan struct{}),
	}
}

// Push blocks while the buffer is full.
func (q *MemoryQueue) Push(ctx context.Context, env Envelope) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closed:
		return ErrQueueClosed
	case q.ch <- env:
		return nil
	}
}

func (q *MemoryQueue) Pop(ctx context.Context) (Envelope, error) {
	select {
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	case <-q.closed:
		return Envelope{}, ErrQueueClosed
	case env := <-q.ch:
		return env, nil
	}
}

// Len returns the number of buffered envelopes.
func (q *MemoryQueue) Len() int {
	return len(q.ch)
}

// Close wakes every blocked Pop. Buffered envelopes are dropped; their jobs
// stay pending in the store.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}
