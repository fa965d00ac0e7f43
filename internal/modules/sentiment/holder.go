package sentiment

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/aristath/allocator/internal/domain"
)

// InitFunc builds the primary classifier. It is called until it succeeds or
// fails permanently.
type InitFunc func(ctx context.Context) (domain.SentimentClassifier, error)

type holderState int32

const (
	stateUninitialized holderState = iota
	stateReady
	stateUnavailable
)

func (s holderState) String() string {
	switch s {
	case stateReady:
		return "ready"
	case stateUnavailable:
		return "unavailable"
	default:
		return "uninitialized"
	}
}

// modelHolder lazily initializes the classifier and caches either the handle
// or a permanent failure for its whole lifetime. Cancellation and transient
// errors leave it uninitialized so a later call tries again.
type modelHolder struct {
	mu         sync.Mutex
	state      atomic.Int32
	classifier domain.SentimentClassifier
	init       InitFunc
	initErr    error
}

func newModelHolder(init InitFunc) *modelHolder {
	h := &modelHolder{init: init}
	if init == nil {
		h.state.Store(int32(stateUnavailable))
	}
	return h
}

func (h *modelHolder) current() holderState {
	return holderState(h.state.Load())
}

// get returns the classifier, initializing it on first use
func (h *modelHolder) get(ctx context.Context) (domain.SentimentClassifier, bool) {
	switch h.current() {
	case stateReady:
		return h.classifier, true
	case stateUnavailable:
		return nil, false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Another caller may have finished while we waited
	switch h.current() {
	case stateReady:
		return h.classifier, true
	case stateUnavailable:
		return nil, false
	}

	clf, err := h.init(ctx)
	if err != nil && (ctx.Err() != nil || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) || domain.IsTransient(err)) {
		h.initErr = err
		return nil, false
	}
	if err != nil || clf == nil {
		h.initErr = err
		h.state.Store(int32(stateUnavailable))
		return nil, false
	}

	h.classifier = clf
	h.state.Store(int32(stateReady))
	return clf, true
}
