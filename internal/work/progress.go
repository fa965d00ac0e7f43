package work

import (
	"sync"

	"github.com/aristath/allocator/internal/domain"
)

// subscriberBuffer is the per-subscriber backlog before updates are dropped
const subscriberBuffer = 16

// Broadcaster fans job state changes out to subscribers of a job id.
// Slow subscribers miss intermediate updates rather than block workers.
type Broadcaster struct {
	subs map[string]map[chan domain.JobRecord]struct{}
	mu   sync.Mutex
}

// NewBroadcaster creates an empty broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[chan domain.JobRecord]struct{}),
	}
}

// Subscribe returns a channel of updates for job id and a cancel func that
// must be called to release it.
func (b *Broadcaster) Subscribe(id string) (<-chan domain.JobRecord, func()) {
	ch := make(chan domain.JobRecord, subscriberBuffer)

	b.mu.Lock()
	if b.subs[id] == nil {
		b.subs[id] = make(map[chan domain.JobRecord]struct{})
	}
	b.subs[id][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if set, ok := b.subs[id]; ok {
				if _, ok := set[ch]; ok {
					delete(set, ch)
					close(ch)
				}
				if len(set) == 0 {
					delete(b.subs, id)
				}
			}
		})
	}
	return ch, cancel
}

// Publish delivers rec to every subscriber of rec.ID without blocking.
// Terminal records close the subscriptions after delivery.
func (b *Broadcaster) Publish(rec domain.JobRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set := b.subs[rec.ID]
	for ch := range set {
		select {
		case ch <- rec:
		default:
		}
		if rec.State.Terminal() {
			close(ch)
		}
	}
	if rec.State.Terminal() {
		delete(b.subs, rec.ID)
	}
}

// Subscribers returns the number of open subscriptions for id
func (b *Broadcaster) Subscribers(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[id])
}
