package work

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aristath/allocator/internal/domain"
)

func TestBroadcaster_DeliversAndClosesOnTerminal(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("job-1")
	defer cancel()

	b.Publish(domain.JobRecord{ID: "job-2", State: domain.JobRunning})
	b.Publish(domain.JobRecord{ID: "job-1", State: domain.JobRunning, Phase: "backfill"})
	b.Publish(domain.JobRecord{ID: "job-1", State: domain.JobSucceeded})

	first, ok := <-ch
	assert.True(t, ok)
	assert.Equal(t, "backfill", first.Phase)

	last, ok := <-ch
	assert.True(t, ok)
	assert.Equal(t, domain.JobSucceeded, last.State)

	_, ok = <-ch
	assert.False(t, ok, "channel closes after a terminal state")
	assert.Equal(t, 0, b.Subscribers("job-1"))
}

func TestBroadcaster_CancelReleases(t *testing.T) {
	b := NewBroadcaster()
	ch, cancel := b.Subscribe("job-1")
	assert.Equal(t, 1, b.Subscribers("job-1"))

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, b.Subscribers("job-1"))

	b.Publish(domain.JobRecord{ID: "job-1", State: domain.JobFailed})
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroadcaster()
	_, cancel := b.Subscribe("job-1")
	defer cancel()

	for i := 0; i < subscriberBuffer*3; i++ {
		b.Publish(domain.JobRecord{ID: "job-1", State: domain.JobRunning, Attempts: i})
	}
	assert.Equal(t, 1, b.Subscribers("job-1"))
}
