package work

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_FIFO(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, Envelope{ID: "1"}))
	require.NoError(t, q.Push(ctx, Envelope{ID: "2"}))
	assert.Equal(t, 2, q.Len())

	env, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1", env.ID)
	env, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2", env.ID)
}

func TestMemoryQueue_PopHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryQueue_PushBlocksWhenFull(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Push(context.Background(), Envelope{ID: "1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Push(ctx, Envelope{ID: "2"}), context.DeadlineExceeded)
}

func TestMemoryQueue_Close(t *testing.T) {
	q := NewMemoryQueue(1)

	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(context.Background())
		done <- err
	}()

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}
	assert.ErrorIs(t, q.Push(context.Background(), Envelope{ID: "x"}), ErrQueueClosed)
}

func TestEnvelopeCodec(t *testing.T) {
	in := Envelope{ID: "abc", Type: TypeSignalsCompute, Attempts: 2, QueuedAt: time.Date(2024, 6, 28, 1, 30, 0, 0, time.UTC)}

	data, err := encodeEnvelope(in)
	require.NoError(t, err)
	out, err := decodeEnvelope(data)
	require.NoError(t, err)

	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.Attempts, out.Attempts)
	assert.True(t, in.QueuedAt.Equal(out.QueuedAt))

	_, err = decodeEnvelope([]byte{0xc1})
	assert.Error(t, err)
}

func TestRedisQueue_KeyAndClose(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	q := NewRedisQueue(client, "", zerolog.Nop())
	assert.Equal(t, "allocator:jobs", q.Key())

	custom := NewRedisQueue(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}), "test", zerolog.Nop())
	assert.Equal(t, "test:jobs", custom.Key())
	_ = custom.Close()

	_ = q.Close()
	assert.ErrorIs(t, q.Push(context.Background(), Envelope{ID: "x"}), ErrQueueClosed)
	_, err := q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestNewRedisQueueFromURL_InvalidURL(t *testing.T) {
	_, err := NewRedisQueueFromURL(context.Background(), "http://nope", "", zerolog.Nop())
	assert.Error(t, err)
}
