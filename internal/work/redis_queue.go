package work

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultRedisPrefix namespaces queue keys
const DefaultRedisPrefix = "allocator"

// redisPopTimeout bounds a single BRPOP so Close is noticed promptly
const redisPopTimeout = time.Second

// RedisQueue is a queue shared by every process using the same Redis:
// producers LPUSH msgpack envelopes onto {prefix}:jobs, workers BRPOP them.
type RedisQueue struct {
	client    redis.UniversalClient
	key       string
	closed    chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger
}

// NewRedisQueue creates a queue on client. An empty prefix uses DefaultRedisPrefix.
func NewRedisQueue(client redis.UniversalClient, prefix string, log zerolog.Logger) *RedisQueue {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisQueue{
		client: client,
		key:    queueKey(prefix),
		closed: make(chan struct{}),
		log:    log.With().Str("component", "redis_queue").Logger(),
	}
}

// NewRedisQueueFromURL parses a redis:// URL and pings the server.
func NewRedisQueueFromURL(ctx context.Context, url, prefix string, log zerolog.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisQueue(client, prefix, log), nil
}

func queueKey(prefix string) string {
	return prefix + ":jobs"
}

// Key returns the Redis list holding queued envelopes.
func (q *RedisQueue) Key() string {
	return q.key
}

func encodeEnvelope(env Envelope) ([]byte, error) {
	return msgpack.Marshal(env)
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := msgpack.Unmarshal(data, &env)
	return env, err
}

func (q *RedisQueue) Push(ctx context.Context, env Envelope) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	data, err := encodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("lpush: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (Envelope, error) {
	for {
		select {
		case <-q.closed:
			return Envelope{}, ErrQueueClosed
		case <-ctx.Done():
			return Envelope{}, ctx.Err()
		default:
		}

		result, err := q.client.BRPop(ctx, redisPopTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return Envelope{}, ctx.Err()
			}
			q.log.Error().Err(err).Msg("BRPOP failed")
			if err := sleepOrDone(ctx, q.closed, redisPopTimeout); err != nil {
				return Envelope{}, err
			}
			continue
		}
		if len(result) < 2 {
			continue
		}

		env, err := decodeEnvelope([]byte(result[1]))
		if err != nil {
			q.log.Error().Err(err).Msg("Dropping undecodable envelope")
			continue
		}
		return env, nil
	}
}

// Close stops Pop; the shared client is closed too.
func (q *RedisQueue) Close() error {
	var err error
	q.closeOnce.Do(func() {
		close(q.closed)
		err = q.client.Close()
	})
	return err
}

func sleepOrDone(ctx context.Context, closed <-chan struct{}, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-closed:
		return ErrQueueClosed
	case <-timer.C:
		return nil
	}
}
