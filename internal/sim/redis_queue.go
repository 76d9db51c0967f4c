package sim

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yukistavailable/NeuralTailor/internal/config"
	"github.com/yukistavailable/NeuralTailor/internal/log"
)

const (
	redisQueueKey      = "neuraltailor:simqueue"
	redisProcessingKey = "neuraltailor:simqueue:processing"
	redisDeadlinesKey  = "neuraltailor:simqueue:deadlines"

	defaultVisibilityTimeout = 5 * time.Minute
	popBlockInterval         = time.Second
)

// RedisQueue is the redis-backed work queue: push with LPUSH, reliable pop
// through a processing list, stale processing entries requeued after the
// visibility timeout.
type RedisQueue struct {
	client     *redis.Client
	visibility time.Duration
}

// NewRedisQueue connects the redis queue backend.
func NewRedisQueue(cfg config.QueueConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis queue: %w", err)
	}
	visibility := cfg.VisibilityTimeout
	if visibility <= 0 {
		visibility = defaultVisibilityTimeout
	}
	return &RedisQueue{client: client, visibility: visibility}, nil
}

// Push appends an item to the queue.
func (q *RedisQueue) Push(ctx context.Context, item string) error {
	return q.client.LPush(ctx, redisQueueKey, item).Err()
}

// Pop blocks until an item is available, moving it to the processing list
// and recording its visibility deadline.
func (q *RedisQueue) Pop(ctx context.Context) (string, error) {
	for {
		item, err := q.client.BRPopLPush(ctx, redisQueueKey, redisProcessingKey, popBlockInterval).Result()
		if errors.Is(err, redis.Nil) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			continue
		}
		if err != nil {
			return "", err
		}
		deadline := time.Now().Add(q.visibility).UnixMilli()
		if err := q.client.HSet(ctx, redisDeadlinesKey, item, deadline).Err(); err != nil {
			return "", err
		}
		return item, nil
	}
}

// Ack removes a popped item from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, item string) error {
	if err := q.client.LRem(ctx, redisProcessingKey, 1, item).Err(); err != nil {
		return err
	}
	return q.client.HDel(ctx, redisDeadlinesKey, item).Err()
}

// RequeueStale returns processing entries whose visibility deadline passed
// back to the queue. Returns the number of requeued items.
func (q *RedisQueue) RequeueStale(ctx context.Context) (int, error) {
	deadlines, err := q.client.HGetAll(ctx, redisDeadlinesKey).Result()
	if err != nil {
		return 0, err
	}

	now := time.Now().UnixMilli()
	requeued := 0
	for item, raw := range deadlines {
		deadline, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || deadline > now {
			continue
		}
		removed, err := q.client.LRem(ctx, redisProcessingKey, 1, item).Result()
		if err != nil {
			return requeued, err
		}
		if removed > 0 {
			if err := q.client.LPush(ctx, redisQueueKey, item).Err(); err != nil {
				return requeued, err
			}
			requeued++
		}
		if err := q.client.HDel(ctx, redisDeadlinesKey, item).Err(); err != nil {
			return requeued, err
		}
	}
	if requeued > 0 {
		logger := log.WithComponent("sim")
		logger.Warn().Str("event", "sim.queue_requeue").
			Int("count", requeued).Msg("requeued stale processing entries")
	}
	return requeued, nil
}

// Len reports the pending item count.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, redisQueueKey).Result()
	return int(n), err
}

// Close releases the redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
