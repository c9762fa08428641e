package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"img-scraper/pkg/config"
	"img-scraper/pkg/utils"
)

// RedisQueue is a Queue on a Redis list: LPUSH to enqueue, BRPOP to dequeue
type RedisQueue struct {
	client *redis.Client
	key    string
	log    *logrus.Entry
}

// NewRedisClient connects to the configured Redis and verifies the connection with PING
func NewRedisClient(ctx context.Context, cfg config.QueueConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: connecting to redis at %s: %w", utils.ErrQueue, cfg.RedisAddr(), err)
	}
	return client, nil
}

// NewRedisQueue creates a queue on key. The client is owned by the caller.
func NewRedisQueue(client *redis.Client, key string, log *logrus.Entry) *RedisQueue {
	return &RedisQueue{client: client, key: key, log: log}
}

// Push implements Queue
func (q *RedisQueue) Push(ctx context.Context, payload []byte) error {
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("%w: LPUSH %s: %w", utils.ErrQueue, q.key, err)
	}
	return nil
}

// Pop implements Queue. Redis rounds timeouts below one second up to one second.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, bool, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, false, ctxErr
		}
		return nil, false, fmt.Errorf("%w: BRPOP %s: %w", utils.ErrQueue, q.key, err)
	}
	// BRPOP replies with [key, value]
	if len(res) != 2 {
		return nil, false, fmt.Errorf("%w: unexpected BRPOP reply of %d elements", utils.ErrQueue, len(res))
	}
	return []byte(res[1]), true, nil
}

// Len implements Queue
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: LLEN %s: %w", utils.ErrQueue, q.key, err)
	}
	return n, nil
}

// Clear implements Queue by deleting the list key
func (q *RedisQueue) Clear(ctx context.Context) (int64, error) {
	n, err := q.client.Del(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: DEL %s: %w", utils.ErrQueue, q.key, err)
	}
	q.log.Infof("Queue cleared, deleted %d keys", n)
	return n, nil
}

// Close implements Queue; the shared client is left open
func (q *RedisQueue) Close() error { return nil }
