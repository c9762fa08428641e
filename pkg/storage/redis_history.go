package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"img-scraper/pkg/models"
	"img-scraper/pkg/utils"
)

// RedisHistory keeps records in a sorted set scored by completion time (unix seconds)
type RedisHistory struct {
	client *redis.Client
	key    string
	limit  int
	log    *logrus.Entry
}

// NewRedisHistory creates a history on an existing client. The client is owned by the caller.
func NewRedisHistory(client *redis.Client, key string, limit int, log *logrus.Entry) *RedisHistory {
	return &RedisHistory{client: client, key: key, limit: limit, log: log}
}

// Append implements History
func (h *RedisHistory) Append(ctx context.Context, rec models.HistoryRecord) error {
	if !rec.Status.IsValid() {
		return utils.WrapErrorf(utils.ErrParsing, "invalid record status '%s'", rec.Status)
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now()
	}
	member, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: JSON encoding history record: %w", utils.ErrParsing, err)
	}

	_, err = h.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, h.key, redis.Z{Score: float64(rec.CompletedAt.Unix()), Member: member})
		if h.limit > 0 {
			pipe.ZRemRangeByRank(ctx, h.key, 0, int64(-(h.limit + 1)))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: appending to %s: %w", utils.ErrQueue, h.key, err)
	}
	h.log.WithFields(logrus.Fields{"status": rec.Status, "task_url": rec.Task.URL}).Debug("History record stored")
	return nil
}

// Count implements History
func (h *RedisHistory) Count(ctx context.Context) (int64, error) {
	n, err := h.client.ZCard(ctx, h.key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: counting %s: %w", utils.ErrQueue, h.key, err)
	}
	return n, nil
}

// Recent implements History. Members that fail to decode are skipped with a warning.
func (h *RedisHistory) Recent(ctx context.Context, n int) ([]models.HistoryRecord, error) {
	if n <= 0 {
		return nil, nil
	}
	members, err := h.client.ZRevRange(ctx, h.key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", utils.ErrQueue, h.key, err)
	}
	records := make([]models.HistoryRecord, 0, len(members))
	for _, m := range members {
		var rec models.HistoryRecord
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			h.log.Warnf("Skipping undecodable history member: %v", err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Close implements History; the shared client is left open
func (h *RedisHistory) Close() error { return nil }
