// Package redisqueue keeps deferred notification tasks in a Redis sorted
// set scored by their due time. It is the alternative to the Postgres
// outbox when SCHEDULER_BACKEND=redis.
package redisqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"engage-notify/internal/domain/entity"
	"engage-notify/internal/repository"
)

// DefaultKey is the sorted set used when no key is configured.
const DefaultKey = "engage:deferred_tasks"

// Queue implements repository.DeferredTaskQueue on a sorted set. Members are
// the JSON encoded tasks, scores are run_at in Unix milliseconds.
type Queue struct {
	client redis.UniversalClient
	key    string
	logger *slog.Logger
	now    func() time.Time
}

// New returns a queue on client. An empty key selects DefaultKey.
func New(client redis.UniversalClient, key string, logger *slog.Logger) *Queue {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{client: client, key: key, logger: logger, now: time.Now}
}

var _ repository.DeferredTaskQueue = (*Queue)(nil)

// NewClient connects to addr and verifies the connection.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func (q *Queue) Schedule(ctx context.Context, task *entity.DeferredTask) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = q.now()
	}
	member, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("Schedule: marshal task: %w", err)
	}
	if err := q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(task.RunAt.UnixMilli()),
		Member: string(member),
	}).Err(); err != nil {
		return fmt.Errorf("Schedule: %w", err)
	}
	return nil
}

// ConsumeDue claims up to limit due tasks. A task is claimed by the caller
// whose ZREM removes it, so concurrent sweepers never share a task. A failed
// ZREM stops the claim; the tasks removed before it are returned with the
// error and the rest stay queued for the next sweep.
func (q *Queue) ConsumeDue(ctx context.Context, now time.Time, limit int) ([]*entity.DeferredTask, error) {
	if limit <= 0 {
		limit = 100
	}
	members, err := q.client.ZRangeArgs(ctx, redis.ZRangeArgs{
		Key:     q.key,
		Start:   "-inf",
		Stop:    strconv.FormatInt(now.UnixMilli(), 10),
		ByScore: true,
		Count:   int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("ConsumeDue: %w", err)
	}

	tasks := make([]*entity.DeferredTask, 0, len(members))
	for _, m := range members {
		removed, err := q.client.ZRem(ctx, q.key, m).Result()
		if err != nil {
			q.logger.Warn("deferred task claim interrupted",
				slog.String("key", q.key),
				slog.Int("claimed", len(tasks)),
				slog.Any("error", err))
			return tasks, fmt.Errorf("ConsumeDue: claim: %w", err)
		}
		if removed == 0 {
			continue // claimed by another sweeper
		}
		var t entity.DeferredTask
		if err := json.Unmarshal([]byte(m), &t); err != nil {
			q.logger.Error("dropping undecodable deferred task",
				slog.String("key", q.key),
				slog.Any("error", err))
			continue
		}
		tasks = append(tasks, &t)
	}
	return tasks, nil
}

// Len reports how many tasks are waiting.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.key).Result()
}
