package redisqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"engage-notify/internal/domain/entity"
)

func setupQueue(t *testing.T) (*Queue, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, "", nil), mr, client
}

var base = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestQueue_ScheduleAndConsumeDue(t *testing.T) {
	q, _, _ := setupQueue(t)
	ctx := context.Background()

	due := &entity.DeferredTask{
		Kind:             entity.TaskRetry,
		OrderID:          1001,
		NotificationType: entity.TypeOrderShipped,
		LogID:            42,
		Rule:             entity.NotificationRule{Type: entity.TypeOrderShipped, Enabled: true, TemplateName: "shipped_v2", VariableMap: map[int]string{1: "first_name"}},
		RunAt:            base.Add(time.Minute),
	}
	later := &entity.DeferredTask{Kind: entity.TaskDelayedSend, OrderID: 1002, RunAt: base.Add(time.Hour)}
	require.NoError(t, q.Schedule(ctx, due))
	require.NoError(t, q.Schedule(ctx, later))
	assert.NotEmpty(t, due.ID)
	assert.NotEqual(t, due.ID, later.ID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := q.ConsumeDue(ctx, base.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, due.ID, got[0].ID)
	assert.Equal(t, int64(42), got[0].LogID)
	assert.Equal(t, "shipped_v2", got[0].Rule.TemplateName)
	assert.Equal(t, map[int]string{1: "first_name"}, got[0].Rule.VariableMap)
	assert.True(t, got[0].RunAt.Equal(due.RunAt))

	// consumed exactly once
	got, err = q.ConsumeDue(ctx, base.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = q.ConsumeDue(ctx, base.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, later.ID, got[0].ID)
}

func TestQueue_ConsumeDueRespectsLimitAndOrder(t *testing.T) {
	q, _, _ := setupQueue(t)
	ctx := context.Background()

	for i := 3; i >= 1; i-- {
		require.NoError(t, q.Schedule(ctx, &entity.DeferredTask{
			Kind:  entity.TaskRetry,
			LogID: int64(i),
			RunAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := q.ConsumeDue(ctx, base.Add(time.Minute), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].LogID)
	assert.Equal(t, int64(2), got[1].LogID)
}

func TestQueue_ConcurrentSweepersClaimOnce(t *testing.T) {
	q1, mr, _ := setupQueue(t)
	client2 := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client2.Close() })
	q2 := New(client2, "", nil)
	ctx := context.Background()

	const total = 50
	for i := 0; i < total; i++ {
		require.NoError(t, q1.Schedule(ctx, &entity.DeferredTask{Kind: entity.TaskRetry, LogID: int64(i), RunAt: base}))
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
	)
	for _, q := range []*Queue{q1, q2, q1, q2} {
		wg.Add(1)
		go func(q *Queue) {
			defer wg.Done()
			tasks, err := q.ConsumeDue(ctx, base, total)
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			for _, task := range tasks {
				seen[task.ID]++
			}
		}(q)
	}
	wg.Wait()

	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "task %s claimed more than once", id)
	}
}

func TestQueue_DropsUndecodableMembers(t *testing.T) {
	q, _, client := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, client.ZAdd(ctx, DefaultKey, redis.Z{Score: float64(base.UnixMilli()), Member: "not json"}).Err())
	require.NoError(t, q.Schedule(ctx, &entity.DeferredTask{Kind: entity.TaskRetry, LogID: 9, RunAt: base}))

	got, err := q.ConsumeDue(ctx, base, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(9), got[0].LogID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueue_RedisUnavailable(t *testing.T) {
	q, mr, _ := setupQueue(t)
	mr.Close()

	err := q.Schedule(context.Background(), &entity.DeferredTask{Kind: entity.TaskRetry, RunAt: base})
	assert.Error(t, err)

	_, err = q.ConsumeDue(context.Background(), base, 10)
	assert.Error(t, err)
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	client, err := NewClient(context.Background(), addr)
	require.NoError(t, err)
	_ = client.Close()

	mr.Close()
	_, err = NewClient(context.Background(), addr)
	assert.Error(t, err)
}

// failingZRem fails the nth ZREM sent through the client.
type failingZRem struct {
	nth  int32
	seen atomic.Int32
}

func (h *failingZRem) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *failingZRem) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if cmd.Name() == "zrem" && h.seen.Add(1) == h.nth {
			err := errors.New("read: connection reset by peer")
			cmd.SetErr(err)
			return err
		}
		return next(ctx, cmd)
	}
}

func (h *failingZRem) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func TestQueue_ConsumeDueKeepsTasksClaimedBeforeFailure(t *testing.T) {
	q, _, client := setupQueue(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Schedule(ctx, &entity.DeferredTask{
			Kind:  entity.TaskDelayedSend,
			LogID: int64(i),
			RunAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	client.AddHook(&failingZRem{nth: 2})

	got, err := q.ConsumeDue(ctx, base.Add(time.Minute), 10)
	require.Error(t, err)
	require.Len(t, got, 1, "the task removed before the failure is handed back")
	assert.Equal(t, int64(1), got[0].LogID)

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n, "unclaimed tasks stay queued")

	got, err = q.ConsumeDue(ctx, base.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].LogID)
	assert.Equal(t, int64(3), got[1].LogID)
}
