package repository

import (
	"context"
	"time"

	"engage-notify/internal/domain/entity"
)

// DeferredTaskQueue is the durable delayed-work queue used for scheduled
// sends and retries.
//
// ConsumeDue removes every returned task from the queue before returning it,
// so a task is handed to exactly one consumer even when several workers sweep
// concurrently. When claiming fails partway, the tasks already removed are
// returned together with the error and the caller must still run them.
type DeferredTaskQueue interface {
	Schedule(ctx context.Context, task *entity.DeferredTask) error
	ConsumeDue(ctx context.Context, now time.Time, limit int) ([]*entity.DeferredTask, error)
}
