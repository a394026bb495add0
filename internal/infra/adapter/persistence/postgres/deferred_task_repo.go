package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"engage-notify/internal/domain/entity"
	"engage-notify/internal/repository"
)

// DeferredTaskRepo is the Postgres outbox behind repository.DeferredTaskQueue.
type DeferredTaskRepo struct{ db DBTX }

func NewDeferredTaskRepo(db DBTX) repository.DeferredTaskQueue {
	return &DeferredTaskRepo{db: db}
}

func (repo *DeferredTaskRepo) Schedule(ctx context.Context, task *entity.DeferredTask) error {
	const query = `
INSERT INTO deferred_tasks (kind, order_id, notification_type, log_id, rule_snapshot, run_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at`
	rule, err := json.Marshal(task.Rule)
	if err != nil {
		return fmt.Errorf("Schedule: marshal rule: %w", err)
	}

	var id int64
	if err := repo.db.QueryRowContext(ctx, query,
		task.Kind, task.OrderID, task.NotificationType, task.LogID, string(rule), task.RunAt,
	).Scan(&id, &task.CreatedAt); err != nil {
		return fmt.Errorf("Schedule: %w", err)
	}
	task.ID = strconv.FormatInt(id, 10)
	return nil
}

// ConsumeDue deletes and returns up to limit tasks whose run_at has passed.
// Rows locked by a concurrent sweep are skipped, so each task is returned
// to exactly one caller.
func (repo *DeferredTaskRepo) ConsumeDue(ctx context.Context, now time.Time, limit int) ([]*entity.DeferredTask, error) {
	const query = `
WITH due AS (
    SELECT id
    FROM deferred_tasks
    WHERE run_at <= $1
    ORDER BY run_at
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
DELETE FROM deferred_tasks t
USING due
WHERE t.id = due.id
RETURNING t.id, t.kind, t.order_id, t.notification_type, t.log_id, t.rule_snapshot, t.run_at, t.created_at`
	rows, err := repo.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("ConsumeDue: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]*entity.DeferredTask, 0, limit)
	for rows.Next() {
		var (
			t    entity.DeferredTask
			id   int64
			rule []byte
		)
		// rows are deleted already; hand back what was decoded so far
		if err := rows.Scan(&id, &t.Kind, &t.OrderID, &t.NotificationType, &t.LogID, &rule, &t.RunAt, &t.CreatedAt); err != nil {
			return tasks, fmt.Errorf("ConsumeDue: %w", err)
		}
		if err := json.Unmarshal(rule, &t.Rule); err != nil {
			return tasks, fmt.Errorf("ConsumeDue: unmarshal rule: %w", err)
		}
		t.ID = strconv.FormatInt(id, 10)
		tasks = append(tasks, &t)
	}
	if err := rows.Err(); err != nil {
		return tasks, fmt.Errorf("ConsumeDue: %w", err)
	}
	return tasks, nil
}
