package repository

import (
	"context"

	"engage-notify/internal/domain/entity"
)

// DeliveryLogRepository is the durable record of notification attempts and
// the only source of truth for idempotency.
type DeliveryLogRepository interface {
	// Record inserts a new attempt and returns its id. Failures are returned
	// as *entity.StorageError.
	Record(ctx context.Context, attempt *entity.DeliveryAttempt) (int64, error)
	// UpdateStatus writes only the fields set on upd.
	UpdateStatus(ctx context.Context, id int64, upd entity.StatusUpdate) error
	// WasSuccessfullySent reports whether a success row exists for the pair.
	WasSuccessfullySent(ctx context.Context, orderID int64, templateName string) (bool, error)
	// Get returns (nil, nil) when the row does not exist.
	Get(ctx context.Context, id int64) (*entity.DeliveryAttempt, error)
	List(ctx context.Context, filter entity.LogFilter) ([]*entity.DeliveryAttempt, int64, error)
	Stats(ctx context.Context, days int) (entity.LogStats, error)
	RecentErrors(ctx context.Context, limit int) ([]*entity.DeliveryAttempt, error)
	CleanupOlderThan(ctx context.Context, days int) (int64, error)
	// FindScheduled returns the latest scheduled row for the order and
	// notification type, or (nil, nil).
	FindScheduled(ctx context.Context, orderID int64, notificationType string) (*entity.DeliveryAttempt, error)
	ListScheduled(ctx context.Context, limit int) ([]*entity.DeliveryAttempt, error)
}
