// Package deliverylog serves the read-only delivery log endpoints.
package deliverylog

import (
	"context"
	"net/http"

	"engage-notify/internal/domain/entity"
)

// Reader is the slice of the delivery log repository these handlers use.
type Reader interface {
	Get(ctx context.Context, id int64) (*entity.DeliveryAttempt, error)
	List(ctx context.Context, f entity.LogFilter) ([]*entity.DeliveryAttempt, int64, error)
	Stats(ctx context.Context, days int) (entity.LogStats, error)
	RecentErrors(ctx context.Context, limit int) ([]*entity.DeliveryAttempt, error)
	ListScheduled(ctx context.Context, limit int) ([]*entity.DeliveryAttempt, error)
}

// Register mounts the /logs routes on mux.
func Register(mux *http.ServeMux, logs Reader) {
	mux.Handle("GET /logs", ListHandler{logs})
	mux.Handle("GET /logs/stats", StatsHandler{logs})
	mux.Handle("GET /logs/errors", ErrorsHandler{logs})
	mux.Handle("GET /logs/scheduled", ScheduledHandler{logs})
	mux.Handle("GET /logs/{id}", GetHandler{logs})
}
