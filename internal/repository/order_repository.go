package repository

import (
	"context"

	"engage-notify/internal/domain/entity"
)

// OrderRepository keeps the latest order snapshot received from the event
// source so deferred work can re-read it.
type OrderRepository interface {
	Upsert(ctx context.Context, order *entity.Order) error
	// Get returns (nil, nil) when the order is unknown.
	Get(ctx context.Context, id int64) (*entity.Order, error)
}
