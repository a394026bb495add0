// Package eventsource turns inbound order and account events into
// dispatcher calls. Transports (HTTP, NATS, Kafka) decode nothing
// themselves; they hand raw payloads to a Handler.
package eventsource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"engage-notify/internal/domain/entity"
	"engage-notify/internal/repository"
)

// ErrInvalidEvent marks a payload that cannot be dispatched. Transports
// acknowledge such messages; redelivery would not fix them.
var ErrInvalidEvent = errors.New("invalid event")

// Dispatcher is the notification entry point. *notify.Dispatcher
// implements it.
type Dispatcher interface {
	OnOrderStatusChanged(ctx context.Context, ev entity.StatusChange)
	OnAccountEvent(ctx context.Context, ev entity.AccountEvent)
}

// Handler accepts raw event payloads.
type Handler interface {
	HandleStatusChange(ctx context.Context, data []byte) error
	HandleAccountEvent(ctx context.Context, data []byte) error
}

// Ingestor stores the order snapshot carried by an event and dispatches it.
type Ingestor struct {
	orders     repository.OrderRepository
	dispatcher Dispatcher
	logger     *slog.Logger
}

var _ Handler = (*Ingestor)(nil)

func NewIngestor(orders repository.OrderRepository, d Dispatcher, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{orders: orders, dispatcher: d, logger: logger}
}

func (i *Ingestor) HandleStatusChange(ctx context.Context, data []byte) error {
	var ev entity.StatusChange
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("%w: decode status change: %v", ErrInvalidEvent, err)
	}
	return i.StatusChanged(ctx, ev)
}

func (i *Ingestor) HandleAccountEvent(ctx context.Context, data []byte) error {
	var ev entity.AccountEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("%w: decode account event: %v", ErrInvalidEvent, err)
	}
	return i.AccountEvent(ctx, ev)
}

// StatusChanged validates a decoded transition, upserts the order snapshot
// and dispatches. Only validation problems are returned; dispatch outcomes
// live in the delivery log.
func (i *Ingestor) StatusChanged(ctx context.Context, ev entity.StatusChange) error {
	ev.NewStatus = strings.TrimSpace(ev.NewStatus)
	if ev.Order != nil {
		if ev.Order.ID == 0 {
			ev.Order.ID = ev.OrderID
		}
		if ev.OrderID == 0 {
			ev.OrderID = ev.Order.ID
		}
		if ev.NewStatus == "" {
			ev.NewStatus = ev.Order.Status
		}
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if ev.Order.Status == "" {
		ev.Order.Status = ev.NewStatus
	}

	if i.orders != nil {
		if err := i.orders.Upsert(ctx, ev.Order); err != nil {
			i.logger.Warn("failed to store order snapshot",
				slog.Int64("order_id", ev.OrderID),
				slog.Any("error", err))
		}
	}

	i.logger.Info("order status changed",
		slog.Int64("order_id", ev.OrderID),
		slog.String("old_status", ev.OldStatus),
		slog.String("new_status", ev.NewStatus))
	i.dispatcher.OnOrderStatusChanged(ctx, ev)
	return nil
}

// AccountEvent validates and dispatches a non-order customer event.
func (i *Ingestor) AccountEvent(ctx context.Context, ev entity.AccountEvent) error {
	ev.Type = strings.TrimSpace(ev.Type)
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	i.logger.Info("account event received", slog.String("type", ev.Type))
	i.dispatcher.OnAccountEvent(ctx, ev)
	return nil
}
