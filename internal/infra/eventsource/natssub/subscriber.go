// Package natssub feeds order and account events published on NATS into
// the dispatcher.
package natssub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"engage-notify/internal/infra/eventsource"
)

// Default subjects and queue group.
const (
	SubjectStatusChanged = "orders.status_changed"
	SubjectAccountEvent  = "accounts.events"
	DefaultQueueGroup    = "engage-notify"
)

const handleTimeout = 60 * time.Second

// Connect dials url with reconnects enabled.
func Connect(url string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url,
		nats.Name("engage-notify"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// Subscriber consumes both event subjects through one queue group, so
// several workers share the stream.
type Subscriber struct {
	nc      *nats.Conn
	handler eventsource.Handler
	logger  *slog.Logger
	queue   string

	mu   sync.Mutex
	subs []*nats.Subscription
}

func New(nc *nats.Conn, h eventsource.Handler, logger *slog.Logger) *Subscriber {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{nc: nc, handler: h, logger: logger, queue: DefaultQueueGroup}
}

// Start subscribes to both subjects. ctx bounds message handling; cancel it
// and call Stop to shut down.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	routes := map[string]func(context.Context, []byte) error{
		SubjectStatusChanged: s.handler.HandleStatusChange,
		SubjectAccountEvent:  s.handler.HandleAccountEvent,
	}
	for subject, fn := range routes {
		sub, err := s.nc.QueueSubscribe(subject, s.queue, s.messageHandler(ctx, subject, fn))
		if err != nil {
			s.unsubscribeLocked()
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		s.subs = append(s.subs, sub)
	}
	s.logger.Info("NATS subscriber started",
		slog.String("queue", s.queue),
		slog.Int("subjects", len(routes)))
	return nil
}

// messageHandler wraps fn as a NATS callback. Failures are logged and the
// message is dropped.
func (s *Subscriber) messageHandler(ctx context.Context, subject string, fn func(context.Context, []byte) error) nats.MsgHandler {
	return func(msg *nats.Msg) {
		hctx, cancel := context.WithTimeout(ctx, handleTimeout)
		defer cancel()

		if err := fn(hctx, msg.Data); err != nil {
			level := slog.LevelError
			if errors.Is(err, eventsource.ErrInvalidEvent) {
				level = slog.LevelWarn
			}
			s.logger.Log(hctx, level, "failed to handle NATS message",
				slog.String("subject", subject),
				slog.Int("bytes", len(msg.Data)),
				slog.Any("error", err))
		}
	}
}

// Stop drains the subscriptions so in-flight messages finish.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubscribeLocked()
}

func (s *Subscriber) unsubscribeLocked() {
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			s.logger.Warn("failed to drain NATS subscription",
				slog.String("subject", sub.Subject),
				slog.Any("error", err))
		}
	}
	s.subs = nil
}
