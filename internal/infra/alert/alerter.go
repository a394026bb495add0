// Package alert posts operator alerts to chat webhooks when a WhatsApp
// notification fails for good. Discord and Slack are supported; both are
// optional and an Alerter without channels does nothing.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"engage-notify/internal/domain/entity"
)

// ErrThrottled is returned when a channel's local rate limit drops an alert.
var ErrThrottled = errors.New("alert dropped by rate limit")

// Channel delivers one alert to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, f entity.DeliveryFailure) error
}

// Alerter fans a failure out to every configured channel. It satisfies
// notify.Alerter.
type Alerter struct {
	channels   []Channel
	timeout    time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
}

// New returns an Alerter. A zero timeout means 5s.
func New(logger *slog.Logger, timeout time.Duration, channels ...Channel) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Alerter{
		channels:   channels,
		timeout:    timeout,
		retryDelay: time.Second,
		logger:     logger,
	}
}

// Enabled reports whether any channel is configured.
func (a *Alerter) Enabled() bool { return len(a.channels) > 0 }

// DeliveryFailed sends f to every channel. Errors are logged and counted,
// never returned. The whole fan-out is bounded by the alerter timeout and
// survives cancellation of ctx.
func (a *Alerter) DeliveryFailed(ctx context.Context, f entity.DeliveryFailure) {
	if len(a.channels) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()

	alertID := uuid.NewString()
	for _, ch := range a.channels {
		logger := a.logger.With(
			slog.String("alert_id", alertID),
			slog.String("channel", ch.Name()),
			slog.Int64("order_id", f.OrderID),
			slog.Int64("log_id", f.LogID))

		err := a.sendWithRetry(ctx, ch, f)
		switch {
		case err == nil:
			recordAlert(ch.Name(), resultSent)
			logger.Info("failure alert sent")
		case errors.Is(err, ErrThrottled):
			recordAlert(ch.Name(), resultThrottled)
			logger.Warn("failure alert throttled")
		default:
			recordAlert(ch.Name(), resultFailed)
			logger.Error("failure alert not delivered", slog.Any("error", err))
		}
	}
}

// sendWithRetry makes at most two attempts. Only server and network errors
// are retried; a 429 is not waited out.
func (a *Alerter) sendWithRetry(ctx context.Context, ch Channel, f entity.DeliveryFailure) error {
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := ch.Send(ctx, f)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) || attempt == maxAttempts {
			break
		}
		select {
		case <-time.After(a.retryDelay * time.Duration(attempt)):
		case <-ctx.Done():
			return fmt.Errorf("alert retry canceled: %w", ctx.Err())
		}
	}
	return lastErr
}

// limiter is the per-channel token bucket. Alerts over the limit are
// dropped rather than queued.
type limiter struct{ l *rate.Limiter }

func newLimiter(perSecond float64, burst int) limiter {
	return limiter{l: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l limiter) allow() error {
	if l.l == nil || l.l.Allow() {
		return nil
	}
	return ErrThrottled
}
