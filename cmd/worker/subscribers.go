package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"engage-notify/internal/infra/eventsource"
	"engage-notify/internal/infra/eventsource/kafkasub"
	"engage-notify/internal/infra/eventsource/natssub"
	pkgconfig "engage-notify/internal/pkg/config"
)

// subscribers owns the optional NATS and Kafka consumers.
type subscribers struct {
	logger *slog.Logger
	nc     *nats.Conn
	nats   *natssub.Subscriber
	kafka  *kafkasub.Consumer
}

// startSubscribers connects the transports that are configured.
//
// Environment variables:
//   - NATS_URL: enables the NATS subscriber when set
//   - KAFKA_BROKERS: comma separated brokers, enables the Kafka consumer
//   - KAFKA_TOPIC: status change topic (default "order-status-changed")
//   - KAFKA_GROUP: consumer group (default "engage-notify")
func startSubscribers(ctx context.Context, g *errgroup.Group, logger *slog.Logger, h eventsource.Handler) (*subscribers, error) {
	tr := pkgconfig.NewTracker(logger, nil)
	natsURL := pkgconfig.Observe(tr, "nats_url", pkgconfig.LoadString("NATS_URL", "", nil))
	brokers := pkgconfig.Observe(tr, "kafka_brokers", pkgconfig.LoadList("KAFKA_BROKERS", nil))
	topic := pkgconfig.Observe(tr, "kafka_topic", pkgconfig.LoadString("KAFKA_TOPIC", kafkasub.DefaultTopic, nil))
	group := pkgconfig.Observe(tr, "kafka_group", pkgconfig.LoadString("KAFKA_GROUP", kafkasub.DefaultGroup, nil))

	s := &subscribers{logger: logger}

	if natsURL != "" {
		nc, err := natssub.Connect(natsURL, logger)
		if err != nil {
			return nil, err
		}
		s.nc = nc
		s.nats = natssub.New(nc, h, logger)
		if err := s.nats.Start(ctx); err != nil {
			s.stop()
			return nil, err
		}
	} else {
		logger.Info("NATS_URL not set, NATS subscriber disabled")
	}

	if len(brokers) > 0 {
		consumer, err := kafkasub.New(brokers, group, topic, h, logger)
		if err != nil {
			s.stop()
			return nil, err
		}
		s.kafka = consumer
		g.Go(func() error {
			if err := consumer.Run(ctx); err != nil {
				return fmt.Errorf("kafka consumer: %w", err)
			}
			return nil
		})
	} else {
		logger.Info("KAFKA_BROKERS not set, Kafka consumer disabled")
	}

	return s, nil
}

// stop drains NATS and leaves the Kafka group. Safe to call twice.
func (s *subscribers) stop() {
	if s == nil {
		return
	}
	if s.nats != nil {
		s.nats.Stop()
		s.nats = nil
	}
	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Warn("failed to close Kafka consumer", slog.Any("error", err))
		}
		s.kafka = nil
	}
}
