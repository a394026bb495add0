// Package kafkasub consumes order status events from a Kafka topic through
// a consumer group and hands them to the dispatcher.
package kafkasub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"engage-notify/internal/infra/eventsource"
)

// Defaults for the order status stream.
const (
	DefaultTopic = "order-status-changed"
	DefaultGroup = "engage-notify"
)

const (
	handleTimeout = 60 * time.Second
	retryBackoff  = 2 * time.Second
)

// NewConfig returns the sarama settings used by the consumer group.
func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "engage-notify"
	cfg.Consumer.Return.Errors = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	return cfg
}

// Consumer runs a consumer group session loop for one topic. Every message
// is marked consumed after it is handled, whatever the outcome.
type Consumer struct {
	group   sarama.ConsumerGroup
	topic   string
	handler eventsource.Handler
	logger  *slog.Logger
}

// New joins group on brokers.
func New(brokers []string, group, topic string, h eventsource.Handler, logger *slog.Logger) (*Consumer, error) {
	if group == "" {
		group = DefaultGroup
	}
	cg, err := sarama.NewConsumerGroup(brokers, group, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}
	return NewWithGroup(cg, topic, h, logger), nil
}

// NewWithGroup wraps an existing consumer group.
func NewWithGroup(cg sarama.ConsumerGroup, topic string, h eventsource.Handler, logger *slog.Logger) *Consumer {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{group: cg, topic: topic, handler: h, logger: logger}
}

// Run consumes until ctx is cancelled or the group is closed.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Warn("Kafka consumer error", slog.Any("error", err))
		}
	}()

	c.logger.Info("Kafka consumer started", slog.String("topic", c.topic))
	for {
		err := c.group.Consume(ctx, []string{c.topic}, c)
		switch {
		case errors.Is(err, sarama.ErrClosedConsumerGroup):
			return nil
		case err != nil:
			c.logger.Error("Kafka consume session failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
			case <-time.After(retryBackoff):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the group.
func (c *Consumer) Close() error {
	return c.group.Close()
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Setup(sess sarama.ConsumerGroupSession) error {
	c.logger.Info("Kafka partitions assigned",
		slog.String("member_id", sess.MemberID()),
		slog.Any("claims", sess.Claims()))
	return nil
}

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler.
func (c *Consumer) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			c.handle(sess.Context(), msg)
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	hctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	if err := c.handler.HandleStatusChange(hctx, msg.Value); err != nil {
		level := slog.LevelError
		if errors.Is(err, eventsource.ErrInvalidEvent) {
			level = slog.LevelWarn
		}
		c.logger.Log(hctx, level, "failed to handle Kafka message",
			slog.String("topic", msg.Topic),
			slog.Int("partition", int(msg.Partition)),
			slog.Int64("offset", msg.Offset),
			slog.Any("error", err))
	}
}
