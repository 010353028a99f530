// Package consumer is the Kafka entry point: the identity provider publishes
// confirmation events to a topic with at-least-once delivery, and every
// record flows through the same entry service as the HTTP endpoint.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"enrolld/internal/enroll/metrics"
	"enrolld/internal/enroll/models"
	"enrolld/internal/enroll/service"
	"enrolld/internal/platform/config"
	"enrolld/pkg/platform/sentinel"
)

// Consumer drains the confirmations topic into the entry service.
type Consumer struct {
	client  *kgo.Client
	service *service.Service
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New connects a consumer-group client for the configured topic. Returns nil
// if no brokers are configured (Kafka entry point disabled).
func New(cfg config.KafkaConfig, svc *service.Service, m *metrics.Metrics, logger *slog.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumerGroup(cfg.Group),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	return &Consumer{
		client:  client,
		service: svc,
		metrics: m,
		logger:  logger,
	}, nil
}

// Run polls the topic until the context is cancelled. Because the entry
// service always accepts valid events, every offset is safe to commit:
// redelivery after a crash lands on the conditional write's idempotency.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})

		fetches.EachRecord(func(rec *kgo.Record) {
			c.handleRecord(ctx, rec)
		})
	}
}

// Close shuts down the Kafka client.
func (c *Consumer) Close() {
	c.client.Close()
}

func (c *Consumer) handleRecord(ctx context.Context, rec *kgo.Record) {
	var event models.ConfirmationEvent
	if err := json.Unmarshal(rec.Value, &event); err != nil {
		// Malformed events can never become records; skipping them is the
		// only option that does not wedge the partition.
		c.metrics.EventsRejected.Inc()
		c.logger.Warn("skipping malformed confirmation event",
			"topic", rec.Topic,
			"partition", rec.Partition,
			"offset", rec.Offset,
			"error", err,
		)
		return
	}

	if _, err := c.service.HandleConfirmation(ctx, event); err != nil {
		if errors.Is(err, sentinel.ErrInvalidInput) {
			c.logger.Warn("skipping invalid confirmation event",
				"topic", rec.Topic,
				"offset", rec.Offset,
				"error", err,
			)
			return
		}
		c.logger.Error("unexpected entry handler error", "offset", rec.Offset, "error", err)
	}
}
