// Package consumer reads CloudWatch Logs subscription batches from Kafka, for
// deployments that forward log batches to a topic instead of invoking Lambda.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"cloudtrail-notifier/internal/events"
	"cloudtrail-notifier/internal/logbatch"
	kafkautil "cloudtrail-notifier/pkg/kafka"
)

// MessageReader is the subset of *kafka.Reader used by Consumer.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BatchHandler processes the records of one batch. It must not fail: per-event
// errors are handled inside.
type BatchHandler func(ctx context.Context, records []events.Record)

// Consumer wraps a Kafka reader. Each message holds one subscription event,
// {"awslogs": {"data": "..."}}. Offsets are committed after the batch has been
// attempted, so a crash mid-batch redelivers it.
type Consumer struct {
	reader MessageReader
	topic  string
}

// NewConsumer creates a new Kafka consumer with the specified brokers, topic, and group ID.
func NewConsumer(brokers, topic, groupID string) (*Consumer, error) {
	if err := kafkautil.ValidateConsumerParams(brokers, topic, groupID); err != nil {
		return nil, err
	}

	brokerList := kafkautil.ParseBrokers(brokers)

	slog.Info("Initializing Kafka consumer",
		"brokers", brokerList,
		"topic", topic,
		"group_id", groupID,
	)

	cfg := kafkautil.NewReaderConfig(brokerList, topic, groupID)
	kafkautil.LogReaderConfig(cfg)

	return &Consumer{reader: kafka.NewReader(cfg), topic: topic}, nil
}

// NewWithReader creates a consumer over an existing reader.
func NewWithReader(reader MessageReader, topic string) *Consumer {
	return &Consumer{reader: reader, topic: topic}
}

// Run fetches batches until ctx is cancelled. Messages that cannot be decoded
// are logged and committed so they do not block the partition.
func (c *Consumer) Run(ctx context.Context, handle BatchHandler) error {
	slog.Info("Starting log batch consumer", "topic", c.topic)

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				slog.Info("Log batch consumer stopped")
				return nil
			}
			return fmt.Errorf("failed to fetch message from Kafka: %w", err)
		}

		records, err := logbatch.DecodeJSON(msg.Value)
		if err != nil {
			slog.Error("Failed to decode log batch message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		} else {
			handle(ctx, records)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("Failed to commit offset",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// Close gracefully closes the Kafka reader and releases resources.
func (c *Consumer) Close() error {
	slog.Info("Closing Kafka consumer", "topic", c.topic)
	if err := c.reader.Close(); err != nil {
		slog.Error("Error closing Kafka consumer", "error", err)
		return err
	}
	slog.Info("Kafka consumer closed successfully")
	return nil
}
