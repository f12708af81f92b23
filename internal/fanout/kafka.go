package fanout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"cloudtrail-notifier/internal/events"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publishes events to Kafka topics derived from a pattern such
// as cloudtrail.ACCOUNT_ID. Messages are keyed by account id.
type KafkaPublisher struct {
	writer  MessageWriter
	pattern string
}

// NewKafkaPublisher creates a Kafka publisher. writer must not have a fixed Topic.
func NewKafkaPublisher(writer MessageWriter, pattern string) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, pattern: pattern}
}

// Publish writes the event JSON with its string fields as headers.
func (p *KafkaPublisher) Publish(ctx context.Context, rec events.Record, accountID string) Result {
	if p.pattern == "" {
		return Result{Outcome: OutcomeSkipped}
	}
	topic := Topic(p.pattern, accountID)

	attrs := Attributes(rec.Event)
	headers := make([]kafka.Header, 0, len(attrs))
	for _, k := range sortedKeys(attrs) {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(attrs[k])})
	}

	msg := kafka.Message{
		Topic:   topic,
		Key:     []byte(accountID),
		Value:   []byte(rec.Event.JSON(false)),
		Headers: headers,
	}
	if t, err := time.Parse(time.RFC3339, rec.Event.String("eventTime")); err == nil {
		msg.Time = t
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		if isKafkaError(err, kafka.UnknownTopicOrPartition) || isKafkaError(err, kafka.TopicAuthorizationFailed) {
			slog.Info("Fan-out topic unavailable, skipping",
				"topic", topic,
				"error", err,
			)
			return Result{Outcome: OutcomeIgnored, Topic: topic, Err: err}
		}
		return Result{Outcome: OutcomeFailed, Topic: topic, Err: err}
	}

	slog.Debug("Published event to Kafka", "topic", topic)
	return Result{Outcome: OutcomePublished, Topic: topic}
}

// isKafkaError matches target directly or inside a per-message kafka.WriteErrors.
func isKafkaError(err error, target kafka.Error) bool {
	if errors.Is(err, target) {
		return true
	}
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil && errors.Is(e, target) {
				return true
			}
		}
	}
	return false
}
