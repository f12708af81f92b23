package fanout

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"cloudtrail-notifier/internal/events"
)

// maxSNSAttributes is the SNS limit on message attributes per publish.
const maxSNSAttributes = 10

// preferredAttributes are kept first when an event has more string fields than SNS allows.
var preferredAttributes = []string{
	"eventName",
	"eventSource",
	"recipientAccountId",
	"awsRegion",
	"eventType",
	"errorCode",
	"sourceIPAddress",
	"eventCategory",
	"eventID",
	"eventTime",
}

// SNSAPI is the subset of the SNS client used by SNSPublisher.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes events to SNS topics derived from an ARN pattern such
// as arn:aws:sns:eu-west-1:ACCOUNT_ID:cloudtrail-events.
type SNSPublisher struct {
	client  SNSAPI
	pattern string
}

// NewSNSPublisher creates an SNS publisher. An empty pattern disables publishing.
func NewSNSPublisher(client SNSAPI, pattern string) *SNSPublisher {
	return &SNSPublisher{client: client, pattern: pattern}
}

// Publish sends the event JSON with its string fields as message attributes.
func (p *SNSPublisher) Publish(ctx context.Context, rec events.Record, accountID string) Result {
	if p.pattern == "" {
		return Result{Outcome: OutcomeSkipped}
	}
	topic := Topic(p.pattern, accountID)

	_, err := p.client.Publish(ctx, &sns.PublishInput{
		TargetArn:         aws.String(topic),
		Message:           aws.String(rec.Event.JSON(false)),
		MessageAttributes: snsAttributes(rec.Event),
	})
	if err != nil {
		if isMissingOrForbidden(err) {
			slog.Info("Fan-out topic unavailable, skipping",
				"topic", topic,
				"error", err,
			)
			return Result{Outcome: OutcomeIgnored, Topic: topic, Err: err}
		}
		return Result{Outcome: OutcomeFailed, Topic: topic, Err: err}
	}

	slog.Debug("Published event to SNS", "topic", topic)
	return Result{Outcome: OutcomePublished, Topic: topic}
}

func snsAttributes(e events.Event) map[string]types.MessageAttributeValue {
	attrs := Attributes(e)
	out := make(map[string]types.MessageAttributeValue, maxSNSAttributes)
	add := func(k string) {
		v, ok := attrs[k]
		if !ok || len(out) >= maxSNSAttributes {
			return
		}
		out[k] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
		delete(attrs, k)
	}
	for _, k := range preferredAttributes {
		add(k)
	}
	for _, k := range sortedKeys(attrs) {
		add(k)
	}
	return out
}

func isMissingOrForbidden(err error) bool {
	var notFound *types.NotFoundException
	var authz *types.AuthorizationErrorException
	if errors.As(err, &notFound) || errors.As(err, &authz) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "NotFound") || strings.Contains(msg, "AuthorizationError")
}
