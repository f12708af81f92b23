// Package processor runs classification and dispatch over one batch of
// events. Events are handled strictly in order, one at a time, and a failure
// in one event never stops the rest of the batch.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"cloudtrail-notifier/internal/classifier"
	"cloudtrail-notifier/internal/dispatcher"
	"cloudtrail-notifier/internal/events"
	"cloudtrail-notifier/internal/logbatch"
	"cloudtrail-notifier/internal/metrics"
)

// Classifier decides whether an event should be notified.
type Classifier interface {
	Classify(event events.Event) classifier.Decision
}

// Dispatcher performs the side effects of a decision.
type Dispatcher interface {
	Dispatch(ctx context.Context, decision classifier.Decision, rec events.Record) dispatcher.Report
	NotifyInternalError(ctx context.Context, cause error, rec events.Record)
}

// Processor processes batches of records.
type Processor struct {
	classifier Classifier
	dispatcher Dispatcher
	metrics    metrics.Recorder
}

// NewProcessor creates a processor. A nil recorder disables metrics.
func NewProcessor(c Classifier, d Dispatcher, m metrics.Recorder) *Processor {
	if m == nil {
		m = metrics.NewNoOp()
	}
	return &Processor{classifier: c, dispatcher: d, metrics: m}
}

// BatchResult summarises one batch.
type BatchResult struct {
	InvocationID string
	Received     int
	Matched      int
	Dropped      int
	RuleErrors   int
	Failed       int
}

// HandleLogs decodes a CloudWatch Logs subscription batch and processes it. A
// batch that cannot be decoded is reported to chat and treated as handled.
func (p *Processor) HandleLogs(ctx context.Context, raw lambdaevents.CloudwatchLogsRawData) (BatchResult, error) {
	records, err := logbatch.Decode(raw)
	if err != nil {
		p.metrics.IncrementCustom(metrics.InternalErrors)
		slog.Error("Failed to decode log batch", "error", err)
		p.notifyInternalError(ctx, err, events.Record{})
		return BatchResult{}, nil
	}
	return p.ProcessRecords(ctx, records), nil
}

// ProcessRecords classifies and dispatches each record in order.
func (p *Processor) ProcessRecords(ctx context.Context, records []events.Record) BatchResult {
	result := BatchResult{InvocationID: uuid.NewString()}
	logger := slog.With("invocation_id", result.InvocationID)

	p.metrics.IncrementCustom(metrics.BatchesReceived)
	logger.Info("Processing batch", "records", len(records))

	for _, rec := range records {
		result.Received++
		p.metrics.RecordReceived()
		start := time.Now()

		decision, err := p.processOne(ctx, logger, rec)
		p.metrics.RecordProcessed(time.Since(start))

		if err != nil {
			result.Failed++
			p.metrics.RecordError()
			p.metrics.IncrementCustom(metrics.InternalErrors)
			logger.Error("Failed to process event",
				"event_id", rec.Event.String("eventID"),
				"event_name", rec.Event.String("eventName"),
				"error", err,
			)
			p.notifyInternalError(ctx, err, rec)
			continue
		}

		result.RuleErrors += len(decision.Errors)
		if decision.ShouldProcess {
			result.Matched++
		} else {
			result.Dropped++
		}
	}

	logger.Info("Batch processed",
		"received", result.Received,
		"matched", result.Matched,
		"dropped", result.Dropped,
		"rule_errors", result.RuleErrors,
		"failed", result.Failed,
	)
	return result
}

// processOne handles a single record, converting a panic into an error.
func (p *Processor) processOne(ctx context.Context, logger *slog.Logger, rec events.Record) (decision classifier.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing event: %v", r)
			logger.Debug("Recovered panic", "stack", string(debug.Stack()))
		}
	}()

	decision = p.classifier.Classify(rec.Event)
	p.metrics.AddCustom(metrics.RuleErrors, len(decision.Errors))

	switch {
	case decision.ShouldProcess:
		p.metrics.IncrementCustom(metrics.EventsMatched)
		logger.Info("Event matched rule and will be processed",
			"rule", ruleText(decision),
			"event_name", rec.Event.String("eventName"),
			"account_id", rec.NotificationAccountID(),
		)
	case decision.Ignored:
		p.metrics.IncrementCustom(metrics.EventsIgnored)
		logger.Info("Event matched ignore rule and will not be processed",
			"ignore_rule", ruleText(decision),
			"event_name", rec.Event.String("eventName"),
		)
	default:
		logger.Debug("Event did not match any rules",
			"event_name", rec.Event.String("eventName"),
		)
	}
	for _, ruleErr := range decision.Errors {
		logger.Warn("Rule evaluation failed",
			"rule", ruleErr.Rule,
			"error", ruleErr.Err,
			"event_id", rec.Event.String("eventID"),
		)
	}

	p.dispatcher.Dispatch(ctx, decision, rec)
	return decision, nil
}

// notifyInternalError is best-effort; a panic while reporting is swallowed.
func (p *Processor) notifyInternalError(ctx context.Context, cause error, rec events.Record) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic while sending internal error notification", "panic", r)
		}
	}()
	p.dispatcher.NotifyInternalError(ctx, cause, rec)
}

func ruleText(d classifier.Decision) string {
	if d.Matched == nil {
		return ""
	}
	return d.Matched.String()
}
