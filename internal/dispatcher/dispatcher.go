// Package dispatcher delivers the side effects of a classification decision:
// rule-error diagnostics, fan-out publishing and the chat notification.
// Every step is a single attempt and a failing step never stops its siblings.
package dispatcher

import (
	"context"
	"log/slog"
	"strings"

	"cloudtrail-notifier/internal/chat"
	"cloudtrail-notifier/internal/classifier"
	"cloudtrail-notifier/internal/events"
	"cloudtrail-notifier/internal/fanout"
	"cloudtrail-notifier/internal/message"
	"cloudtrail-notifier/internal/metrics"
	"cloudtrail-notifier/internal/thread"
)

// Options configures a Dispatcher.
type Options struct {
	Poster    chat.Poster
	Publisher fanout.Publisher

	// Correlator and ThreadKey are only used when Poster supports threads.
	Correlator *thread.Correlator
	ThreadKey  thread.KeyFunc

	// RuleErrorsToChat sends one diagnostic message per rule evaluation error.
	RuleErrorsToChat bool

	Metrics metrics.Recorder
}

// Dispatcher performs the notification side effects for one event at a time.
type Dispatcher struct {
	poster           chat.Poster
	publisher        fanout.Publisher
	correlator       *thread.Correlator
	threadKey        thread.KeyFunc
	ruleErrorsToChat bool
	metrics          metrics.Recorder
}

// New creates a dispatcher. Missing optional collaborators get no-op defaults.
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		poster:           opts.Poster,
		publisher:        opts.Publisher,
		correlator:       opts.Correlator,
		threadKey:        opts.ThreadKey,
		ruleErrorsToChat: opts.RuleErrorsToChat,
		metrics:          opts.Metrics,
	}
	if d.publisher == nil {
		d.publisher = fanout.Nop{}
	}
	if d.correlator == nil {
		d.correlator = thread.NewCorrelator(thread.NopStore{}, 0)
	}
	if d.threadKey == nil {
		d.threadKey = thread.PrincipalActionKey
	}
	if d.metrics == nil {
		d.metrics = metrics.NewNoOp()
	}
	return d
}

// ChatOutcome describes what happened to the chat notification.
type ChatOutcome struct {
	Attempted  bool
	Delivered  bool
	ThreadKey  string
	Lookup     thread.Status
	Threaded   bool
	MessageID  string
	Persisted  bool
	PersistErr error
	Err        error
}

// Report summarises one Dispatch call.
type Report struct {
	RuleErrorsSent   int
	RuleErrorsFailed int
	Fanout           fanout.Result
	Chat             ChatOutcome
}

// Dispatch sends rule-error diagnostics and, when the decision says so, the
// fan-out publish and the chat notification for rec.
func (d *Dispatcher) Dispatch(ctx context.Context, decision classifier.Decision, rec events.Record) Report {
	var report Report
	accountID := rec.NotificationAccountID()

	if d.ruleErrorsToChat {
		for _, ruleErr := range decision.Errors {
			if _, err := d.poster.Post(ctx, accountID, message.ForRuleError(ruleErr, rec.SourceKey), ""); err != nil {
				report.RuleErrorsFailed++
				d.metrics.IncrementCustom(metrics.ChatFailures)
				slog.Error("Failed to send rule evaluation error notification",
					"rule", ruleErr.Rule,
					"account_id", accountID,
					"error", err,
				)
				continue
			}
			report.RuleErrorsSent++
		}
	}

	if !decision.ShouldProcess {
		return report
	}

	if strings.Contains(rec.Event.String("errorCode"), "AccessDenied") {
		slog.Info("AccessDenied event", "event", rec.Event.JSON(true))
	}

	report.Fanout = d.publisher.Publish(ctx, rec, accountID)
	if report.Fanout.Outcome == fanout.OutcomeFailed {
		d.metrics.IncrementCustom(metrics.FanoutFailures)
		slog.Error("Failed to publish event to fan-out topic",
			"topic", report.Fanout.Topic,
			"account_id", accountID,
			"error", report.Fanout.Err,
		)
	}

	report.Chat = d.deliver(ctx, rec, accountID)
	if report.Chat.Err != nil {
		d.metrics.IncrementCustom(metrics.ChatFailures)
		d.metrics.RecordError()
		slog.Error("Failed to deliver chat notification",
			"account_id", accountID,
			"event_name", rec.Event.String("eventName"),
			"error", report.Chat.Err,
		)
	} else {
		d.metrics.RecordPublished()
	}
	return report
}

// NotifyInternalError posts a best-effort notification that rec could not be processed.
func (d *Dispatcher) NotifyInternalError(ctx context.Context, cause error, rec events.Record) {
	if _, err := d.poster.Post(ctx, rec.NotificationAccountID(), message.ForInternalError(cause, rec), ""); err != nil {
		slog.Error("Failed to send internal error notification",
			"cause", cause,
			"error", err,
		)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, rec events.Record, accountID string) ChatOutcome {
	out := ChatOutcome{Attempted: true}
	msg := message.ForEvent(rec, accountID)

	if !d.poster.SupportsThreads() {
		_, out.Err = d.poster.Post(ctx, accountID, msg, "")
		out.Delivered = out.Err == nil
		return out
	}

	out.ThreadKey = d.threadKey(rec)
	lookup := d.correlator.Lookup(ctx, out.ThreadKey)
	out.Lookup = lookup.Status

	if lookup.Found() {
		slog.Info("Posting message to thread",
			"thread_key", out.ThreadKey,
			"thread_ts", lookup.Handle,
		)
		res, err := d.poster.Post(ctx, accountID, msg, lookup.Handle)
		out.Err = err
		out.Delivered = err == nil
		out.Threaded = err == nil
		out.MessageID = res.MessageID
		if err == nil {
			d.metrics.IncrementCustom(metrics.ThreadsJoined)
		}
		return out
	}

	slog.Info("Posting message to channel", "thread_key", out.ThreadKey)
	res, err := d.poster.Post(ctx, accountID, msg, "")
	if err != nil {
		out.Err = err
		return out
	}
	out.Delivered = true
	out.MessageID = res.MessageID

	if res.MessageID != "" {
		out.PersistErr = d.correlator.Persist(ctx, out.ThreadKey, res.MessageID)
		out.Persisted = out.PersistErr == nil
		d.metrics.IncrementCustom(metrics.ThreadsStarted)
	}
	return out
}
