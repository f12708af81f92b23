// Package metrics provides metrics recording interfaces for the notifier.
// It uses the null object pattern to avoid nil checks throughout the codebase.
package metrics

import "time"

// Custom counter names.
const (
	EventsMatched   = "events_matched"
	EventsIgnored   = "events_ignored"
	RuleErrors      = "rule_errors"
	ChatFailures    = "chat_failures"
	FanoutFailures  = "fanout_failures"
	ThreadsJoined   = "threads_joined"
	ThreadsStarted  = "threads_started"
	InternalErrors  = "internal_errors"
	BatchesReceived = "batches_received"
)

// Recorder defines the interface for recording notifier metrics.
// Implementations must be safe for concurrent use.
type Recorder interface {
	// RecordReceived increments the count of decoded events.
	RecordReceived()

	// RecordProcessed records a fully attempted event with its latency.
	RecordProcessed(latency time.Duration)

	// RecordPublished increments the count of delivered chat notifications.
	RecordPublished()

	// RecordError increments the error counter.
	RecordError()

	// IncrementCustom increments a named counter.
	IncrementCustom(name string)

	// AddCustom adds n to a named counter.
	AddCustom(name string, n int)
}

// NoOp is a no-op implementation of Recorder that discards all metrics.
// Use this when metrics collection is not configured.
type NoOp struct{}

// NewNoOp creates a new no-op metrics recorder.
func NewNoOp() *NoOp {
	return &NoOp{}
}

func (n *NoOp) RecordReceived()                 {}
func (n *NoOp) RecordProcessed(_ time.Duration) {}
func (n *NoOp) RecordPublished()                {}
func (n *NoOp) RecordError()                    {}
func (n *NoOp) IncrementCustom(_ string)        {}
func (n *NoOp) AddCustom(_ string, _ int)       {}

// Ensure NoOp implements Recorder
var _ Recorder = (*NoOp)(nil)
