package metrics

import (
	"testing"
	"time"

	pkgmetrics "cloudtrail-notifier/pkg/metrics"
)

func TestNoOp_ImplementsRecorder(t *testing.T) {
	var _ Recorder = (*NoOp)(nil)
}

func TestNoOp_AllMethodsWork(t *testing.T) {
	noop := NewNoOp()

	// All these should not panic
	noop.RecordReceived()
	noop.RecordProcessed(time.Second)
	noop.RecordPublished()
	noop.RecordError()
	noop.IncrementCustom(RuleErrors)
	noop.AddCustom(RuleErrors, 3)
}

func TestCollectorAdapter_ForwardsToCollector(t *testing.T) {
	collector := pkgmetrics.NewCollector("adapter-test", nil)
	adapter := NewCollectorAdapter(collector)

	adapter.RecordReceived()
	adapter.RecordProcessed(time.Millisecond)
	adapter.RecordPublished()
	adapter.RecordError()
	adapter.IncrementCustom(ThreadsJoined)
	adapter.AddCustom(RuleErrors, 2)
	adapter.AddCustom(RuleErrors, 0)

	snap := collector.GetSnapshot()
	if snap.EventsReceived != 1 || snap.EventsProcessed != 1 || snap.NotificationsSent != 1 || snap.ProcessingErrors != 1 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.CustomCounters[ThreadsJoined] != 1 {
		t.Errorf("%s = %d, want 1", ThreadsJoined, snap.CustomCounters[ThreadsJoined])
	}
	if snap.CustomCounters[RuleErrors] != 2 {
		t.Errorf("%s = %d, want 2", RuleErrors, snap.CustomCounters[RuleErrors])
	}
}
