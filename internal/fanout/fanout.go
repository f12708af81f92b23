// Package fanout republishes matched events to a per-account topic so other
// consumers can react to them. Publishing is independent of chat delivery.
package fanout

import (
	"context"
	"sort"
	"strings"

	"cloudtrail-notifier/internal/events"
)

// AccountPlaceholder is replaced with the account id in topic patterns.
const AccountPlaceholder = "ACCOUNT_ID"

// Outcome classifies a publish attempt.
type Outcome int

const (
	// OutcomePublished means the topic accepted the event.
	OutcomePublished Outcome = iota
	// OutcomeSkipped means no topic pattern is configured.
	OutcomeSkipped
	// OutcomeIgnored means the topic does not exist or denies access. Not every
	// account has a topic, so this counts as success.
	OutcomeIgnored
	// OutcomeFailed means the publish failed for any other reason.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePublished:
		return "published"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "failed"
	}
}

// Result is the outcome of one publish.
type Result struct {
	Outcome Outcome
	Topic   string
	Err     error
}

// Publisher publishes a matched event for accountID. Implementations make a
// single attempt and never return a Go error: failures are reported in Result.
type Publisher interface {
	Publish(ctx context.Context, rec events.Record, accountID string) Result
}

// Topic substitutes accountID into pattern.
func Topic(pattern, accountID string) string {
	return strings.ReplaceAll(pattern, AccountPlaceholder, accountID)
}

// Attributes returns the event's top-level non-empty string fields.
func Attributes(e events.Event) map[string]string {
	out := make(map[string]string)
	for k, v := range e {
		if s, ok := v.(string); ok && s != "" {
			out[k] = s
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Nop publishes nothing.
type Nop struct{}

// Publish always returns OutcomeSkipped.
func (Nop) Publish(context.Context, events.Record, string) Result {
	return Result{Outcome: OutcomeSkipped}
}
