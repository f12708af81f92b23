// Package classifier decides whether an audit event should be notified.
package classifier

import (
	"cloudtrail-notifier/internal/events"
	"cloudtrail-notifier/internal/flatten"
	"cloudtrail-notifier/internal/rules"
)

// Decision is the outcome of classifying one event. ShouldProcess and Errors
// are independent: an event can be dropped and still carry rule errors.
type Decision struct {
	ShouldProcess bool
	Errors        []*rules.EvaluationError

	// Matched is the rule that decided the outcome, nil when nothing matched.
	Matched *rules.Rule
	Ignored bool
}

// Classifier holds the ordered include and ignore rule lists.
type Classifier struct {
	include []*rules.Rule
	ignore  []*rules.Rule
}

// New creates a classifier from compiled rules.
func New(include, ignore []*rules.Rule) *Classifier {
	return &Classifier{include: include, ignore: ignore}
}

// Classify evaluates the event against the configured rules.
func (c *Classifier) Classify(event events.Event) Decision {
	return Classify(event, c.include, c.ignore)
}

// Classify flattens event once, runs ignore rules then include rules, and
// stops at the first rule in each pass that evaluates to true. Errors from
// every rule evaluated before the stop are returned in evaluation order.
func Classify(event events.Event, include, ignore []*rules.Rule) Decision {
	flat := flatten.Flatten(event)
	var d Decision

	if r := firstMatch(flat, ignore, &d); r != nil {
		d.Matched = r
		d.Ignored = true
		return d
	}
	if r := firstMatch(flat, include, &d); r != nil {
		d.Matched = r
		d.ShouldProcess = true
	}
	return d
}

func firstMatch(flat flatten.FlatEvent, list []*rules.Rule, d *Decision) *rules.Rule {
	for _, r := range list {
		ok, err := r.Evaluate(flat)
		if err != nil {
			d.Errors = append(d.Errors, asEvaluationError(r, err))
			continue
		}
		if ok {
			return r
		}
	}
	return nil
}

func asEvaluationError(r *rules.Rule, err error) *rules.EvaluationError {
	if ee, ok := err.(*rules.EvaluationError); ok {
		return ee
	}
	return &rules.EvaluationError{Rule: r.String(), Err: err}
}
