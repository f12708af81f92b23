// Package rules implements the predicate language used to select and ignore audit events.
//
// A rule is a boolean expression over one bound name, event, which is the
// flattened event record. The language is deliberately small: literals, lists
// and tuples, event.get(key, default), event[key], membership tests, string
// prefix/suffix tests, comparisons and and/or/not. Rule text is parsed by this
// package and never handed to a general-purpose interpreter.
//
//	event.get("eventName", "") == "ConsoleLogin" and event.get("additionalEventData.MFAUsed", "") != "Yes"
//	event.get("errorCode", "").endswith(("UnauthorizedOperation", "AccessDenied"))
//	"eventName" in event and event["eventName"] in ["StopLogging", "DeleteTrail"]
package rules

import (
	"errors"
	"fmt"

	"cloudtrail-notifier/internal/flatten"
)

var (
	// ErrSyntax reports rule text that does not parse.
	ErrSyntax = errors.New("syntax error")
	// ErrUndefinedName reports a reference to any name other than event.
	ErrUndefinedName = errors.New("undefined name")
	// ErrKeyNotFound reports event[key] for a key that is not present.
	ErrKeyNotFound = errors.New("key not found")
	// ErrIndexOutOfRange reports a sequence index past either end.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrType reports an operation applied to values of the wrong type.
	ErrType = errors.New("type error")
	// ErrUnknownMethod reports a method call outside get/startswith/endswith.
	ErrUnknownMethod = errors.New("unknown method")
)

// EvaluationError carries the offending rule text and the underlying error.
type EvaluationError struct {
	Rule string
	Err  error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("rule %q: %v", e.Rule, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Rule is a parsed predicate. Rules whose text fails to parse are still valid
// Rule values: every evaluation reports the parse error instead of matching.
type Rule struct {
	text string
	root node
	err  error
}

// New parses rule text. It never fails; see Err.
func New(text string) *Rule {
	root, err := parse(text)
	return &Rule{text: text, root: root, err: err}
}

// Compile parses each rule text in order.
func Compile(texts []string) []*Rule {
	out := make([]*Rule, 0, len(texts))
	for _, text := range texts {
		out = append(out, New(text))
	}
	return out
}

// String returns the original rule text.
func (r *Rule) String() string {
	return r.text
}

// Err returns the parse error, if any.
func (r *Rule) Err() error {
	return r.err
}

// Evaluate reports whether the rule matches the event. Only a result of
// exactly boolean true is a match; false, None, numbers and strings are not.
// Any failure is returned as an *EvaluationError with matched == false.
func (r *Rule) Evaluate(event flatten.FlatEvent) (matched bool, err error) {
	if r.err != nil {
		return false, &EvaluationError{Rule: r.text, Err: r.err}
	}

	defer func() {
		if rec := recover(); rec != nil {
			matched = false
			err = &EvaluationError{Rule: r.text, Err: fmt.Errorf("evaluation panic: %v", rec)}
		}
	}()

	v, evalErr := (&evaluator{event: event}).eval(r.root)
	if evalErr != nil {
		return false, &EvaluationError{Rule: r.text, Err: evalErr}
	}
	b, ok := v.(bool)
	return ok && b, nil
}
