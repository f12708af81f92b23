// Package events defines the audit-log event structures flowing through the notifier.
package events

import "encoding/json"

// Event is one decoded audit-log event: a nested mapping of string keys to
// scalars, mappings, or sequences. It is treated as immutable once decoded.
type Event map[string]any

// Record is one unit of work produced by the log-batch decoder.
type Record struct {
	// SourceKey identifies where the event came from (the log group name).
	SourceKey string
	// AccountID is the account that owns the log batch.
	AccountID string
	Event     Event
}

// String returns the top-level string field or "" when absent or not a string.
func (e Event) String(key string) string {
	if s, ok := e[key].(string); ok {
		return s
	}
	return ""
}

// Nested returns the string at a nested field path, or "" if missing or of the wrong type.
func (e Event) Nested(fields ...string) string {
	var cur any = map[string]any(e)
	for _, f := range fields {
		m, ok := asMap(cur)
		if !ok {
			return ""
		}
		cur = m[f]
	}
	s, _ := cur.(string)
	return s
}

// NotificationAccountID resolves the account a notification is about: the event's
// recipientAccountId when present, otherwise the batch owner.
func (r Record) NotificationAccountID() string {
	if id := r.Event.String("recipientAccountId"); id != "" {
		return id
	}
	return r.AccountID
}

// JSON renders the event as indented JSON for logs and fan-out bodies.
func (e Event) JSON(indent bool) string {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(e, "", "    ")
	} else {
		data, err = json.Marshal(e)
	}
	if err != nil {
		return "{}"
	}
	return string(data)
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Event:
		return m, true
	default:
		return nil, false
	}
}
