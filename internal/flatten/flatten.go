// Package flatten turns nested audit-log events into single-level records keyed by dotted paths.
package flatten

import (
	"strconv"

	"cloudtrail-notifier/internal/events"
)

// FlatEvent maps a dotted path ("userIdentity.arn", "resources.0.ARN") to a
// scalar value. Null leaves are never present.
type FlatEvent map[string]any

// Flatten walks mappings and sequences depth-first, appending ".<field>" for
// mapping keys and ".<index>" for sequence elements. Empty containers and null
// leaves produce no keys, so a missing field and a null field look the same.
func Flatten(event events.Event) FlatEvent {
	out := make(FlatEvent)
	walk(out, "", map[string]any(event))
	return out
}

func walk(out FlatEvent, path string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			walk(out, join(path, key), child)
		}
	case events.Event:
		walk(out, path, map[string]any(v))
	case []any:
		for i, child := range v {
			walk(out, join(path, strconv.Itoa(i)), child)
		}
	case []string:
		for i, child := range v {
			out[join(path, strconv.Itoa(i))] = child
		}
	case nil:
		// dropped
	default:
		out[path] = v
	}
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}
