package flatten

import (
	"encoding/json"
	"reflect"
	"testing"

	"cloudtrail-notifier/internal/events"
)

func TestFlatten(t *testing.T) {
	tests := []struct {
		name  string
		event events.Event
		want  FlatEvent
	}{
		{
			name:  "nested map and list",
			event: events.Event{"a": map[string]any{"b": 1}, "c": []any{2, 3}},
			want:  FlatEvent{"a.b": 1, "c.0": 2, "c.1": 3},
		},
		{
			name:  "null dropped",
			event: events.Event{"a": nil},
			want:  FlatEvent{},
		},
		{
			name:  "nested null dropped",
			event: events.Event{"a": map[string]any{"b": nil, "c": "x"}},
			want:  FlatEvent{"a.c": "x"},
		},
		{
			name:  "empty containers produce no keys",
			event: events.Event{"a": map[string]any{}, "b": []any{}},
			want:  FlatEvent{},
		},
		{
			name: "list of maps",
			event: events.Event{"resources": []any{
				map[string]any{"ARN": "arn:1"},
				map[string]any{"ARN": "arn:2", "type": nil},
			}},
			want: FlatEvent{"resources.0.ARN": "arn:1", "resources.1.ARN": "arn:2"},
		},
		{
			name:  "scalars keep their types",
			event: events.Event{"s": "str", "b": true, "f": 1.5},
			want:  FlatEvent{"s": "str", "b": true, "f": 1.5},
		},
		{
			name:  "string slice",
			event: events.Event{"tags": []string{"x", "y"}},
			want:  FlatEvent{"tags.0": "x", "tags.1": "y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Flatten(tt.event)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Flatten() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFlatten_DecodedCloudTrailEvent(t *testing.T) {
	raw := `{
		"eventName": "ConsoleLogin",
		"additionalEventData": {"MFAUsed": "No"},
		"userIdentity": {"arn": "arn:aws:iam::1:user/x", "sessionContext": {"attributes": {"mfaAuthenticated": "false"}}},
		"requestParameters": null
	}`
	var event events.Event
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	flat := Flatten(event)

	checks := map[string]any{
		"eventName":                   "ConsoleLogin",
		"additionalEventData.MFAUsed": "No",
		"userIdentity.arn":            "arn:aws:iam::1:user/x",
	}
	for key, want := range checks {
		if flat[key] != want {
			t.Errorf("flat[%q] = %v, want %v", key, flat[key], want)
		}
	}
	if got := flat["userIdentity.sessionContext.attributes.mfaAuthenticated"]; got != "false" {
		t.Errorf("deeply nested value = %v, want false", got)
	}
	if _, ok := flat["requestParameters"]; ok {
		t.Error("null requestParameters should be dropped")
	}
	if len(flat) != 4 {
		t.Errorf("len(flat) = %d, want 4", len(flat))
	}
}

func TestFlatten_DoesNotMutateInput(t *testing.T) {
	event := events.Event{"a": map[string]any{"b": nil}}
	_ = Flatten(event)

	inner := event["a"].(map[string]any)
	if _, ok := inner["b"]; !ok {
		t.Error("Flatten() mutated the input event")
	}
}
