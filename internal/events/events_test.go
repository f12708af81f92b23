package events

import (
	"strings"
	"testing"
)

func TestEvent_String(t *testing.T) {
	e := Event{"eventName": "ConsoleLogin", "count": 3}

	if got := e.String("eventName"); got != "ConsoleLogin" {
		t.Errorf("String(eventName) = %q, want ConsoleLogin", got)
	}
	if got := e.String("count"); got != "" {
		t.Errorf("String(count) = %q, want empty for non-string", got)
	}
	if got := e.String("missing"); got != "" {
		t.Errorf("String(missing) = %q, want empty", got)
	}
}

func TestEvent_Nested(t *testing.T) {
	e := Event{
		"userIdentity": map[string]any{
			"arn":  "arn:aws:iam::1:user/x",
			"type": "IAMUser",
		},
		"requestParameters": "null",
	}

	tests := []struct {
		name   string
		fields []string
		want   string
	}{
		{name: "nested string", fields: []string{"userIdentity", "arn"}, want: "arn:aws:iam::1:user/x"},
		{name: "missing leaf", fields: []string{"userIdentity", "userName"}, want: ""},
		{name: "through scalar", fields: []string{"requestParameters", "x"}, want: ""},
		{name: "map not string", fields: []string{"userIdentity"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Nested(tt.fields...); got != tt.want {
				t.Errorf("Nested(%v) = %q, want %q", tt.fields, got, tt.want)
			}
		})
	}
}

func TestRecord_NotificationAccountID(t *testing.T) {
	r := Record{AccountID: "owner", Event: Event{"recipientAccountId": "recipient"}}
	if got := r.NotificationAccountID(); got != "recipient" {
		t.Errorf("NotificationAccountID() = %q, want recipient", got)
	}

	r = Record{AccountID: "owner", Event: Event{}}
	if got := r.NotificationAccountID(); got != "owner" {
		t.Errorf("NotificationAccountID() = %q, want owner", got)
	}
}

func TestEvent_JSON(t *testing.T) {
	e := Event{"a": "b"}
	if got := e.JSON(false); got != `{"a":"b"}` {
		t.Errorf("JSON(false) = %s", got)
	}
	if got := e.JSON(true); !strings.Contains(got, "\n") {
		t.Errorf("JSON(true) should be indented, got %s", got)
	}
}
