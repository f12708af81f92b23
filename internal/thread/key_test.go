package thread

import (
	"testing"
	"time"

	"cloudtrail-notifier/internal/events"
)

func TestAccountWindowKey(t *testing.T) {
	now := func() time.Time { return time.Unix(1718000999, 0) }
	key := AccountWindowKey(15*time.Minute, now)

	rec := func(account, eventTime string) events.Record {
		e := events.Event{"recipientAccountId": account}
		if eventTime != "" {
			e["eventTime"] = eventTime
		}
		return events.Record{AccountID: "999999999999", Event: e}
	}

	a := key(rec("111111111111", "2024-06-10T06:01:00Z"))
	b := key(rec("111111111111", "2024-06-10T06:14:59Z"))
	c := key(rec("111111111111", "2024-06-10T06:15:00Z"))
	d := key(rec("222222222222", "2024-06-10T06:01:00Z"))

	if a != b {
		t.Errorf("same window produced different keys: %q %q", a, b)
	}
	if a == c {
		t.Errorf("next window produced the same key %q", a)
	}
	if a == d {
		t.Errorf("different accounts produced the same key %q", a)
	}
	if want := "111111111111:1717999200"; a != want {
		t.Errorf("key = %q, want %q", a, want)
	}

	noTime := key(events.Record{AccountID: "333333333333", Event: events.Event{}})
	if want := "333333333333:1718000100"; noTime != want {
		t.Errorf("key without eventTime = %q, want %q", noTime, want)
	}
}

func TestPrincipalActionKey(t *testing.T) {
	base := events.Event{
		"eventName":          "ConsoleLogin",
		"recipientAccountId": "111111111111",
		"userIdentity":       map[string]any{"arn": "arn:aws:iam::111111111111:user/alice"},
	}
	other := events.Event{
		"eventName":          "ConsoleLogin",
		"recipientAccountId": "111111111111",
		"userIdentity":       map[string]any{"arn": "arn:aws:iam::111111111111:user/bob"},
	}

	k1 := PrincipalActionKey(events.Record{Event: base})
	k2 := PrincipalActionKey(events.Record{Event: base})
	k3 := PrincipalActionKey(events.Record{Event: other})

	if k1 != k2 {
		t.Error("key is not deterministic")
	}
	if k1 == k3 {
		t.Error("different principals share a key")
	}
	if len(k1) != 64 {
		t.Errorf("len(key) = %d, want 64 hex chars", len(k1))
	}
}

func TestNewKeyFunc(t *testing.T) {
	for _, s := range []string{"", StrategyAccountWindow, StrategyPrincipalAction} {
		if fn, err := NewKeyFunc(s, time.Minute, nil); err != nil || fn == nil {
			t.Errorf("NewKeyFunc(%q) = %v, %v", s, fn, err)
		}
	}
	if _, err := NewKeyFunc("random", time.Minute, nil); err == nil {
		t.Error("NewKeyFunc(random) error = nil, want error")
	}
}
