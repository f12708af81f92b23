package trailgen

import (
	"strings"
	"testing"

	"cloudtrail-notifier/internal/logbatch"
)

func TestParseDistribution(t *testing.T) {
	tests := []struct {
		name    string
		dist    string
		want    int
		wantErr string
	}{
		{name: "default", dist: DefaultEventDist, want: 7},
		{name: "single", dist: "CreateUser:100", want: 1},
		{name: "trailing comma", dist: "A:50, B:50,", want: 2},
		{name: "empty", dist: "", wantErr: "cannot be empty"},
		{name: "missing percent", dist: "A", wantErr: "expected NAME:PERCENT"},
		{name: "bad percent", dist: "A:x", wantErr: "invalid percentage"},
		{name: "out of range", dist: "A:150", wantErr: "must be 0-100"},
		{name: "bad sum", dist: "A:50,B:40", wantErr: "must sum to 100"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDistribution(tt.dist)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("parseDistribution() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDistribution() error = %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	accounts := []string{"111111111111", "222222222222"}
	a, err := New(DefaultEventDist, accounts, 42)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := New(DefaultEventDist, accounts, 42)

	for i := 0; i < 50; i++ {
		ea, eb := a.Generate(), b.Generate()
		if ea.String("eventName") != eb.String("eventName") || ea.String("recipientAccountId") != eb.String("recipientAccountId") {
			t.Fatalf("event %d differs with the same seed", i)
		}
	}
}

func TestGenerator_EventShape(t *testing.T) {
	g, err := New("StopLogging:100", []string{"111111111111"}, 7)
	if err != nil {
		t.Fatal(err)
	}
	for _, ev := range g.GenerateBatch(20) {
		if ev.String("eventName") != "StopLogging" {
			t.Fatalf("eventName = %q", ev.String("eventName"))
		}
		if ev.String("eventSource") != "cloudtrail.amazonaws.com" {
			t.Errorf("eventSource = %q", ev.String("eventSource"))
		}
		if ev.Nested("userIdentity", "accountId") != "111111111111" {
			t.Errorf("userIdentity.accountId = %q", ev.Nested("userIdentity", "accountId"))
		}
		if ev.String("eventID") == "" || ev.String("eventTime") == "" {
			t.Error("eventID and eventTime must be set")
		}
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New("A:10", []string{"1"}, 1); err == nil {
		t.Error("New() should reject an invalid distribution")
	}
	if _, err := New(DefaultEventDist, nil, 1); err == nil {
		t.Error("New() should reject an empty account list")
	}
}

func TestEnvelope_DecodesBackToRecords(t *testing.T) {
	g, err := New(DefaultEventDist, []string{"111111111111"}, 3)
	if err != nil {
		t.Fatal(err)
	}
	evs := g.GenerateBatch(5)

	body, err := Envelope(evs, "999999999999", "aws-cloudtrail-logs")
	if err != nil {
		t.Fatalf("Envelope() error = %v", err)
	}

	records, err := logbatch.DecodeJSON(body)
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	if len(records) != len(evs) {
		t.Fatalf("got %d records, want %d", len(records), len(evs))
	}
	for i, rec := range records {
		if rec.SourceKey != "aws-cloudtrail-logs" || rec.AccountID != "999999999999" {
			t.Errorf("record %d source = %q account = %q", i, rec.SourceKey, rec.AccountID)
		}
		if got, want := rec.Event.String("eventID"), evs[i].String("eventID"); got != want {
			t.Errorf("record %d eventID = %q, want %q", i, got, want)
		}
		if rec.Event.String("eventName") != evs[i].String("eventName") {
			t.Errorf("record %d eventName differs", i)
		}
	}
}
