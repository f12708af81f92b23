package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"

	"cloudtrail-notifier/internal/rules"
	"cloudtrail-notifier/pkg/metrics"
)

func init() {
	color.NoColor = true
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand("test")
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRootCommand_ShowsHelp(t *testing.T) {
	out, err := run(t, "")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out, "Usage:") {
		t.Errorf("help not shown: %s", out)
	}
}

func TestEval_CloudTrailLogFile(t *testing.T) {
	path := writeFile(t, "trail.json", `{"Records": [
		{"eventName": "CreateUser", "recipientAccountId": "111111111111"},
		{"eventName": "CreateUser", "recipientAccountId": "222222222222", "sourceIPAddress": "10.0.0.1"},
		{"eventName": "DescribeInstances", "recipientAccountId": "111111111111"}
	]}`)

	out, err := run(t, "", "eval", "--no-defaults",
		"--event", path,
		"--rule", `event.get("eventName", "") == "CreateUser"`,
		"--ignore-rule", `event.get("sourceIPAddress", "") == "10.0.0.1"`,
	)
	if err != nil {
		t.Fatalf("eval error = %v", err)
	}

	for _, want := range []string{
		"1 include rules, 1 ignore rules, 3 events",
		"event 1: CreateUser (111111111111)",
		"MATCH     event.get(\"eventName\", \"\") == \"CreateUser\"",
		"IGNORED   event.get(\"sourceIPAddress\", \"\") == \"10.0.0.1\"",
		"NO MATCH",
		"1 of 3 events would be notified",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEval_YAMLEventAndRuleErrors(t *testing.T) {
	path := writeFile(t, "event.yaml", `
eventName: RunInstances
recipientAccountId: "333333333333"
requestParameters:
  instancesSet:
    items:
      - imageId: ami-1
`)

	out, err := run(t, "", "eval", "--no-defaults",
		"--event", path,
		"--rule", `event["missing"] == 1`,
		"--rule", `event.get("requestParameters.instancesSet.items.0.imageId", "") == "ami-1"`,
	)
	if err != nil {
		t.Fatalf("eval error = %v", err)
	}
	if !strings.Contains(out, "ERROR") {
		t.Errorf("rule error not reported:\n%s", out)
	}
	if !strings.Contains(out, "MATCH     event.get(\"requestParameters") {
		t.Errorf("second rule should match:\n%s", out)
	}
}

func TestEval_Stdin(t *testing.T) {
	out, err := run(t, `[{"eventName": "ConsoleLogin"}]`, "eval", "--no-defaults",
		"--event", "-",
		"--events-to-track", "ConsoleLogin",
	)
	if err != nil {
		t.Fatalf("eval error = %v", err)
	}
	if !strings.Contains(out, "1 of 1 events would be notified") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestEval_DefaultRules(t *testing.T) {
	path := writeFile(t, "event.json", `{
		"eventName": "StopLogging",
		"eventSource": "cloudtrail.amazonaws.com",
		"recipientAccountId": "111111111111",
		"userIdentity": {"type": "IAMUser"}
	}`)

	out, err := run(t, "", "eval", "--event", path)
	if err != nil {
		t.Fatalf("eval error = %v", err)
	}
	if !strings.Contains(out, "MATCH") || strings.Contains(out, "NO MATCH") {
		t.Errorf("default rules should match StopLogging:\n%s", out)
	}
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "missing event flag", args: []string{"eval"}},
		{name: "missing file", args: []string{"eval", "--event", filepath.Join(t.TempDir(), "none.json")}},
		{name: "invalid json", args: []string{"eval", "--event", writeFile(t, "bad.json", `{"eventName":`)}},
		{name: "scalar document", args: []string{"eval", "--event", writeFile(t, "n.json", `42`)}},
		{name: "no rules", args: []string{"eval", "--no-defaults", "--event", writeFile(t, "e.json", `{}`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := run(t, "", tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	out, err := run(t, "", "defaults", "--function-name", "my-notifier")
	if err != nil {
		t.Fatalf("defaults error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := len(rules.DefaultRules("my-notifier")) + 1
	if len(lines) != want {
		t.Errorf("printed %d lines, want %d", len(lines), want)
	}
	if !strings.Contains(out, "my-notifier") {
		t.Errorf("function name not substituted:\n%s", out)
	}
}

func TestStats(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	collector := metrics.NewCollector("notifier-a", client)
	collector.RecordReceived()
	collector.RecordReceived()
	collector.IncrementCustom("rule_errors")
	collector.Flush(context.Background())

	out, err := run(t, "", "stats", "--redis-addr", mr.Addr())
	if err != nil {
		t.Fatalf("stats error = %v", err)
	}
	for _, want := range []string{"notifier-a", "healthy", "received=2", "rule_errors=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := run(t, "", "stats", "--redis-addr", mr.Addr(), "--instance", "unknown"); err == nil {
		t.Error("stats for an unknown instance should fail")
	}
}

func TestStats_Empty(t *testing.T) {
	mr := miniredis.RunT(t)
	out, err := run(t, "", "stats", "--redis-addr", mr.Addr())
	if err != nil {
		t.Fatalf("stats error = %v", err)
	}
	if !strings.Contains(out, "no notifier has reported metrics") {
		t.Errorf("unexpected output:\n%s", out)
	}
}
