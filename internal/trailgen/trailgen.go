// Package trailgen generates synthetic CloudTrail events and wraps them in
// CloudWatch Logs subscription envelopes, for load and end-to-end testing of
// the notifier. Generation is deterministic when a seed is given.
package trailgen

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"cloudtrail-notifier/internal/events"
)

// DefaultEventDist mixes routine reads with events the built-in rules report.
const DefaultEventDist = "DescribeInstances:40,GetObject:25,ConsoleLogin:10,AssumeRole:10,StopLogging:5,AttachUserPolicy:5,RunInstances:5"

// eventSources maps generated event names to their service.
var eventSources = map[string]string{
	"DescribeInstances": "ec2.amazonaws.com",
	"RunInstances":      "ec2.amazonaws.com",
	"GetObject":         "s3.amazonaws.com",
	"ConsoleLogin":      "signin.amazonaws.com",
	"AssumeRole":        "sts.amazonaws.com",
	"StopLogging":       "cloudtrail.amazonaws.com",
	"DeleteTrail":       "cloudtrail.amazonaws.com",
	"AttachUserPolicy":  "iam.amazonaws.com",
	"CreateUser":        "iam.amazonaws.com",
}

const (
	rootProbability         = 0.05
	accessDeniedProbability = 0.1
)

var regions = []string{"us-east-1", "eu-west-1", "eu-central-1"}

type weightedValue struct {
	value  string
	weight int
}

// parseDistribution parses "NAME:PERCENT,..." keeping the given order. The
// percentages must sum to 100.
func parseDistribution(dist string) ([]weightedValue, error) {
	if strings.TrimSpace(dist) == "" {
		return nil, fmt.Errorf("distribution string cannot be empty")
	}
	var (
		out   []weightedValue
		total int
	)
	for _, part := range strings.Split(dist, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, pct, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid distribution format: %s (expected NAME:PERCENT)", part)
		}
		var percent int
		if _, err := fmt.Sscanf(strings.TrimSpace(pct), "%d", &percent); err != nil {
			return nil, fmt.Errorf("invalid percentage in %s: %w", part, err)
		}
		if percent < 0 || percent > 100 {
			return nil, fmt.Errorf("percentage must be 0-100, got %d in %s", percent, part)
		}
		out = append(out, weightedValue{value: strings.TrimSpace(name), weight: percent})
		total += percent
	}
	if total != 100 {
		return nil, fmt.Errorf("distribution percentages must sum to 100, got %d", total)
	}
	return out, nil
}

// Generator creates CloudTrail events for a fixed set of accounts.
type Generator struct {
	rng      *rand.Rand
	dist     []weightedValue
	accounts []string
	now      func() time.Time
}

// New creates a generator. seed 0 means a time based seed.
func New(dist string, accounts []string, seed int64) (*Generator, error) {
	parsed, err := parseDistribution(dist)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("accounts cannot be empty")
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		rng:      rand.New(rand.NewSource(seed)),
		dist:     parsed,
		accounts: accounts,
		now:      time.Now,
	}, nil
}

// Generate returns one event.
func (g *Generator) Generate() events.Event {
	name := g.selectWeighted()
	account := g.selectFrom(g.accounts)

	identity := map[string]any{
		"type":        "IAMUser",
		"accountId":   account,
		"arn":         fmt.Sprintf("arn:aws:iam::%s:user/user-%d", account, g.rng.Intn(5)),
		"principalId": fmt.Sprintf("AIDA%012d", g.rng.Intn(1_000_000)),
	}
	if g.rng.Float64() < rootProbability {
		identity["type"] = "Root"
		identity["arn"] = fmt.Sprintf("arn:aws:iam::%s:root", account)
	}

	ev := events.Event{
		"eventVersion":       "1.08",
		"eventID":            uuid.NewString(),
		"eventTime":          g.now().UTC().Format(time.RFC3339),
		"eventName":          name,
		"eventSource":        sourceFor(name),
		"awsRegion":          g.selectFrom(regions),
		"sourceIPAddress":    fmt.Sprintf("203.0.113.%d", g.rng.Intn(254)+1),
		"recipientAccountId": account,
		"userIdentity":       identity,
	}

	switch name {
	case "ConsoleLogin":
		mfa := "Yes"
		if g.rng.Intn(2) == 0 {
			mfa = "No"
		}
		ev["additionalEventData"] = map[string]any{"MFAUsed": mfa}
	case "AttachUserPolicy":
		ev["requestParameters"] = map[string]any{
			"userName":  "user-0",
			"policyArn": "arn:aws:iam::aws:policy/" + g.selectFrom([]string{"AdministratorAccess", "ReadOnlyAccess"}),
		}
	case "StopLogging", "DeleteTrail":
		ev["requestParameters"] = map[string]any{"name": "management-events"}
	}

	if g.rng.Float64() < accessDeniedProbability {
		ev["errorCode"] = "AccessDenied"
		ev["errorMessage"] = "User is not authorized to perform this operation"
	}
	return ev
}

// GenerateBatch returns n events.
func (g *Generator) GenerateBatch(n int) []events.Event {
	out := make([]events.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, g.Generate())
	}
	return out
}

func sourceFor(name string) string {
	if src, ok := eventSources[name]; ok {
		return src
	}
	return "ec2.amazonaws.com"
}

func (g *Generator) selectWeighted() string {
	total := 0
	for _, c := range g.dist {
		total += c.weight
	}
	r := g.rng.Intn(total)
	cumulative := 0
	for _, c := range g.dist {
		cumulative += c.weight
		if r < cumulative {
			return c.value
		}
	}
	return g.dist[len(g.dist)-1].value
}

func (g *Generator) selectFrom(choices []string) string {
	return choices[g.rng.Intn(len(choices))]
}

// LogsData wraps evs in the payload CloudWatch Logs delivers to a subscription.
func LogsData(evs []events.Event, owner, logGroup string) (lambdaevents.CloudwatchLogsData, error) {
	data := lambdaevents.CloudwatchLogsData{
		Owner:               owner,
		LogGroup:            logGroup,
		LogStream:           owner + "_CloudTrail_" + regions[0],
		SubscriptionFilters: []string{"cloudtrail-notifier"},
		MessageType:         "DATA_MESSAGE",
	}
	for _, ev := range evs {
		msg, err := json.Marshal(ev)
		if err != nil {
			return lambdaevents.CloudwatchLogsData{}, fmt.Errorf("failed to marshal event: %w", err)
		}
		data.LogEvents = append(data.LogEvents, lambdaevents.CloudwatchLogsLogEvent{
			ID:        uuid.NewString(),
			Timestamp: time.Now().UnixMilli(),
			Message:   string(msg),
		})
	}
	return data, nil
}

// Encode gzips and base64 encodes data into the raw subscription form.
func Encode(data lambdaevents.CloudwatchLogsData) (lambdaevents.CloudwatchLogsRawData, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return lambdaevents.CloudwatchLogsRawData{}, fmt.Errorf("failed to marshal logs data: %w", err)
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return lambdaevents.CloudwatchLogsRawData{}, fmt.Errorf("failed to compress logs data: %w", err)
	}
	if err := zw.Close(); err != nil {
		return lambdaevents.CloudwatchLogsRawData{}, fmt.Errorf("failed to compress logs data: %w", err)
	}
	return lambdaevents.CloudwatchLogsRawData{Data: base64.StdEncoding.EncodeToString(buf.Bytes())}, nil
}

// Envelope returns the JSON subscription event {"awslogs": {"data": ...}} for evs.
func Envelope(evs []events.Event, owner, logGroup string) ([]byte, error) {
	data, err := LogsData(evs, owner, logGroup)
	if err != nil {
		return nil, err
	}
	raw, err := Encode(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(lambdaevents.CloudwatchLogsEvent{AWSLogs: raw})
}
