// Package logbatch decodes CloudWatch Logs subscription batches carrying
// CloudTrail events into records.
package logbatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"

	lambdaevents "github.com/aws/aws-lambda-go/events"

	"cloudtrail-notifier/internal/events"
)

// controlMessage is sent by CloudWatch Logs to check the destination is reachable.
const controlMessage = "CONTROL_MESSAGE"

// Decode decodes the base64 gzip payload of a subscription event. A payload
// that cannot be decoded fails the whole batch; individual log events that are
// not valid JSON objects are logged and skipped.
func Decode(raw lambdaevents.CloudwatchLogsRawData) ([]events.Record, error) {
	data, err := raw.Parse()
	if err != nil {
		return nil, fmt.Errorf("failed to decode log batch: %w", err)
	}
	return Records(data), nil
}

// DecodeJSON decodes a subscription event delivered as JSON, {"awslogs": {"data": "..."}}.
func DecodeJSON(body []byte) ([]events.Record, error) {
	var ev lambdaevents.CloudwatchLogsEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("failed to unmarshal log batch envelope: %w", err)
	}
	if ev.AWSLogs.Data == "" {
		return nil, fmt.Errorf("log batch envelope has no awslogs.data")
	}
	return Decode(ev.AWSLogs)
}

// Records converts decoded batch data into records in arrival order.
func Records(data lambdaevents.CloudwatchLogsData) []events.Record {
	if data.MessageType == controlMessage {
		slog.Debug("Skipping control message", "log_group", data.LogGroup)
		return nil
	}

	records := make([]events.Record, 0, len(data.LogEvents))
	for _, le := range data.LogEvents {
		event, err := ParseEvent([]byte(le.Message))
		if err != nil {
			slog.Error("Skipping malformed log event",
				"log_group", data.LogGroup,
				"log_event_id", le.ID,
				"error", err,
			)
			continue
		}
		records = append(records, events.Record{
			SourceKey: data.LogGroup,
			AccountID: data.Owner,
			Event:     event,
		})
	}
	return records
}

// ParseEvent decodes one JSON object. Numbers are kept as json.Number so
// large identifiers survive re-encoding.
func ParseEvent(b []byte) (events.Event, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	var event events.Event
	if err := dec.Decode(&event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if event == nil {
		return nil, fmt.Errorf("event is not a JSON object")
	}
	return event, nil
}
