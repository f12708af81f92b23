// Package message builds chat messages for matched events and diagnostics.
package message

import (
	"fmt"
	"strings"
	"time"

	"cloudtrail-notifier/internal/events"
	"cloudtrail-notifier/internal/rules"
)

// maxJSONLength keeps the embedded event below chat attachment size limits.
const maxJSONLength = 2900

// Message is a chat message in Slack webhook payload shape.
type Message struct {
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a Slack message attachment.
type Attachment struct {
	Color     string  `json:"color,omitempty"`
	Title     string  `json:"title,omitempty"`
	Text      string  `json:"text,omitempty"`
	Fields    []Field `json:"fields,omitempty"`
	Footer    string  `json:"footer,omitempty"`
	Timestamp int64   `json:"ts,omitempty"`
}

// Field represents a field in a Slack attachment.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// ForEvent builds the notification for a matched event.
func ForEvent(rec events.Record, accountID string) Message {
	e := rec.Event
	eventName := e.String("eventName")
	if eventName == "" {
		eventName = "Unknown event"
	}

	fields := []Field{
		{Title: "Event name", Value: eventName, Short: true},
		{Title: "Account ID", Value: orDash(accountID), Short: true},
		{Title: "Event source", Value: orDash(e.String("eventSource")), Short: true},
		{Title: "Region", Value: orDash(e.String("awsRegion")), Short: true},
		{Title: "Actor", Value: orDash(actor(e)), Short: false},
		{Title: "Source IP", Value: orDash(e.String("sourceIPAddress")), Short: true},
		{Title: "Event time", Value: orDash(e.String("eventTime")), Short: true},
	}
	if code := e.String("errorCode"); code != "" {
		fields = append(fields,
			Field{Title: "Error code", Value: code, Short: true},
			Field{Title: "Error message", Value: orDash(e.String("errorMessage")), Short: false},
		)
	}

	var ts int64
	if t, err := time.Parse(time.RFC3339, e.String("eventTime")); err == nil {
		ts = t.Unix()
	}

	return Message{
		Text: fmt.Sprintf("*%s* in account %s", eventName, orDash(accountID)),
		Attachments: []Attachment{
			{
				Color:     colorFor(e),
				Title:     fmt.Sprintf("AWS API call: %s", eventName),
				Text:      codeBlock(e.JSON(true)),
				Fields:    fields,
				Footer:    footer(rec.SourceKey),
				Timestamp: ts,
			},
		},
	}
}

// ForRuleError builds the diagnostic for a rule that failed to evaluate.
func ForRuleError(err *rules.EvaluationError, sourceKey string) Message {
	var cause string
	if err.Err != nil {
		cause = err.Err.Error()
	}
	return Message{
		Text: "Failed to evaluate rule",
		Attachments: []Attachment{
			{
				Color: "danger",
				Title: "Rule evaluation error",
				Fields: []Field{
					{Title: "Rule", Value: codeBlock(err.Rule), Short: false},
					{Title: "Error", Value: codeBlock(cause), Short: false},
				},
				Footer: footer(sourceKey),
			},
		},
	}
}

// ForInternalError builds the notification sent when an event could not be processed at all.
func ForInternalError(err error, rec events.Record) Message {
	fields := []Field{
		{Title: "Error", Value: codeBlock(err.Error()), Short: false},
	}
	if id := rec.Event.String("eventID"); id != "" {
		fields = append(fields, Field{Title: "Event ID", Value: id, Short: true})
	}
	if name := rec.Event.String("eventName"); name != "" {
		fields = append(fields, Field{Title: "Event name", Value: name, Short: true})
	}
	return Message{
		Text: "Failed to process event",
		Attachments: []Attachment{
			{
				Color:  "danger",
				Title:  "Internal error",
				Fields: fields,
				Footer: footer(rec.SourceKey),
			},
		},
	}
}

func actor(e events.Event) string {
	if arn := e.Nested("userIdentity", "arn"); arn != "" {
		return arn
	}
	if p := e.Nested("userIdentity", "principalId"); p != "" {
		return p
	}
	return e.Nested("userIdentity", "type")
}

// colorFor returns the Slack color for an event.
func colorFor(e events.Event) string {
	switch {
	case e.Nested("userIdentity", "type") == "Root":
		return "danger"
	case e.String("errorCode") != "":
		return "danger"
	default:
		return "warning"
	}
}

func footer(sourceKey string) string {
	if sourceKey == "" {
		return ""
	}
	return "Source: " + sourceKey
}

func codeBlock(s string) string {
	if len(s) > maxJSONLength {
		s = s[:maxJSONLength] + "\n..."
	}
	return "```" + strings.ReplaceAll(s, "```", "'''") + "```"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
