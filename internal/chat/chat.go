// Package chat delivers messages to Slack through an incoming webhook or the
// bot-token Web API.
package chat

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cloudtrail-notifier/internal/message"
)

// Poster delivers one message. Every call is a single attempt.
type Poster interface {
	// Post sends msg for accountID. When threadHandle is non-empty and the
	// backend supports threads the message is posted as a reply.
	Post(ctx context.Context, accountID string, msg message.Message, threadHandle string) (PostResult, error)

	// SupportsThreads reports whether the backend returns message identifiers
	// that can be replied to.
	SupportsThreads() bool
}

// PostResult carries the backend's identifier for the posted message, empty
// when the backend does not return one.
type PostResult struct {
	MessageID string
	Channel   string
}

// DeliveryError reports a failed chat delivery.
type DeliveryError struct {
	Mode       Kind
	Target     string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s delivery to %s failed with status %d: %v", e.Mode, e.Target, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s delivery to %s failed: %v", e.Mode, e.Target, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// New creates the Poster for cfg.Kind.
func New(cfg Config) (Poster, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: 30 * time.Second}
	switch cfg.Kind {
	case KindApp:
		return NewAppPoster(cfg, client), nil
	default:
		return NewWebhookPoster(cfg, client), nil
	}
}
