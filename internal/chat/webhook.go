package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"cloudtrail-notifier/internal/message"
	"cloudtrail-notifier/pkg/shared"
)

// WebhookPoster posts to Slack Incoming Webhooks. Webhooks return no message
// identifier, so it never threads.
type WebhookPoster struct {
	cfg        Config
	httpClient *http.Client
}

// NewWebhookPoster creates a webhook poster.
func NewWebhookPoster(cfg Config, httpClient *http.Client) *WebhookPoster {
	return &WebhookPoster{cfg: cfg, httpClient: httpClient}
}

// SupportsThreads always returns false.
func (p *WebhookPoster) SupportsThreads() bool {
	return false
}

// Post sends msg to the hook for accountID. threadHandle is ignored.
func (p *WebhookPoster) Post(ctx context.Context, accountID string, msg message.Message, _ string) (PostResult, error) {
	hookURL := p.cfg.HookFor(accountID)
	target := shared.MaskSecret(hookURL)

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return PostResult{}, fmt.Errorf("failed to marshal Slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hookURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return PostResult{}, &DeliveryError{Mode: KindWebhook, Target: target, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return PostResult{}, &DeliveryError{Mode: KindWebhook, Target: target, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PostResult{}, &DeliveryError{
			Mode:       KindWebhook,
			Target:     target,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("slack webhook returned %q", bytes.TrimSpace(body)),
		}
	}

	slog.Debug("Posted Slack webhook message",
		"account_id", accountID,
		"webhook_url", target,
	)
	return PostResult{}, nil
}
