package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Kind selects the chat delivery mode. Modes are mutually exclusive per deployment.
type Kind string

const (
	// KindWebhook posts to an incoming webhook. It cannot thread replies.
	KindWebhook Kind = "webhook"
	// KindApp posts through the bot-token API and supports threads.
	KindApp Kind = "app"
)

// ErrNotConfigured is returned when neither a webhook URL nor a bot token is set.
var ErrNotConfigured = errors.New("HOOK_URL or SLACK_BOT_TOKEN must be set")

// Route sends notifications for a set of accounts to a specific channel or hook.
type Route struct {
	Accounts  []string `json:"accounts" yaml:"accounts"`
	ChannelID string   `json:"slack_channel_id,omitempty" yaml:"slack_channel_id"`
	HookURL   string   `json:"slack_hook_url,omitempty" yaml:"slack_hook_url"`
}

// Config describes the chat backend.
type Config struct {
	Kind Kind

	// Webhook mode.
	HookURL string

	// App mode.
	BotToken         string
	DefaultChannelID string

	Routes []Route
}

// NewConfig picks the delivery mode. A bot token takes precedence over a hook URL.
func NewConfig(hookURL, botToken, defaultChannelID string, routes []Route) (Config, error) {
	switch {
	case botToken != "":
		return Config{Kind: KindApp, BotToken: botToken, DefaultChannelID: defaultChannelID, Routes: routes}, nil
	case hookURL != "":
		return Config{Kind: KindWebhook, HookURL: hookURL, Routes: routes}, nil
	default:
		return Config{}, ErrNotConfigured
	}
}

// ParseRoutes decodes the routing configuration JSON. Empty input yields no routes.
func ParseRoutes(raw string) ([]Route, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var routes []Route
	if err := json.Unmarshal([]byte(raw), &routes); err != nil {
		return nil, fmt.Errorf("failed to parse chat routing configuration: %w", err)
	}
	return routes, nil
}

// Validate checks the config is usable for its mode.
func (c Config) Validate() error {
	switch c.Kind {
	case KindWebhook:
		if !isValidURL(c.HookURL) {
			return fmt.Errorf("invalid Slack webhook URL: must be a valid HTTP/HTTPS URL")
		}
		for i, r := range c.Routes {
			if r.HookURL != "" && !isValidURL(r.HookURL) {
				return fmt.Errorf("route %d: invalid Slack webhook URL", i)
			}
		}
	case KindApp:
		if c.BotToken == "" {
			return fmt.Errorf("bot token is required in app mode")
		}
		if c.DefaultChannelID == "" && len(c.Routes) == 0 {
			return fmt.Errorf("DEFAULT_SLACK_CHANNEL_ID is required when no routes are configured")
		}
	default:
		return fmt.Errorf("unknown chat mode %q", c.Kind)
	}
	return nil
}

// ChannelFor returns the channel for accountID, falling back to the default channel.
func (c Config) ChannelFor(accountID string) string {
	for _, r := range c.Routes {
		if r.ChannelID != "" && slices.Contains(r.Accounts, accountID) {
			return r.ChannelID
		}
	}
	return c.DefaultChannelID
}

// HookFor returns the webhook URL for accountID, falling back to the default hook.
func (c Config) HookFor(accountID string) string {
	for _, r := range c.Routes {
		if r.HookURL != "" && slices.Contains(r.Accounts, accountID) {
			return r.HookURL
		}
	}
	return c.HookURL
}

// isValidURL checks if a string is a valid HTTP/HTTPS URL.
func isValidURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
