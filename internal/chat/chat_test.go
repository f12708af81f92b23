package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/slack-go/slack"

	"cloudtrail-notifier/internal/message"
)

var testMessage = message.Message{
	Text: "*StopLogging* in account 111111111111",
	Attachments: []message.Attachment{
		{Color: "warning", Title: "AWS API call: StopLogging", Fields: []message.Field{{Title: "Region", Value: "eu-west-1", Short: true}}, Timestamp: 1717999260},
	},
}

func TestNewConfig(t *testing.T) {
	tests := []struct {
		name     string
		hook     string
		token    string
		wantKind Kind
		wantErr  error
	}{
		{name: "webhook", hook: "https://hooks.slack.com/services/x", wantKind: KindWebhook},
		{name: "app", token: "xoxb-1", wantKind: KindApp},
		{name: "token wins", hook: "https://hooks.slack.com/services/x", token: "xoxb-1", wantKind: KindApp},
		{name: "neither", wantErr: ErrNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewConfig(tt.hook, tt.token, "C1", nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewConfig() error = %v, want %v", err, tt.wantErr)
			}
			if cfg.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", cfg.Kind, tt.wantKind)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid webhook", Config{Kind: KindWebhook, HookURL: "https://hooks.slack.com/services/x"}, false},
		{"channel name as hook", Config{Kind: KindWebhook, HookURL: "#general"}, true},
		{"bad route hook", Config{Kind: KindWebhook, HookURL: "https://a", Routes: []Route{{HookURL: "ftp://b"}}}, true},
		{"valid app", Config{Kind: KindApp, BotToken: "xoxb", DefaultChannelID: "C1"}, false},
		{"app routes only", Config{Kind: KindApp, BotToken: "xoxb", Routes: []Route{{Accounts: []string{"1"}, ChannelID: "C2"}}}, false},
		{"app without channel", Config{Kind: KindApp, BotToken: "xoxb"}, true},
		{"unknown", Config{Kind: "pager"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRouting(t *testing.T) {
	routes, err := ParseRoutes(`[
		{"accounts": ["111111111111", "222222222222"], "slack_channel_id": "CPROD", "slack_hook_url": "https://hooks.slack.com/prod"},
		{"accounts": ["333333333333"], "slack_channel_id": "CDEV"}
	]`)
	if err != nil {
		t.Fatalf("ParseRoutes() error = %v", err)
	}
	cfg := Config{HookURL: "https://hooks.slack.com/default", DefaultChannelID: "CDEFAULT", Routes: routes}

	tests := []struct {
		account, channel, hook string
	}{
		{"222222222222", "CPROD", "https://hooks.slack.com/prod"},
		{"333333333333", "CDEV", "https://hooks.slack.com/default"},
		{"444444444444", "CDEFAULT", "https://hooks.slack.com/default"},
		{"", "CDEFAULT", "https://hooks.slack.com/default"},
	}
	for _, tt := range tests {
		if got := cfg.ChannelFor(tt.account); got != tt.channel {
			t.Errorf("ChannelFor(%q) = %q, want %q", tt.account, got, tt.channel)
		}
		if got := cfg.HookFor(tt.account); got != tt.hook {
			t.Errorf("HookFor(%q) = %q, want %q", tt.account, got, tt.hook)
		}
	}

	if routes, err := ParseRoutes("  "); err != nil || routes != nil {
		t.Errorf("ParseRoutes(blank) = %v, %v", routes, err)
	}
	if _, err := ParseRoutes("{"); err == nil {
		t.Error("ParseRoutes(invalid) error = nil, want error")
	}
}

func TestWebhookPoster_Post(t *testing.T) {
	var got message.Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	p := NewWebhookPoster(Config{Kind: KindWebhook, HookURL: server.URL}, server.Client())
	if p.SupportsThreads() {
		t.Error("SupportsThreads() = true, want false")
	}

	res, err := p.Post(context.Background(), "111111111111", testMessage, "ignored-thread")
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if res.MessageID != "" {
		t.Errorf("MessageID = %q, want empty", res.MessageID)
	}
	if got.Text != testMessage.Text || len(got.Attachments) != 1 || got.Attachments[0].Timestamp != 1717999260 {
		t.Errorf("posted payload = %+v", got)
	}
}

func TestWebhookPoster_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid_token"))
	}))
	defer server.Close()

	p := NewWebhookPoster(Config{Kind: KindWebhook, HookURL: server.URL}, server.Client())
	_, err := p.Post(context.Background(), "", testMessage, "")

	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("Post() error = %v, want *DeliveryError", err)
	}
	if de.StatusCode != http.StatusForbidden || de.Mode != KindWebhook {
		t.Errorf("DeliveryError = %+v", de)
	}
	if !strings.Contains(de.Error(), "invalid_token") {
		t.Errorf("Error() = %q, want response body", de.Error())
	}
}

func TestWebhookPoster_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	hookURL := server.URL
	server.Close()

	p := NewWebhookPoster(Config{Kind: KindWebhook, HookURL: hookURL}, http.DefaultClient)
	if _, err := p.Post(context.Background(), "", testMessage, ""); err == nil {
		t.Error("Post() error = nil, want error")
	}
}

func newSlackAPI(t *testing.T, handler func(form url.Values) string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat.postMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(handler(form)))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestAppPoster_Post(t *testing.T) {
	var forms []url.Values
	server := newSlackAPI(t, func(form url.Values) string {
		forms = append(forms, form)
		return `{"ok": true, "channel": "` + form.Get("channel") + `", "ts": "1718000000.000100"}`
	})

	cfg := Config{
		Kind:             KindApp,
		BotToken:         "xoxb-test",
		DefaultChannelID: "CDEFAULT",
		Routes:           []Route{{Accounts: []string{"111111111111"}, ChannelID: "CPROD"}},
	}
	p := NewAppPoster(cfg, server.Client(), slack.OptionAPIURL(server.URL+"/"))
	if !p.SupportsThreads() {
		t.Error("SupportsThreads() = false, want true")
	}

	res, err := p.Post(context.Background(), "111111111111", testMessage, "")
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if res.MessageID != "1718000000.000100" || res.Channel != "CPROD" {
		t.Errorf("Post() = %+v", res)
	}

	if _, err := p.Post(context.Background(), "999999999999", testMessage, "1718000000.000100"); err != nil {
		t.Fatalf("threaded Post() error = %v", err)
	}

	if len(forms) != 2 {
		t.Fatalf("got %d requests, want 2", len(forms))
	}
	if forms[0].Get("thread_ts") != "" {
		t.Errorf("top-level post carried thread_ts %q", forms[0].Get("thread_ts"))
	}
	if forms[1].Get("channel") != "CDEFAULT" || forms[1].Get("thread_ts") != "1718000000.000100" {
		t.Errorf("reply form = %v", forms[1])
	}
	if !strings.Contains(forms[0].Get("attachments"), "AWS API call: StopLogging") {
		t.Errorf("attachments = %q", forms[0].Get("attachments"))
	}
}

func TestAppPoster_APIError(t *testing.T) {
	server := newSlackAPI(t, func(url.Values) string {
		return `{"ok": false, "error": "channel_not_found"}`
	})

	cfg := Config{Kind: KindApp, BotToken: "xoxb-test", DefaultChannelID: "CGONE"}
	p := NewAppPoster(cfg, server.Client(), slack.OptionAPIURL(server.URL+"/"))

	_, err := p.Post(context.Background(), "", testMessage, "")
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("Post() error = %v, want *DeliveryError", err)
	}
	if de.Target != "CGONE" || !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("DeliveryError = %v", de)
	}
}

func TestNew(t *testing.T) {
	p, err := New(Config{Kind: KindWebhook, HookURL: "https://hooks.slack.com/x"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := p.(*WebhookPoster); !ok {
		t.Errorf("New() = %T, want *WebhookPoster", p)
	}

	p, err = New(Config{Kind: KindApp, BotToken: "xoxb", DefaultChannelID: "C1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := p.(*AppPoster); !ok {
		t.Errorf("New() = %T, want *AppPoster", p)
	}

	if _, err := New(Config{Kind: KindApp}); err == nil {
		t.Error("New() error = nil, want validation error")
	}
}
