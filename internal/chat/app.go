package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/slack-go/slack"

	"cloudtrail-notifier/internal/message"
)

// AppPoster posts with chat.postMessage using a bot token.
type AppPoster struct {
	cfg Config
	api *slack.Client
}

// NewAppPoster creates an app poster. Extra options are passed to the Slack
// client, e.g. slack.OptionAPIURL in tests.
func NewAppPoster(cfg Config, httpClient *http.Client, opts ...slack.Option) *AppPoster {
	opts = append([]slack.Option{slack.OptionHTTPClient(httpClient)}, opts...)
	return &AppPoster{cfg: cfg, api: slack.New(cfg.BotToken, opts...)}
}

// SupportsThreads always returns true.
func (p *AppPoster) SupportsThreads() bool {
	return true
}

// Post sends msg to the channel for accountID, as a reply when threadHandle is set.
func (p *AppPoster) Post(ctx context.Context, accountID string, msg message.Message, threadHandle string) (PostResult, error) {
	channel := p.cfg.ChannelFor(accountID)

	opts := []slack.MsgOption{
		slack.MsgOptionText(msg.Text, false),
		slack.MsgOptionAttachments(toSlackAttachments(msg.Attachments)...),
	}
	if threadHandle != "" {
		opts = append(opts, slack.MsgOptionTS(threadHandle))
	}

	respChannel, ts, err := p.api.PostMessageContext(ctx, channel, opts...)
	if err != nil {
		return PostResult{}, &DeliveryError{Mode: KindApp, Target: channel, Err: err}
	}

	slog.Debug("Posted Slack message",
		"account_id", accountID,
		"channel", respChannel,
		"ts", ts,
		"thread_ts", threadHandle,
	)
	return PostResult{MessageID: ts, Channel: respChannel}, nil
}

func toSlackAttachments(in []message.Attachment) []slack.Attachment {
	out := make([]slack.Attachment, 0, len(in))
	for _, a := range in {
		fields := make([]slack.AttachmentField, 0, len(a.Fields))
		for _, f := range a.Fields {
			fields = append(fields, slack.AttachmentField{Title: f.Title, Value: f.Value, Short: f.Short})
		}
		att := slack.Attachment{
			Color:  a.Color,
			Title:  a.Title,
			Text:   a.Text,
			Fields: fields,
			Footer: a.Footer,
		}
		if a.Timestamp != 0 {
			att.Ts = json.Number(strconv.FormatInt(a.Timestamp, 10))
		}
		out = append(out, att)
	}
	return out
}
