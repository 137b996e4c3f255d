package discord

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/goliatone/go-hookrelay/core"
	"github.com/goliatone/go-hookrelay/transport"
)

const Name = "discord"

// MaxContentLength is the Discord limit for a webhook message body.
const MaxContentLength = 2000

type Config struct {
	CommonURL   string `koanf:"common_url" mapstructure:"common_url" yaml:"common_url"`
	PersonalURL string `koanf:"personal_url" mapstructure:"personal_url" yaml:"personal_url"`
	Username    string `koanf:"username" mapstructure:"username" yaml:"username"`
}

func (c Config) URLFor(channel core.Channel) string {
	switch channel {
	case core.ChannelCommon:
		return strings.TrimSpace(c.CommonURL)
	case core.ChannelPersonal:
		return strings.TrimSpace(c.PersonalURL)
	default:
		return ""
	}
}

func (c Config) Enabled() bool {
	return c.URLFor(core.ChannelCommon) != "" || c.URLFor(core.ChannelPersonal) != ""
}

type webhookMessage struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// Sink posts {"content": message} to the webhook URL configured for each
// channel.
type Sink struct {
	config    Config
	transport core.TransportAdapter
}

func NewSink(cfg Config, adapter core.TransportAdapter) *Sink {
	if adapter == nil {
		adapter = transport.NewRESTAdapter(nil)
	}
	return &Sink{config: cfg, transport: adapter}
}

func (*Sink) Name() string {
	return Name
}

func (s *Sink) Send(ctx context.Context, channel core.Channel, message string) (core.ProviderResponseMeta, error) {
	if s == nil {
		return core.ProviderResponseMeta{}, core.ErrChannelNotConfigured
	}
	url := s.config.URLFor(channel)
	if url == "" {
		return core.ProviderResponseMeta{}, core.ErrChannelNotConfigured
	}
	res, err := transport.PostJSON(ctx, s.transport, url, webhookMessage{
		Content:  truncate(message, MaxContentLength),
		Username: strings.TrimSpace(s.config.Username),
	})
	meta := core.ProviderResponseMeta{
		StatusCode: res.StatusCode,
		Headers:    res.Headers,
		Metadata:   map[string]any{"sink": Name, "channel": string(channel)},
	}
	if retryAfter := transport.RetryAfter(res.Headers); retryAfter > 0 {
		meta.RetryAfter = &retryAfter
	}
	if err != nil {
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) {
			return meta, statusErr.ToRelayError()
		}
		return meta, err
	}
	return meta, nil
}

func truncate(message string, limit int) string {
	if utf8.RuneCountInString(message) <= limit {
		return message
	}
	runes := []rune(message)
	return string(runes[:limit-1]) + "…"
}

var _ core.Sink = (*Sink)(nil)
