package telegram

import (
	"context"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookrelay/core"
	tele "gopkg.in/telebot.v4"
)

const Name = "telegram"

const maxMessageLength = 4096

type Config struct {
	Token          string `koanf:"token" mapstructure:"token" yaml:"token"`
	CommonChatID   int64  `koanf:"common_chat_id" mapstructure:"common_chat_id" yaml:"common_chat_id"`
	PersonalChatID int64  `koanf:"personal_chat_id" mapstructure:"personal_chat_id" yaml:"personal_chat_id"`
	ThreadID       int    `koanf:"thread_id" mapstructure:"thread_id" yaml:"thread_id"`
}

func (c Config) ChatFor(channel core.Channel) int64 {
	switch channel {
	case core.ChannelCommon:
		return c.CommonChatID
	case core.ChannelPersonal:
		return c.PersonalChatID
	default:
		return 0
	}
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Token) != "" && (c.CommonChatID != 0 || c.PersonalChatID != 0)
}

// Sender is the part of *tele.Bot the sink needs.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Sink struct {
	config Config
	sender Sender
}

func New(cfg Config) (*Sink, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("telegram: token is required")
	}
	bot, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "telegram: create bot").
			WithTextCode(core.RelayErrorDeliveryFailed)
	}
	return NewSink(cfg, bot), nil
}

func NewSink(cfg Config, sender Sender) *Sink {
	return &Sink{config: cfg, sender: sender}
}

func (*Sink) Name() string {
	return Name
}

func (s *Sink) Send(ctx context.Context, channel core.Channel, message string) (core.ProviderResponseMeta, error) {
	meta := core.ProviderResponseMeta{Metadata: map[string]any{"sink": Name, "channel": string(channel)}}
	if s == nil || s.sender == nil {
		return meta, core.ErrChannelNotConfigured
	}
	chatID := s.config.ChatFor(channel)
	if chatID == 0 {
		return meta, core.ErrChannelNotConfigured
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return meta, err
		}
	}

	opts := &tele.SendOptions{ThreadID: s.config.ThreadID, DisableWebPagePreview: true}
	sent, err := s.sender.Send(&tele.Chat{ID: chatID}, PlainText(message), opts)
	if err != nil {
		return meta, goerrors.Wrap(err, goerrors.CategoryExternal, "telegram: send message").
			WithTextCode(core.RelayErrorDeliveryFailed).
			WithMetadata(map[string]any{"chat_id": chatID})
	}
	meta.StatusCode = 200
	if sent != nil {
		meta.Metadata["message_id"] = sent.ID
	}
	return meta, nil
}

// PlainText strips the Discord bold markers, which Telegram would otherwise
// print literally, and clamps to the Telegram message limit.
func PlainText(message string) string {
	message = strings.ReplaceAll(message, "**", "")
	runes := []rune(message)
	if len(runes) > maxMessageLength {
		return string(runes[:maxMessageLength-1]) + "…"
	}
	return message
}

var _ core.Sink = (*Sink)(nil)
