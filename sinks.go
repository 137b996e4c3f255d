package hookrelay

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-hookrelay/config"
	"github.com/goliatone/go-hookrelay/core"
	"github.com/goliatone/go-hookrelay/providers"
	"github.com/goliatone/go-hookrelay/providers/discord"
	"github.com/goliatone/go-hookrelay/providers/telegram"
)

func DiscordSink(cfg discord.Config, adapter core.TransportAdapter) (core.Sink, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("hookrelay: discord sink has no webhook url")
	}
	return discord.NewSink(cfg, adapter), nil
}

func TelegramSink(cfg telegram.Config) (core.Sink, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("hookrelay: telegram sink needs a token and a chat id")
	}
	return telegram.New(cfg)
}

// SinkFactory builds a sink from the process config. It returns a nil sink
// when the config leaves that sink disabled.
type SinkFactory func(cfg config.AppConfig) (core.Sink, error)

// SinkRegistry holds named sink factories so embedders can add their own
// chat backends next to the built-in ones.
type SinkRegistry struct {
	mu        sync.RWMutex
	factories map[string]SinkFactory
}

func NewSinkRegistry() *SinkRegistry {
	return &SinkRegistry{factories: map[string]SinkFactory{}}
}

// DefaultSinkRegistry registers discord and telegram.
func DefaultSinkRegistry(adapter core.TransportAdapter) *SinkRegistry {
	registry := NewSinkRegistry()
	_ = registry.Register(discord.Name, func(cfg config.AppConfig) (core.Sink, error) {
		if !cfg.Discord.Enabled() {
			return nil, nil
		}
		return DiscordSink(cfg.Discord, adapter)
	})
	_ = registry.Register(telegram.Name, func(cfg config.AppConfig) (core.Sink, error) {
		if !cfg.Telegram.Enabled() {
			return nil, nil
		}
		return TelegramSink(cfg.Telegram)
	})
	return registry
}

func (r *SinkRegistry) Register(name string, factory SinkFactory) error {
	if r == nil {
		return fmt.Errorf("hookrelay: sink registry is nil")
	}
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		return fmt.Errorf("hookrelay: sink name is required")
	}
	if factory == nil {
		return fmt.Errorf("hookrelay: sink %q factory is required", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("hookrelay: sink %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

func (r *SinkRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build runs every factory in name order and keeps the enabled sinks. Two
// factories producing sinks with the same name is an error.
func (r *SinkRegistry) Build(cfg config.AppConfig) ([]core.Sink, error) {
	if r == nil {
		return nil, fmt.Errorf("hookrelay: sink registry is nil")
	}
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()
	built := providers.NewRegistry()
	for _, name := range names {
		sink, err := r.factories[name](cfg)
		if err != nil {
			return nil, fmt.Errorf("hookrelay: build sink %q: %w", name, err)
		}
		if sink == nil {
			continue
		}
		if err := built.Register(sink); err != nil {
			return nil, fmt.Errorf("hookrelay: build sink %q: %w", name, err)
		}
	}
	return built.List(), nil
}
