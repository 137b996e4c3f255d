// Package config loads the relay process configuration from defaults, an
// optional YAML or JSON file and HOOKRELAY_* environment variables.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-hookrelay/core"
	"github.com/goliatone/go-hookrelay/maintenance"
	"github.com/goliatone/go-hookrelay/providers/discord"
	"github.com/goliatone/go-hookrelay/providers/telegram"
	"github.com/goliatone/go-hookrelay/webhooks"
)

const (
	DefaultAddr            = ":8080"
	DefaultMaxBodyBytes    = 1 << 20
	DefaultShutdownTimeout = "10s"
	DefaultCacheTTL        = "30s"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"

	StoreMemory = "memory"
)

type AppConfig struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name" yaml:"service_name"`
	Server      ServerConfig     `koanf:"server" mapstructure:"server" yaml:"server"`
	Routing     core.RoutingRule `koanf:"routing" mapstructure:"routing" yaml:"routing"`
	Dedup       DedupConfig      `koanf:"dedup" mapstructure:"dedup" yaml:"dedup"`
	Webhook     WebhookConfig    `koanf:"webhook" mapstructure:"webhook" yaml:"webhook"`
	Discord     discord.Config   `koanf:"discord" mapstructure:"discord" yaml:"discord"`
	Telegram    telegram.Config  `koanf:"telegram" mapstructure:"telegram" yaml:"telegram"`
	Store       StoreConfig      `koanf:"store" mapstructure:"store" yaml:"store"`
	RateLimit   RateLimitConfig  `koanf:"ratelimit" mapstructure:"ratelimit" yaml:"ratelimit"`
	Logging     LoggingConfig    `koanf:"logging" mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Addr            string `koanf:"addr" mapstructure:"addr" yaml:"addr"`
	MaxBodyBytes    int64  `koanf:"max_body_bytes" mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	ShutdownTimeout string `koanf:"shutdown_timeout" mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type DedupConfig struct {
	MaxEntries    int    `koanf:"max_entries" mapstructure:"max_entries" yaml:"max_entries"`
	Fingerprint   string `koanf:"fingerprint" mapstructure:"fingerprint" yaml:"fingerprint"`
	PruneSchedule string `koanf:"prune_schedule" mapstructure:"prune_schedule" yaml:"prune_schedule"`
}

// WebhookConfig lists the mounted providers. A provider without a secret
// accepts unsigned deliveries.
type WebhookConfig struct {
	Providers []string          `koanf:"providers" mapstructure:"providers" yaml:"providers"`
	Secrets   map[string]string `koanf:"secrets" mapstructure:"secrets" yaml:"secrets"`
}

func (c WebhookConfig) SecretFor(provider string) string {
	for key, secret := range c.Secrets {
		if strings.EqualFold(strings.TrimSpace(key), strings.TrimSpace(provider)) {
			return strings.TrimSpace(secret)
		}
	}
	return ""
}

// StoreConfig selects persistence. Driver "memory" keeps dedup and audit
// state in process.
type StoreConfig struct {
	Driver            string `koanf:"driver" mapstructure:"driver" yaml:"driver"`
	DSN               string `koanf:"dsn" mapstructure:"dsn" yaml:"dsn"`
	RateLimitCacheTTL string `koanf:"ratelimit_cache_ttl" mapstructure:"ratelimit_cache_ttl" yaml:"ratelimit_cache_ttl"`
}

func (c StoreConfig) Persistent() bool {
	driver := strings.TrimSpace(strings.ToLower(c.Driver))
	return driver != "" && driver != StoreMemory
}

type RateLimitConfig struct {
	PerSecond float64 `koanf:"per_second" mapstructure:"per_second" yaml:"per_second"`
	Burst     int     `koanf:"burst" mapstructure:"burst" yaml:"burst"`
	Adaptive  bool    `koanf:"adaptive" mapstructure:"adaptive" yaml:"adaptive"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" mapstructure:"level" yaml:"level"`
	Format string `koanf:"format" mapstructure:"format" yaml:"format"`
}

func Defaults() AppConfig {
	relay := core.DefaultConfig()
	return AppConfig{
		ServiceName: relay.ServiceName,
		Server: ServerConfig{
			Addr:            DefaultAddr,
			MaxBodyBytes:    DefaultMaxBodyBytes,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Dedup: DedupConfig{
			MaxEntries:    relay.Dedup.MaxEntries,
			Fingerprint:   relay.Dedup.Fingerprint,
			PruneSchedule: maintenance.DefaultPruneSchedule,
		},
		Webhook: WebhookConfig{
			Providers: []string{webhooks.ProviderGitea},
			Secrets:   map[string]string{},
		},
		Store: StoreConfig{
			Driver:            StoreMemory,
			RateLimitCacheTTL: DefaultCacheTTL,
		},
		RateLimit: RateLimitConfig{
			PerSecond: 5,
			Burst:     5,
			Adaptive:  true,
		},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

func (c AppConfig) Validate() error {
	if err := c.RelayConfig().Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("config: server.max_body_bytes must not be negative")
	}
	if _, err := parseDuration("server.shutdown_timeout", c.Server.ShutdownTimeout); err != nil {
		return err
	}
	if _, err := parseDuration("store.ratelimit_cache_ttl", c.Store.RateLimitCacheTTL); err != nil {
		return err
	}
	if len(c.Webhook.Providers) == 0 {
		return fmt.Errorf("config: webhook.providers needs at least one provider")
	}
	supported := webhooks.SupportedProviders()
	for _, provider := range c.Webhook.Providers {
		if !slices.Contains(supported, strings.TrimSpace(strings.ToLower(provider))) {
			return fmt.Errorf("config: webhook provider %q is not supported (%s)", provider, strings.Join(supported, ", "))
		}
	}
	if c.Store.Persistent() && strings.TrimSpace(c.Store.DSN) == "" {
		return fmt.Errorf("config: store.dsn is required for driver %q", c.Store.Driver)
	}
	if c.RateLimit.PerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("config: ratelimit values must not be negative")
	}
	return nil
}

// RelayConfig projects the core relay settings.
func (c AppConfig) RelayConfig() core.Config {
	return core.Config{
		ServiceName: c.ServiceName,
		Routing:     c.Routing,
		Dedup: core.DedupConfig{
			MaxEntries:  c.Dedup.MaxEntries,
			Fingerprint: c.Dedup.Fingerprint,
		},
	}
}

func (c AppConfig) ShutdownTimeout() time.Duration {
	d, err := parseDuration("server.shutdown_timeout", c.Server.ShutdownTimeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultShutdownTimeout)
	}
	return d
}

func (c AppConfig) RateLimitCacheTTL() time.Duration {
	d, err := parseDuration("store.ratelimit_cache_ttl", c.Store.RateLimitCacheTTL)
	if err != nil {
		return 0
	}
	return d
}

// SinkCount reports how many chat sinks have at least one target.
func (c AppConfig) SinkCount() int {
	count := 0
	if c.Discord.Enabled() {
		count++
	}
	if c.Telegram.Enabled() {
		count++
	}
	return count
}

func parseDuration(field string, value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("config: %s must not be negative", field)
	}
	return d, nil
}
