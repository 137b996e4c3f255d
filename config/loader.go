package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
	"gopkg.in/yaml.v3"
)

const DefaultEnvPrefix = "HOOKRELAY_"

type valueKind int

const (
	kindString valueKind = iota
	kindInt
	kindFloat
	kindBool
	kindList
)

type envBinding struct {
	name string
	path []string
	kind valueKind
}

// envBindings maps HOOKRELAY_<NAME> onto config keys. Webhook secrets are
// read separately from HOOKRELAY_WEBHOOK_SECRET_<PROVIDER>.
var envBindings = []envBinding{
	{"SERVICE_NAME", []string{"service_name"}, kindString},
	{"SERVER_ADDR", []string{"server", "addr"}, kindString},
	{"SERVER_MAX_BODY_BYTES", []string{"server", "max_body_bytes"}, kindInt},
	{"SERVER_SHUTDOWN_TIMEOUT", []string{"server", "shutdown_timeout"}, kindString},
	{"ROUTING_TARGET_USER", []string{"routing", "target_user"}, kindString},
	{"ROUTING_COMMON_REPOSITORY", []string{"routing", "common_repository"}, kindString},
	{"DEDUP_MAX_ENTRIES", []string{"dedup", "max_entries"}, kindInt},
	{"DEDUP_FINGERPRINT", []string{"dedup", "fingerprint"}, kindString},
	{"DEDUP_PRUNE_SCHEDULE", []string{"dedup", "prune_schedule"}, kindString},
	{"WEBHOOK_PROVIDERS", []string{"webhook", "providers"}, kindList},
	{"DISCORD_COMMON_URL", []string{"discord", "common_url"}, kindString},
	{"DISCORD_PERSONAL_URL", []string{"discord", "personal_url"}, kindString},
	{"DISCORD_USERNAME", []string{"discord", "username"}, kindString},
	{"TELEGRAM_TOKEN", []string{"telegram", "token"}, kindString},
	{"TELEGRAM_COMMON_CHAT_ID", []string{"telegram", "common_chat_id"}, kindInt},
	{"TELEGRAM_PERSONAL_CHAT_ID", []string{"telegram", "personal_chat_id"}, kindInt},
	{"TELEGRAM_THREAD_ID", []string{"telegram", "thread_id"}, kindInt},
	{"STORE_DRIVER", []string{"store", "driver"}, kindString},
	{"STORE_DSN", []string{"store", "dsn"}, kindString},
	{"STORE_RATELIMIT_CACHE_TTL", []string{"store", "ratelimit_cache_ttl"}, kindString},
	{"RATELIMIT_PER_SECOND", []string{"ratelimit", "per_second"}, kindFloat},
	{"RATELIMIT_BURST", []string{"ratelimit", "burst"}, kindInt},
	{"RATELIMIT_ADAPTIVE", []string{"ratelimit", "adaptive"}, kindBool},
	{"LOGGING_LEVEL", []string{"logging", "level"}, kindString},
	{"LOGGING_FORMAT", []string{"logging", "format"}, kindString},
}

// Loader resolves AppConfig as defaults < file < environment.
type Loader struct {
	// Path is optional. .yaml, .yml and .json files are accepted.
	Path      string
	EnvPrefix string
	Environ   func() []string
	ReadFile  func(name string) ([]byte, error)
}

func NewLoader(path string) Loader {
	return Loader{Path: strings.TrimSpace(path)}
}

func (l Loader) Load(ctx context.Context) (AppConfig, error) {
	defaults := Defaults()
	defaultLayer, err := toLayer(defaults)
	if err != nil {
		return AppConfig{}, err
	}
	fileLayer, err := l.fileLayer()
	if err != nil {
		return AppConfig{}, err
	}
	envLayer, err := l.envLayer()
	if err != nil {
		return AppConfig{}, err
	}

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("file", 10),
			fileLayer,
			opts.WithSnapshotID[map[string]any]("file"),
		),
		opts.NewLayer(
			opts.NewScope("env", 20),
			envLayer,
			opts.WithSnapshotID[map[string]any]("env"),
		),
	)
	if err != nil {
		return AppConfig{}, fmt.Errorf("config: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return AppConfig{}, fmt.Errorf("config: options merge failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return AppConfig{}, err
	}
	cfg, err := cfgx.Build[AppConfig](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[AppConfig]((*AppConfig).Validate),
	)
	if err != nil {
		return AppConfig{}, err
	}
	cfg.normalize()
	return cfg, nil
}

// LoadRaw returns the file and environment layers merged, without defaults.
// It satisfies core.RawConfigLoader.
func (l Loader) LoadRaw(context.Context) (map[string]any, error) {
	fileLayer, err := l.fileLayer()
	if err != nil {
		return nil, err
	}
	envLayer, err := l.envLayer()
	if err != nil {
		return nil, err
	}
	return mergeMaps(fileLayer, envLayer), nil
}

func (l Loader) fileLayer() (map[string]any, error) {
	path := strings.TrimSpace(l.Path)
	if path == "" {
		return map[string]any{}, nil
	}
	read := l.ReadFile
	if read == nil {
		read = os.ReadFile
	}
	raw, err := read(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("config: unsupported config file extension %q", ext)
	}
	// JSON is a YAML subset, so one decoder serves both.
	layer := map[string]any{}
	if err := yaml.Unmarshal(raw, &layer); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if layer == nil {
		layer = map[string]any{}
	}
	return layer, nil
}

func (l Loader) envLayer() (map[string]any, error) {
	prefix := l.EnvPrefix
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	environ := l.Environ
	if environ == nil {
		environ = os.Environ
	}
	values := map[string]string{}
	for _, entry := range environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		values[strings.TrimPrefix(key, prefix)] = value
	}

	layer := map[string]any{}
	for _, binding := range envBindings {
		raw, ok := values[binding.name]
		if !ok {
			continue
		}
		value, err := convertEnv(binding.kind, raw)
		if err != nil {
			return nil, fmt.Errorf("config: %s%s: %w", prefix, binding.name, err)
		}
		setPath(layer, binding.path, value)
	}
	const secretPrefix = "WEBHOOK_SECRET_"
	for name, value := range values {
		if !strings.HasPrefix(name, secretPrefix) {
			continue
		}
		provider := strings.ToLower(strings.TrimPrefix(name, secretPrefix))
		if provider == "" {
			continue
		}
		setPath(layer, []string{"webhook", "secrets", provider}, value)
	}
	return layer, nil
}

func convertEnv(kind valueKind, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case kindInt:
		return strconv.ParseInt(raw, 10, 64)
	case kindFloat:
		return strconv.ParseFloat(raw, 64)
	case kindBool:
		return strconv.ParseBool(raw)
	case kindList:
		out := []any{}
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	default:
		return raw, nil
	}
}

func setPath(target map[string]any, path []string, value any) {
	current := target
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

func mergeMaps(base map[string]any, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range overlay {
		baseChild, baseOK := out[key].(map[string]any)
		overlayChild, overlayOK := value.(map[string]any)
		if baseOK && overlayOK {
			out[key] = mergeMaps(baseChild, overlayChild)
			continue
		}
		out[key] = value
	}
	return out
}

// toLayer renders cfg through its yaml tags so key names match the file
// layer.
func toLayer(cfg AppConfig) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("config: encode defaults: %w", err)
	}
	layer := map[string]any{}
	if err := yaml.Unmarshal(raw, &layer); err != nil {
		return nil, fmt.Errorf("config: decode defaults: %w", err)
	}
	return layer, nil
}

func (c *AppConfig) normalize() {
	c.Store.Driver = strings.TrimSpace(strings.ToLower(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = StoreMemory
	}
	providers := make([]string, 0, len(c.Webhook.Providers))
	for _, provider := range c.Webhook.Providers {
		if provider = strings.TrimSpace(strings.ToLower(provider)); provider != "" {
			providers = append(providers, provider)
		}
	}
	c.Webhook.Providers = providers
	if c.Webhook.Secrets == nil {
		c.Webhook.Secrets = map[string]string{}
	}
}

// Encode renders the effective config as YAML with secrets masked.
func Encode(cfg AppConfig) ([]byte, error) {
	masked := cfg
	masked.Webhook.Secrets = map[string]string{}
	for provider, secret := range cfg.Webhook.Secrets {
		masked.Webhook.Secrets[provider] = mask(secret)
	}
	masked.Telegram.Token = mask(cfg.Telegram.Token)
	masked.Discord.CommonURL = maskURL(cfg.Discord.CommonURL)
	masked.Discord.PersonalURL = maskURL(cfg.Discord.PersonalURL)
	masked.Store.DSN = mask(cfg.Store.DSN)
	return yaml.Marshal(masked)
}

func mask(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return "******"
}

// maskURL keeps the scheme and host so operators can tell targets apart.
func maskURL(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	scheme, rest, ok := strings.Cut(value, "://")
	if !ok {
		return mask(value)
	}
	host, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + host + "/******"
}
