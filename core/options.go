package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type relayBuilder struct {
	runtimeConfig   Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	deduplicator    Deduplicator
	fingerprinter   Fingerprinter
	notifier        Notifier
	now             func() time.Time
}

type Option func(*relayBuilder)

func WithLogger(logger Logger) Option {
	return func(b *relayBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *relayBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *relayBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper ErrorMapper) Option {
	return func(b *relayBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *relayBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *relayBuilder) {
		b.optionsResolver = resolver
	}
}

func WithDeduplicator(deduplicator Deduplicator) Option {
	return func(b *relayBuilder) {
		b.deduplicator = deduplicator
	}
}

// WithFingerprinter overrides the strategy selected by dedup.fingerprint.
func WithFingerprinter(fingerprinter Fingerprinter) Option {
	return func(b *relayBuilder) {
		b.fingerprinter = fingerprinter
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(b *relayBuilder) {
		b.notifier = notifier
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *relayBuilder) {
		b.now = now
	}
}

func defaultRelayBuilder(runtime Config) relayBuilder {
	return relayBuilder{
		runtimeConfig:   runtime,
		metricsRecorder: NopMetricsRecorder{},
		errorMapper:     defaultErrorMapper,
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		notifier:        DiscardNotifier{},
		now:             time.Now,
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return relayErrorMapper(err)
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges defaults < loaded < runtime. Zero values in the
// loaded and runtime layers are treated as unset.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := ConfigToLayerMap(defaults, true)
	loadedLayer := ConfigToLayerMap(loaded, false)
	runtimeLayer := ConfigToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ConfigToLayerMap renders cfg as a go-options layer. With includeZero unset
// fields are omitted so they do not shadow lower layers.
func ConfigToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	routing := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Routing.TargetUser) != "" {
		routing["target_user"] = cfg.Routing.TargetUser
	}
	if includeZero || strings.TrimSpace(cfg.Routing.CommonRepository) != "" {
		routing["common_repository"] = cfg.Routing.CommonRepository
	}
	if len(routing) > 0 {
		layer["routing"] = routing
	}

	dedup := map[string]any{}
	if includeZero || cfg.Dedup.MaxEntries > 0 {
		dedup["max_entries"] = cfg.Dedup.MaxEntries
	}
	if includeZero || strings.TrimSpace(cfg.Dedup.Fingerprint) != "" {
		dedup["fingerprint"] = cfg.Dedup.Fingerprint
	}
	if len(dedup) > 0 {
		layer["dedup"] = dedup
	}
	return layer
}
