package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

var ErrDeduplicatorRequired = errors.New("core: deduplicator is required")

type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeRejected   Outcome = "rejected"
	OutcomeFailed     Outcome = "failed"
)

// Result describes what happened to one submitted payload. Fields past
// Outcome are filled as far as processing got.
type Result struct {
	Outcome      Outcome
	Kind         EventKind
	Fingerprint  Fingerprint
	Message      string
	Destinations Destinations
	Actor        string
	Repository   string
	Ref          string
}

func (r Result) Delivered() bool {
	return r.Outcome == OutcomeDispatched && !r.Destinations.Empty()
}

type Relay struct {
	config          Config
	routing         atomic.Pointer[RoutingRule]
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	deduplicator    Deduplicator
	fingerprinter   Fingerprinter
	notifier        Notifier
	now             func() time.Time
}

type RelayDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	Deduplicator    Deduplicator
	Fingerprinter   Fingerprinter
	Notifier        Notifier
}

func NewRelay(cfg Config, opts ...Option) (*Relay, error) {
	builder := defaultRelayBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("relay", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("relay"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.notifier == nil {
		builder.notifier = DiscardNotifier{}
	}
	if builder.now == nil {
		builder.now = time.Now
	}
	if builder.deduplicator == nil {
		return nil, mapBuildError(builder.errorMapper, ErrDeduplicatorRequired)
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	fingerprinter := builder.fingerprinter
	if fingerprinter == nil {
		fingerprinter, err = NewFingerprinter(FingerprintStrategy(finalConfig.Dedup.Fingerprint))
		if err != nil {
			return nil, mapBuildError(builder.errorMapper, err)
		}
	}

	relay := &Relay{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		deduplicator:    builder.deduplicator,
		fingerprinter:   fingerprinter,
		notifier:        builder.notifier,
		now:             builder.now,
	}
	rule := finalConfig.Routing
	relay.routing.Store(&rule)
	return relay, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (r *Relay) Config() Config {
	if r == nil {
		return Config{}
	}
	cfg := r.config
	cfg.Routing = r.Routing()
	return cfg
}

func (r *Relay) Dependencies() RelayDependencies {
	if r == nil {
		return RelayDependencies{}
	}
	return RelayDependencies{
		Logger:          r.logger,
		LoggerProvider:  r.loggerProvider,
		MetricsRecorder: r.metricsRecorder,
		ErrorMapper:     r.errorMapper,
		Deduplicator:    r.deduplicator,
		Fingerprinter:   r.fingerprinter,
		Notifier:        r.notifier,
	}
}

func (r *Relay) Routing() RoutingRule {
	if r == nil {
		return RoutingRule{}
	}
	if rule := r.routing.Load(); rule != nil {
		return *rule
	}
	return RoutingRule{}
}

// UpdateRouting swaps the routing rule for subsequent submissions.
func (r *Relay) UpdateRouting(rule RoutingRule) {
	if r == nil {
		return
	}
	rule.TargetUser = strings.TrimSpace(rule.TargetUser)
	rule.CommonRepository = strings.TrimSpace(rule.CommonRepository)
	r.routing.Store(&rule)
	r.logWithLevel(context.Background(), "info", "relay routing updated", map[string]any{
		"target_user":       rule.TargetUser,
		"common_repository": rule.CommonRepository,
	})
}

// Submit runs one payload through validation, deduplication, classification,
// formatting and routing, then hands the notification to the notifier. The
// fingerprint is claimed before delivery, so a failed delivery still
// suppresses retransmissions inside the window.
func (r *Relay) Submit(ctx context.Context, payload Payload) (result Result, err error) {
	if r == nil {
		return Result{Outcome: OutcomeFailed}, ErrProcessingFailure(errors.New("core: relay is nil"), "received")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := r.now()
	stage := "received"
	defer func() {
		if recovered := recover(); recovered != nil {
			result.Outcome = OutcomeFailed
			err = ErrProcessingFailure(fmt.Errorf("core: panic: %v", recovered), stage)
		}
		r.observeSubmit(ctx, startedAt, result, err)
	}()

	if payload.Empty() {
		return Result{Outcome: OutcomeRejected}, ErrEmptyPayload()
	}

	identity := payload.Identity()
	result = Result{
		Actor:      identity.Actor,
		Repository: identity.Repository,
		Ref:        payload.Ref(),
	}
	if !identity.Known() {
		result.Outcome = OutcomeRejected
		return result, ErrMissingIdentity(identity)
	}

	stage = "validated"
	result.Kind = Classify(payload)
	fingerprint, fpErr := r.fingerprinter.Fingerprint(payload, result.Kind)
	if fpErr != nil {
		result.Outcome = OutcomeFailed
		return result, ErrProcessingFailure(fpErr, stage)
	}
	result.Fingerprint = fingerprint

	claimed, claimErr := r.deduplicator.Claim(ctx, fingerprint, startedAt)
	if claimErr != nil {
		result.Outcome = OutcomeFailed
		return result, ErrProcessingFailure(claimErr, stage)
	}
	if !claimed {
		result.Outcome = OutcomeSuppressed
		return result, nil
	}

	stage = "deduplicated"
	result.Message = FormatMessage(payload, result.Kind)
	result.Destinations = r.Routing().Route(identity.Actor, identity.Repository)

	stage = "routed"
	if !result.Destinations.Empty() {
		deliverErr := r.notifier.Deliver(ctx, Notification{
			Message:      result.Message,
			Destinations: append(Destinations(nil), result.Destinations...),
			Kind:         result.Kind,
			Fingerprint:  fingerprint,
			Actor:        identity.Actor,
			Repository:   identity.Repository,
		})
		if deliverErr != nil {
			result.Outcome = OutcomeFailed
			return result, ErrProcessingFailure(deliverErr, stage)
		}
	}

	result.Outcome = OutcomeDispatched
	return result, nil
}

// Preview classifies, formats and routes a payload without touching dedup
// state or the notifier.
func (r *Relay) Preview(payload Payload) (Result, error) {
	if payload.Empty() {
		return Result{Outcome: OutcomeRejected}, ErrEmptyPayload()
	}
	identity := payload.Identity()
	result := Result{
		Actor:      identity.Actor,
		Repository: identity.Repository,
		Ref:        payload.Ref(),
		Kind:       Classify(payload),
	}
	if !identity.Known() {
		result.Outcome = OutcomeRejected
		return result, ErrMissingIdentity(identity)
	}
	result.Message = FormatMessage(payload, result.Kind)
	result.Destinations = r.Routing().Route(identity.Actor, identity.Repository)
	result.Outcome = OutcomeDispatched
	return result, nil
}

// DiscardNotifier accepts every notification and drops it.
type DiscardNotifier struct{}

func (DiscardNotifier) Deliver(context.Context, Notification) error {
	return nil
}

var (
	_ Notifier = DiscardNotifier{}
	_ Notifier = NotifierFunc(nil)
)
