package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hookrelay/core"
	"github.com/goliatone/go-hookrelay/ratelimit"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

const (
	// DefaultBucketKey names the single outbound bucket a sink channel uses.
	DefaultBucketKey = "messages"
	// AuditOnlySink is the sink name on ledger rows written when no chat
	// sink is configured.
	AuditOnlySink = "none"
)

// Dispatcher fans a notification out to every sink for every destination
// channel. It implements core.Notifier and never retries. Without sinks it
// runs audit-only and records a skipped row per destination.
type Dispatcher struct {
	sinks  []core.Sink
	policy core.RateLimitPolicy
	ledger core.DispatchLedger
	logger core.Logger
	now    func() time.Time
	newID  func() string
}

type Option func(*Dispatcher)

func WithRateLimitPolicy(policy core.RateLimitPolicy) Option {
	return func(d *Dispatcher) {
		d.policy = policy
	}
}

// WithLedger records one audit row per sink and channel attempt.
func WithLedger(ledger core.DispatchLedger) Option {
	return func(d *Dispatcher) {
		d.ledger = ledger
	}
}

func WithLogger(logger core.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(d *Dispatcher) {
		if provider != nil {
			d.logger = provider.GetLogger("hookrelay.dispatch")
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

func New(sinks []core.Sink, opts ...Option) (*Dispatcher, error) {
	filtered := make([]core.Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		filtered = append(filtered, sink)
	}
	d := &Dispatcher{
		sinks:  filtered,
		logger: glog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

func (d *Dispatcher) Sinks() []core.Sink {
	if d == nil {
		return nil
	}
	return append([]core.Sink(nil), d.sinks...)
}

func (d *Dispatcher) Deliver(ctx context.Context, notification core.Notification) error {
	if d == nil {
		return fmt.Errorf("dispatch: dispatcher is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if len(d.sinks) == 0 {
		for _, channel := range notification.Destinations {
			d.record(ctx, AuditOnlySink, channel, notification, core.DispatchStatusSkipped, nil)
		}
		return nil
	}

	var failures []error
	delivered := 0
	for _, channel := range notification.Destinations {
		for _, sink := range d.sinks {
			status, err := d.send(ctx, sink, channel, notification.Message)
			d.record(ctx, sink.Name(), channel, notification, status, err)
			switch status {
			case core.DispatchStatusDelivered:
				delivered++
			case core.DispatchStatusFailed, core.DispatchStatusThrottled:
				failures = append(failures, err)
			}
		}
	}

	if len(failures) == 0 {
		if delivered == 0 && !notification.Destinations.Empty() {
			d.logger.Warn("no sink configured for notification destinations",
				"destinations", notification.Destinations.String(),
				"fingerprint", notification.Fingerprint.Short(),
			)
		}
		return nil
	}
	return goerrors.Wrap(errors.Join(failures...), goerrors.CategoryExternal, "dispatch: delivery failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(core.RelayErrorDeliveryFailed).
		WithMetadata(map[string]any{
			"failed":       len(failures),
			"delivered":    delivered,
			"destinations": notification.Destinations.String(),
		})
}

func (d *Dispatcher) send(ctx context.Context, sink core.Sink, channel core.Channel, message string) (core.DispatchStatus, error) {
	key := core.RateLimitKey{Sink: sink.Name(), Channel: channel, BucketKey: DefaultBucketKey}
	if d.policy != nil {
		if err := d.policy.BeforeCall(ctx, key); err != nil {
			var throttled ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				return core.DispatchStatusThrottled, throttled.ToRelayError()
			}
			return core.DispatchStatusFailed, err
		}
	}

	meta, err := sink.Send(ctx, channel, message)
	if errors.Is(err, core.ErrChannelNotConfigured) {
		return core.DispatchStatusSkipped, nil
	}
	if d.policy != nil {
		if policyErr := d.policy.AfterCall(ctx, key, meta); policyErr != nil {
			d.logger.Warn("rate limit state update failed", "sink", sink.Name(), "channel", string(channel), "error", policyErr)
		}
	}
	if err != nil {
		if meta.StatusCode == http.StatusTooManyRequests {
			return core.DispatchStatusThrottled, err
		}
		return core.DispatchStatusFailed, err
	}
	return core.DispatchStatusDelivered, nil
}

func (d *Dispatcher) record(
	ctx context.Context,
	sinkName string,
	channel core.Channel,
	notification core.Notification,
	status core.DispatchStatus,
	cause error,
) {
	fields := []any{
		"sink", sinkName,
		"channel", string(channel),
		"status", string(status),
		"fingerprint", notification.Fingerprint.Short(),
	}
	switch status {
	case core.DispatchStatusDelivered:
		d.logger.Info("notification delivered", fields...)
	case core.DispatchStatusSkipped:
		d.logger.Debug("notification skipped", fields...)
	default:
		d.logger.Error("notification delivery failed", append(fields, "error", cause)...)
	}

	if d.ledger == nil {
		return
	}
	row := core.DispatchRecord{
		ID:          d.newID(),
		Fingerprint: notification.Fingerprint,
		Kind:        notification.Kind,
		Channel:     channel,
		Sink:        sinkName,
		Actor:       notification.Actor,
		Repository:  notification.Repository,
		Message:     notification.Message,
		Status:      status,
		CreatedAt:   d.now(),
	}
	if cause != nil {
		row.Error = strings.TrimSpace(cause.Error())
	}
	if _, err := d.ledger.Record(ctx, row); err != nil {
		d.logger.Warn("dispatch ledger write failed", "sink", sinkName, "channel", string(channel), "error", err)
	}
}

var _ core.Notifier = (*Dispatcher)(nil)
