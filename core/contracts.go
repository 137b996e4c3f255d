package core

import (
	"context"
	"errors"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// Notification is the delivery intent produced for one accepted payload.
type Notification struct {
	Message      string
	Destinations Destinations
	Kind         EventKind
	Fingerprint  Fingerprint
	Actor        string
	Repository   string
}

// Notifier delivers a notification to every destination channel. It is
// invoked at most once per accepted payload.
type Notifier interface {
	Deliver(ctx context.Context, notification Notification) error
}

type NotifierFunc func(ctx context.Context, notification Notification) error

func (f NotifierFunc) Deliver(ctx context.Context, notification Notification) error {
	return f(ctx, notification)
}

// Deduplicator owns the seen-event table. Claim must check and record
// atomically: for concurrent callers with the same fingerprint inside the
// window exactly one receives true.
type Deduplicator interface {
	Claim(ctx context.Context, fingerprint Fingerprint, now time.Time) (bool, error)
}

// Pruner removes seen-event records older than the dedup window.
type Pruner interface {
	Prune(ctx context.Context, now time.Time) (int, error)
}

// ErrChannelNotConfigured is returned by sinks that have no target for a
// channel. Dispatchers treat it as a skip rather than a failure.
var ErrChannelNotConfigured = errors.New("core: channel not configured for sink")

// Sink posts one rendered message to one destination channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, channel Channel, message string) (ProviderResponseMeta, error)
}

type InboundRequest struct {
	ProviderID string
	Surface    string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Body       string
	Metadata   map[string]any
}

type InboundHandler interface {
	Surface() string
	Handle(ctx context.Context, req InboundRequest) (InboundResult, error)
}

type TransportRequest struct {
	Method      string
	URL         string
	Headers     map[string]string
	Query       map[string]string
	Body        []byte
	Metadata    map[string]any
	Timeout     time.Duration
	Idempotency string

	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// RateLimitKey identifies an outbound bucket, one per sink and channel.
type RateLimitKey struct {
	Sink      string
	Channel   Channel
	BucketKey string
}

type ProviderResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res ProviderResponseMeta) error
}

type DispatchStatus string

const (
	DispatchStatusDelivered DispatchStatus = "delivered"
	DispatchStatusFailed    DispatchStatus = "failed"
	DispatchStatusThrottled DispatchStatus = "throttled"
	DispatchStatusSkipped   DispatchStatus = "skipped"
)

// DispatchRecord is one audit row per destination delivery attempt.
type DispatchRecord struct {
	ID          string
	Fingerprint Fingerprint
	Kind        EventKind
	Channel     Channel
	Sink        string
	Actor       string
	Repository  string
	Message     string
	Status      DispatchStatus
	Error       string
	CreatedAt   time.Time
}

type DispatchFilter struct {
	Channel    Channel
	Repository string
	Limit      int
	Offset     int
}

type DispatchLedger interface {
	Record(ctx context.Context, record DispatchRecord) (DispatchRecord, error)
	List(ctx context.Context, filter DispatchFilter) ([]DispatchRecord, error)
}
