// Package hookrelay is the entry point for embedding the relay: it re-exports
// the core types and wires the default in-memory collaborators.
package hookrelay

import (
	"github.com/goliatone/go-hookrelay/core"
	"github.com/goliatone/go-hookrelay/dedup"
)

type Config = core.Config

type RoutingRule = core.RoutingRule

type Option = core.Option

type Relay = core.Relay

type Result = core.Result

type Payload = core.Payload

type Notification = core.Notification
type Notifier = core.Notifier
type NotifierFunc = core.NotifierFunc
type Deduplicator = core.Deduplicator
type Sink = core.Sink

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithDeduplicator    = core.WithDeduplicator
	WithFingerprinter   = core.WithFingerprinter
	WithNotifier        = core.WithNotifier
	WithClock           = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewRelay builds a relay with an in-memory deduplicator sized from
// cfg.Dedup. A WithDeduplicator option replaces it.
func NewRelay(cfg Config, opts ...Option) (*Relay, error) {
	memory := dedup.NewMemoryDeduplicator(dedup.Options{MaxEntries: cfg.Dedup.MaxEntries})
	all := make([]Option, 0, len(opts)+1)
	all = append(all, core.WithDeduplicator(memory))
	all = append(all, opts...)
	return core.NewRelay(cfg, all...)
}
