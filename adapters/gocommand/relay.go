package gocommand

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	goerrors "github.com/goliatone/go-errors"
	relaycommand "github.com/goliatone/go-hookrelay/command"
	"github.com/goliatone/go-hookrelay/core"
	relayquery "github.com/goliatone/go-hookrelay/query"
	glog "github.com/goliatone/go-logger/glog"
)

// RelayBindings lists the collaborators behind the relay message handlers.
// Pruner and Ledger are optional; their handlers are skipped when nil.
// Logger receives handler failures; nil discards them.
type RelayBindings struct {
	Relay interface {
		relaycommand.Submitter
		relayquery.Previewer
	}
	Pruner core.Pruner
	Ledger relayquery.DispatchReader
	Logger core.Logger
}

// RelayRegistration holds the dispatcher subscriptions made by RegisterRelay.
type RelayRegistration struct {
	subscriptions []commanddispatcher.Subscription
}

func (r *RelayRegistration) Len() int {
	if r == nil {
		return 0
	}
	return len(r.subscriptions)
}

func (r *RelayRegistration) Unsubscribe() {
	if r == nil {
		return
	}
	for _, subscription := range r.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	r.subscriptions = nil
}

// RegisterRelay subscribes the relay commands and queries on the global
// go-command dispatcher and records them in the adapter registry.
func RegisterRelay(adapter *RegistryAdapter, bindings RelayBindings, runnerOpts ...runner.Option) (*RelayRegistration, error) {
	if bindings.Relay == nil {
		return nil, fmt.Errorf("gocommand: relay is required")
	}
	runnerOpts = append(runnerLogging(bindings.Logger), runnerOpts...)
	registration := &RelayRegistration{}
	add := func(subscription commanddispatcher.Subscription, err error) error {
		if err != nil {
			registration.Unsubscribe()
			return err
		}
		registration.subscriptions = append(registration.subscriptions, subscription)
		return nil
	}

	if err := add(RegisterAndSubscribe[relaycommand.SubmitEventMessage](
		adapter, relaycommand.NewSubmitEventCommand(bindings.Relay), runnerOpts...,
	)); err != nil {
		return nil, err
	}
	if err := add(RegisterAndSubscribeQuery[relayquery.ClassifyEventMessage, core.Result](
		adapter, relayquery.NewClassifyEventQuery(bindings.Relay), runnerOpts...,
	)); err != nil {
		return nil, err
	}
	if bindings.Pruner != nil {
		if err := add(RegisterAndSubscribe[relaycommand.PruneSeenEventsMessage](
			adapter, relaycommand.NewPruneSeenEventsCommand(bindings.Pruner), runnerOpts...,
		)); err != nil {
			return nil, err
		}
	}
	if bindings.Ledger != nil {
		if err := add(RegisterAndSubscribeQuery[relayquery.ListDispatchesMessage, []core.DispatchRecord](
			adapter, relayquery.NewListDispatchesQuery(bindings.Ledger), runnerOpts...,
		)); err != nil {
			return nil, err
		}
	}
	return registration, nil
}

// runnerLogging replaces the runner's stdlib log handlers. Rejected payloads
// surface here too, so failures log at warn, not error.
func runnerLogging(logger core.Logger) []runner.Option {
	logger = glog.Ensure(logger)
	return []runner.Option{
		runner.WithErrorHandler(func(err error) {
			logger.Warn("relay handler failed", "error", err, "text_code", textCode(err))
		}),
		runner.WithDoneHandler(func(h *runner.Handler) {
			logger.Debug("relay handler done", "entry_id", h.EntryID)
		}),
	}
}

func textCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		return rich.TextCode
	}
	return ""
}

// BusSubmitter submits payloads through the command bus so every inbound
// event runs the registered SubmitEventCommand. Once the relay has run, its
// own result and error are returned instead of the bus envelope, so the
// RELAY_* text codes survive.
type BusSubmitter struct {
	Source string
}

func (s BusSubmitter) Submit(ctx context.Context, payload core.Payload) (core.Result, error) {
	collector := command.NewResult[relaycommand.SubmitOutcome]()
	ctx = command.ContextWithResult(ctx, collector)
	err := Dispatch(ctx, relaycommand.SubmitEventMessage{Payload: payload, Source: s.Source})
	if outcome, ok := collector.Load(); ok {
		return outcome.Result, outcome.Err
	}
	return core.Result{}, err
}

// PruneSeenEvents dispatches a prune run and returns how many records went.
func PruneSeenEvents(ctx context.Context, now time.Time) (relaycommand.PruneResult, error) {
	collector := command.NewResult[relaycommand.PruneResult]()
	ctx = command.ContextWithResult(ctx, collector)
	if err := Dispatch(ctx, relaycommand.PruneSeenEventsMessage{Now: now}); err != nil {
		return relaycommand.PruneResult{}, err
	}
	result, _ := collector.Load()
	return result, nil
}

func ListDispatches(ctx context.Context, filter core.DispatchFilter) ([]core.DispatchRecord, error) {
	return Query[relayquery.ListDispatchesMessage, []core.DispatchRecord](ctx, relayquery.ListDispatchesMessage{Filter: filter})
}

func ClassifyEvent(ctx context.Context, payload core.Payload) (core.Result, error) {
	return Query[relayquery.ClassifyEventMessage, core.Result](ctx, relayquery.ClassifyEventMessage{Payload: payload})
}
