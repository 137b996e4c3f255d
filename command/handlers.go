package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hookrelay/core"
)

type Submitter interface {
	Submit(ctx context.Context, payload core.Payload) (core.Result, error)
}

// SubmitEventCommand runs a payload through the relay. The relay result and
// error are stored as a SubmitOutcome on the go-command result collector
// when one is attached.
type SubmitEventCommand struct {
	relay Submitter
}

func NewSubmitEventCommand(relay Submitter) *SubmitEventCommand {
	return &SubmitEventCommand{relay: relay}
}

func (c *SubmitEventCommand) Execute(ctx context.Context, msg SubmitEventMessage) error {
	if c == nil || c.relay == nil {
		return commandDependencyError("command: relay is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.relay.Submit(ctx, msg.Payload)
	storeResult(ctx, SubmitOutcome{Result: out, Err: err})
	return err
}

type PruneSeenEventsCommand struct {
	pruner core.Pruner
	now    func() time.Time
}

func NewPruneSeenEventsCommand(pruner core.Pruner) *PruneSeenEventsCommand {
	return &PruneSeenEventsCommand{
		pruner: pruner,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (c *PruneSeenEventsCommand) WithClock(now func() time.Time) *PruneSeenEventsCommand {
	if c != nil && now != nil {
		c.now = now
	}
	return c
}

func (c *PruneSeenEventsCommand) Execute(ctx context.Context, msg PruneSeenEventsMessage) error {
	if c == nil || c.pruner == nil {
		return commandDependencyError("command: seen event pruner is required")
	}
	at := msg.Now
	if at.IsZero() {
		at = c.now()
	}
	removed, err := c.pruner.Prune(ctx, at)
	if err != nil {
		return commandWrapOperation(err, "command: prune seen events failed")
	}
	storeResult(ctx, PruneResult{Removed: removed, At: at})
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
