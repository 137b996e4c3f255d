package command

import (
	"time"

	"github.com/goliatone/go-hookrelay/core"
)

const (
	TypeSubmitEvent     = "relay.command.event.submit"
	TypePruneSeenEvents = "relay.command.seen_events.prune"
)

// SubmitEventMessage carries one decoded webhook payload into the relay.
type SubmitEventMessage struct {
	Payload core.Payload
	// Source names the surface that produced the payload, e.g. "gitea".
	Source string
}

func (SubmitEventMessage) Type() string { return TypeSubmitEvent }

func (m SubmitEventMessage) Validate() error {
	if m.Payload == nil {
		return commandValidationError("payload", "payload is required")
	}
	return nil
}

// SubmitOutcome is what SubmitEventCommand stores on the result collector.
// Err is the relay error as returned, before the bus wraps it, so callers
// keep the RELAY_* text code.
type SubmitOutcome struct {
	Result core.Result
	Err    error
}

type PruneSeenEventsMessage struct {
	// Now defaults to the handler clock when zero.
	Now time.Time `json:"now"`
}

func (PruneSeenEventsMessage) Type() string { return TypePruneSeenEvents }

func (PruneSeenEventsMessage) Validate() error {
	return nil
}

type PruneResult struct {
	Removed int
	At      time.Time
}
