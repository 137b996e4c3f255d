package query

import "github.com/goliatone/go-hookrelay/core"

const (
	TypeListDispatches = "relay.query.dispatches.list"
	TypeClassifyEvent  = "relay.query.event.classify"
)

type ListDispatchesMessage struct {
	Filter core.DispatchFilter
}

func (ListDispatchesMessage) Type() string { return TypeListDispatches }

func (m ListDispatchesMessage) Validate() error {
	if m.Filter.Channel != "" && !m.Filter.Channel.Valid() {
		return queryValidationError("channel", "channel must be common or personal")
	}
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must not be negative")
	}
	if m.Filter.Offset < 0 {
		return queryValidationError("offset", "offset must not be negative")
	}
	return nil
}

// ClassifyEventMessage asks for a dry run: the payload is classified,
// formatted and routed without touching dedup state or sinks.
type ClassifyEventMessage struct {
	Payload core.Payload
}

func (ClassifyEventMessage) Type() string { return TypeClassifyEvent }

func (m ClassifyEventMessage) Validate() error {
	if m.Payload == nil {
		return queryValidationError("payload", "payload is required")
	}
	return nil
}
