package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[SubmitEventMessage]     = (*SubmitEventCommand)(nil)
	_ gocmd.Commander[PruneSeenEventsMessage] = (*PruneSeenEventsCommand)(nil)
)
