package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hookrelay/core"
)

var (
	_ gocmd.Querier[ListDispatchesMessage, []core.DispatchRecord] = (*ListDispatchesQuery)(nil)
	_ gocmd.Querier[ClassifyEventMessage, core.Result]            = (*ClassifyEventQuery)(nil)
)
