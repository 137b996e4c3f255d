package sqlstore

import (
	"github.com/goliatone/go-hookrelay/core"
	"github.com/goliatone/go-hookrelay/ratelimit"
)

var (
	_ core.Deduplicator    = (*SeenEventStore)(nil)
	_ core.Pruner          = (*SeenEventStore)(nil)
	_ core.DispatchLedger  = (*DispatchStore)(nil)
	_ ratelimit.StateStore = (*RateLimitStateStore)(nil)
	_ ratelimit.StateStore = (*CachedRateLimitStateStore)(nil)
)
