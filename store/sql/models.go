package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type seenEventRecord struct {
	bun.BaseModel `bun:"table:relay_seen_events,alias:rse"`

	Fingerprint     string    `bun:"fingerprint,pk"`
	FirstSeenUnixMS int64     `bun:"first_seen_unix_ms,notnull"`
	FirstSeenAt     time.Time `bun:"first_seen_at,nullzero,notnull,default:current_timestamp"`
	Hits            int       `bun:"hits,notnull"`
	UpdatedAt       time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type dispatchRecord struct {
	bun.BaseModel `bun:"table:relay_dispatches,alias:rd"`

	ID          string    `bun:"id,pk"`
	Fingerprint string    `bun:"fingerprint,notnull"`
	EventKind   string    `bun:"event_kind,notnull"`
	Channel     string    `bun:"channel,notnull"`
	Sink        string    `bun:"sink,notnull"`
	Actor       string    `bun:"actor,notnull"`
	Repository  string    `bun:"repository,notnull"`
	Message     string    `bun:"message,notnull"`
	Status      string    `bun:"status,notnull"`
	Error       string    `bun:"error,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:relay_rate_limit_state,alias:rrl"`

	ID             string     `bun:"id,pk"`
	Sink           string     `bun:"sink,notnull"`
	Channel        string     `bun:"channel,notnull"`
	BucketKey      string     `bun:"bucket_key,notnull"`
	Limit          int        `bun:"limit,notnull"`
	Remaining      int        `bun:"remaining,notnull"`
	ResetAt        *time.Time `bun:"reset_at,nullzero"`
	RetryAfterMS   *int64     `bun:"retry_after_ms"`
	ThrottledUntil *time.Time `bun:"throttled_until,nullzero"`
	LastStatus     int        `bun:"last_status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
