package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hookrelay/core"
	"github.com/goliatone/go-hookrelay/ratelimit"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RateLimitStateStore keeps adaptive backoff state per sink bucket so a
// restarted relay does not hammer a channel that just returned 429.
type RateLimitStateStore struct {
	db   *bun.DB
	repo repository.Repository[*rateLimitStateRecord]
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*rateLimitStateRecord](db, rateLimitStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid rate-limit state repository wiring: %w", err)
		}
	}
	return &RateLimitStateStore{
		db:   db,
		repo: repo,
	}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if s == nil || s.db == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	key = normalizeRateLimitKey(key)
	if err := validateRateLimitKey(key); err != nil {
		return ratelimit.State{}, err
	}

	record, err := findRateLimitState(ctx, s.db, key)
	if err != nil {
		return ratelimit.State{}, err
	}
	if record == nil {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return record.toDomain(), nil
}

func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: rate-limit state store is not configured")
	}
	state.Key = normalizeRateLimitKey(state.Key)
	if err := validateRateLimitKey(state.Key); err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now().UTC()
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findRateLimitState(ctx, tx, state.Key)
		if err != nil {
			return err
		}
		created := false
		if record == nil {
			created = true
			record = &rateLimitStateRecord{
				ID:        uuid.NewString(),
				Sink:      state.Key.Sink,
				Channel:   string(state.Key.Channel),
				BucketKey: state.Key.BucketKey,
				CreatedAt: state.UpdatedAt.UTC(),
			}
		}
		record.Limit = state.Limit
		record.Remaining = state.Remaining
		record.ResetAt = copyTimePointer(state.ResetAt)
		record.RetryAfterMS = durationToMillisPointer(state.RetryAfter)
		record.ThrottledUntil = copyTimePointer(state.ThrottledUntil)
		record.LastStatus = state.LastStatus
		record.Attempts = state.Attempts
		record.UpdatedAt = state.UpdatedAt.UTC()

		if created {
			_, err := tx.NewInsert().Model(record).Exec(ctx)
			return err
		}
		_, err = tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx)
		return err
	})
}

func (r *rateLimitStateRecord) toDomain() ratelimit.State {
	if r == nil {
		return ratelimit.State{}
	}
	state := ratelimit.State{
		Key: core.RateLimitKey{
			Sink:      r.Sink,
			Channel:   core.Channel(r.Channel),
			BucketKey: r.BucketKey,
		},
		Limit:          r.Limit,
		Remaining:      r.Remaining,
		ResetAt:        copyTimePointer(r.ResetAt),
		ThrottledUntil: copyTimePointer(r.ThrottledUntil),
		LastStatus:     r.LastStatus,
		Attempts:       r.Attempts,
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.RetryAfterMS != nil && *r.RetryAfterMS > 0 {
		value := time.Duration(*r.RetryAfterMS) * time.Millisecond
		state.RetryAfter = &value
	}
	return state
}

func findRateLimitState(
	ctx context.Context,
	db bun.IDB,
	key core.RateLimitKey,
) (*rateLimitStateRecord, error) {
	record := &rateLimitStateRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.sink = ?", key.Sink).
		Where("?TableAlias.channel = ?", string(key.Channel)).
		Where("?TableAlias.bucket_key = ?", key.BucketKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func normalizeRateLimitKey(key core.RateLimitKey) core.RateLimitKey {
	return core.RateLimitKey{
		Sink:      strings.TrimSpace(strings.ToLower(key.Sink)),
		Channel:   core.Channel(strings.TrimSpace(strings.ToLower(string(key.Channel)))),
		BucketKey: strings.TrimSpace(key.BucketKey),
	}
}

func validateRateLimitKey(key core.RateLimitKey) error {
	if key.Sink == "" {
		return fmt.Errorf("sqlstore: rate-limit sink is required")
	}
	if !key.Channel.Valid() {
		return fmt.Errorf("sqlstore: rate-limit channel %q is invalid", key.Channel)
	}
	if key.BucketKey == "" {
		return fmt.Errorf("sqlstore: rate-limit bucket key is required")
	}
	return nil
}

func copyTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func durationToMillisPointer(input *time.Duration) *int64 {
	if input == nil || *input <= 0 {
		return nil
	}
	millis := input.Milliseconds()
	if millis <= 0 {
		millis = 1
	}
	return &millis
}
