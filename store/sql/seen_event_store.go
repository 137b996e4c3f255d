package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-hookrelay/core"
	"github.com/uptrace/bun"
)

// SeenEventStore persists the dedup table so several relay processes can
// share one window. Claim is atomic per fingerprint: the insert wins on first
// sighting and a conditional update wins once the previous sighting aged out.
type SeenEventStore struct {
	db     *bun.DB
	window time.Duration
}

func NewSeenEventStore(db *bun.DB, window time.Duration) (*SeenEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	if window <= 0 {
		window = core.DedupWindow
	}
	return &SeenEventStore{db: db, window: window}, nil
}

func (s *SeenEventStore) Window() time.Duration {
	if s == nil {
		return core.DedupWindow
	}
	return s.window
}

func (s *SeenEventStore) Claim(ctx context.Context, fingerprint core.Fingerprint, now time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: seen event store is not configured")
	}
	key := strings.TrimSpace(fingerprint.String())
	if key == "" {
		return true, nil
	}
	now = now.UTC()
	record := &seenEventRecord{
		Fingerprint:     key,
		FirstSeenUnixMS: now.UnixMilli(),
		FirstSeenAt:     now,
		Hits:            1,
		UpdatedAt:       now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err == nil {
		return true, nil
	} else if !isUniqueViolation(err) {
		return false, err
	}
	return s.claimAfterConflict(ctx, record, now)
}

// claimAfterConflict runs once the insert has hit an existing row. A row that
// vanished before the updates ran was pruned concurrently, so the insert is
// retried once.
func (s *SeenEventStore) claimAfterConflict(ctx context.Context, record *seenEventRecord, now time.Time) (bool, error) {
	key := record.Fingerprint
	cutoff := now.Add(-s.window).UnixMilli()
	res, err := s.db.NewUpdate().
		Model((*seenEventRecord)(nil)).
		Set("first_seen_unix_ms = ?", now.UnixMilli()).
		Set("first_seen_at = ?", now).
		Set("hits = 1").
		Set("updated_at = ?", now).
		Where("fingerprint = ?", key).
		Where("first_seen_unix_ms <= ?", cutoff).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 1 {
		return true, nil
	}

	// Duplicate inside the window. The hit counter is informational and must
	// not move first_seen.
	res, err = s.db.NewUpdate().
		Model((*seenEventRecord)(nil)).
		Set("hits = hits + 1").
		Set("updated_at = ?", now).
		Where("fingerprint = ?", key).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	if affected, err = res.RowsAffected(); err != nil {
		return false, err
	}
	if affected > 0 {
		return false, nil
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Prune deletes sightings whose window has passed.
func (s *SeenEventStore) Prune(ctx context.Context, now time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: seen event store is not configured")
	}
	cutoff := now.UTC().Add(-s.window).UnixMilli()
	res, err := s.db.NewDelete().
		Model((*seenEventRecord)(nil)).
		Where("first_seen_unix_ms <= ?", cutoff).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// Hits reports how many sightings the current window has seen for a
// fingerprint, or zero when none is recorded.
func (s *SeenEventStore) Hits(ctx context.Context, fingerprint core.Fingerprint) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: seen event store is not configured")
	}
	var hits int
	err := s.db.NewSelect().
		Model((*seenEventRecord)(nil)).
		Column("hits").
		Where("?TableAlias.fingerprint = ?", strings.TrimSpace(fingerprint.String())).
		Limit(1).
		Scan(ctx, &hits)
	if err != nil {
		if isNoRows(err) {
			return 0, nil
		}
		return 0, err
	}
	return hits, nil
}

func (s *SeenEventStore) Count(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: seen event store is not configured")
	}
	return s.db.NewSelect().Model((*seenEventRecord)(nil)).Count(ctx)
}
