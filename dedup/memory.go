package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-hookrelay/core"
)

type Options struct {
	Window     time.Duration
	MaxEntries int
}

// MemoryDeduplicator maps fingerprints to their first-seen time. Duplicate
// sightings never refresh the stored time.
type MemoryDeduplicator struct {
	window     time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[core.Fingerprint]time.Time
}

func NewMemoryDeduplicator(opts Options) *MemoryDeduplicator {
	window := opts.Window
	if window <= 0 {
		window = core.DedupWindow
	}
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = core.DefaultDedupMaxEntries
	}
	return &MemoryDeduplicator{
		window:     window,
		maxEntries: maxEntries,
		entries:    map[core.Fingerprint]time.Time{},
	}
}

func (d *MemoryDeduplicator) Window() time.Duration {
	if d == nil {
		return core.DedupWindow
	}
	return d.window
}

func (d *MemoryDeduplicator) IsDuplicate(fingerprint core.Fingerprint, now time.Time) bool {
	if d == nil || fingerprint == "" {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duplicateLocked(fingerprint, now)
}

// Record stores now as the first-seen time unless a live record exists.
func (d *MemoryDeduplicator) Record(fingerprint core.Fingerprint, now time.Time) {
	if d == nil || fingerprint == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.duplicateLocked(fingerprint, now) {
		return
	}
	d.entries[fingerprint] = now
	d.cleanup(now)
}

// Claim checks and records under one lock.
func (d *MemoryDeduplicator) Claim(_ context.Context, fingerprint core.Fingerprint, now time.Time) (bool, error) {
	if d == nil || fingerprint == "" {
		return true, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.duplicateLocked(fingerprint, now) {
		return false, nil
	}
	d.entries[fingerprint] = now
	d.cleanup(now)
	return true, nil
}

// Prune drops every record that aged out and returns how many were removed.
func (d *MemoryDeduplicator) Prune(_ context.Context, now time.Time) (int, error) {
	if d == nil {
		return 0, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	removed := 0
	for key, seenAt := range d.entries {
		if now.Sub(seenAt) >= d.window {
			delete(d.entries, key)
			removed++
		}
	}
	return removed, nil
}

func (d *MemoryDeduplicator) Len() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

func (d *MemoryDeduplicator) duplicateLocked(fingerprint core.Fingerprint, now time.Time) bool {
	seenAt, ok := d.entries[fingerprint]
	if !ok {
		return false
	}
	return now.Sub(seenAt) < d.window
}

// cleanup keeps the table within maxEntries. Aged-out records go first; if
// the table is still full the oldest live records are evicted.
func (d *MemoryDeduplicator) cleanup(now time.Time) {
	if len(d.entries) <= d.maxEntries {
		return
	}
	for key, seenAt := range d.entries {
		if now.Sub(seenAt) >= d.window {
			delete(d.entries, key)
		}
	}
	for len(d.entries) > d.maxEntries {
		var (
			oldestKey core.Fingerprint
			oldestAt  time.Time
			found     bool
		)
		for key, seenAt := range d.entries {
			if !found || seenAt.Before(oldestAt) {
				oldestKey, oldestAt, found = key, seenAt, true
			}
		}
		if !found {
			return
		}
		delete(d.entries, oldestKey)
	}
}

var (
	_ core.Deduplicator = (*MemoryDeduplicator)(nil)
	_ core.Pruner       = (*MemoryDeduplicator)(nil)
)
