package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-hookrelay/core"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMemoryDeduplicator_WindowSemantics(t *testing.T) {
	d := NewMemoryDeduplicator(Options{})
	fp := core.Fingerprint("abc")

	if d.IsDuplicate(fp, baseTime) {
		t.Fatalf("expected unseen fingerprint not to be duplicate")
	}
	d.Record(fp, baseTime)
	if !d.IsDuplicate(fp, baseTime.Add(4999*time.Millisecond)) {
		t.Fatalf("expected duplicate inside window")
	}
	if d.IsDuplicate(fp, baseTime.Add(core.DedupWindow)) {
		t.Fatalf("expected window boundary to be exclusive")
	}
}

func TestMemoryDeduplicator_DuplicatesDoNotRefreshTimestamp(t *testing.T) {
	d := NewMemoryDeduplicator(Options{})
	fp := core.Fingerprint("abc")
	ctx := context.Background()

	if claimed, _ := d.Claim(ctx, fp, baseTime); !claimed {
		t.Fatalf("expected first claim")
	}
	if claimed, _ := d.Claim(ctx, fp, baseTime.Add(4*time.Second)); claimed {
		t.Fatalf("expected duplicate claim to fail")
	}
	d.Record(fp, baseTime.Add(4*time.Second))
	if claimed, _ := d.Claim(ctx, fp, baseTime.Add(6*time.Second)); !claimed {
		t.Fatalf("expected claim after original window elapsed")
	}
	if claimed, _ := d.Claim(ctx, fp, baseTime.Add(8*time.Second)); claimed {
		t.Fatalf("expected expired record to be replaced by the new sighting")
	}
}

func TestMemoryDeduplicator_ConcurrentClaimsSucceedOnce(t *testing.T) {
	d := NewMemoryDeduplicator(Options{})
	fp := core.Fingerprint("concurrent")

	var claimed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := d.Claim(context.Background(), fp, baseTime)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()
	if claimed.Load() != 1 {
		t.Fatalf("expected exactly one claim, got %d", claimed.Load())
	}
}

func TestMemoryDeduplicator_PruneRemovesExpired(t *testing.T) {
	d := NewMemoryDeduplicator(Options{})
	d.Record("old", baseTime)
	d.Record("fresh", baseTime.Add(4*time.Second))

	removed, err := d.Prune(context.Background(), baseTime.Add(6*time.Second))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if removed != 1 || d.Len() != 1 {
		t.Fatalf("expected one removal leaving one entry, got removed=%d len=%d", removed, d.Len())
	}
	if !d.IsDuplicate("fresh", baseTime.Add(6*time.Second)) {
		t.Fatalf("expected fresh entry to survive prune")
	}
}

func TestMemoryDeduplicator_MaxEntriesBound(t *testing.T) {
	d := NewMemoryDeduplicator(Options{MaxEntries: 2})
	ctx := context.Background()

	_, _ = d.Claim(ctx, "a", baseTime)
	_, _ = d.Claim(ctx, "b", baseTime.Add(time.Second))
	_, _ = d.Claim(ctx, "c", baseTime.Add(2*time.Second))
	if d.Len() != 2 {
		t.Fatalf("expected table bounded to 2, got %d", d.Len())
	}
	if d.IsDuplicate("a", baseTime.Add(2*time.Second)) {
		t.Fatalf("expected oldest entry to be evicted")
	}
	if !d.IsDuplicate("c", baseTime.Add(2*time.Second)) {
		t.Fatalf("expected newest entry to be kept")
	}
}

func TestMemoryDeduplicator_NilAndEmptyFingerprint(t *testing.T) {
	var d *MemoryDeduplicator
	if ok, err := d.Claim(context.Background(), "x", baseTime); !ok || err != nil {
		t.Fatalf("expected nil deduplicator to claim everything")
	}
	live := NewMemoryDeduplicator(Options{})
	if ok, _ := live.Claim(context.Background(), "", baseTime); !ok {
		t.Fatalf("expected empty fingerprint to pass through")
	}
	if live.Len() != 0 {
		t.Fatalf("expected empty fingerprint not to be stored")
	}
}

func TestMemoryDeduplicator_WithRelay(t *testing.T) {
	d := NewMemoryDeduplicator(Options{})
	var deliveries atomic.Int32
	relay, err := core.NewRelay(core.Config{
		Routing: core.RoutingRule{TargetUser: "moslem", CommonRepository: "giteaFinalProject"},
	},
		core.WithDeduplicator(d),
		core.WithNotifier(core.NotifierFunc(func(context.Context, core.Notification) error {
			deliveries.Add(1)
			return nil
		})),
	)
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	payload := core.Payload{
		"ref_type":    "branch",
		"pusher_type": "user",
		"ref":         "feature/x",
		"sender":      map[string]any{"login": "moslem"},
		"repository":  map[string]any{"name": "giteaFinalProject"},
	}
	first, err := relay.Submit(context.Background(), payload)
	if err != nil || first.Kind != core.EventDeleteBranch {
		t.Fatalf("unexpected first result %#v err=%v", first, err)
	}
	second, err := relay.Submit(context.Background(), payload)
	if err != nil || second.Outcome != core.OutcomeSuppressed {
		t.Fatalf("expected suppressed duplicate, got %#v err=%v", second, err)
	}
	if deliveries.Load() != 1 {
		t.Fatalf("expected one delivery, got %d", deliveries.Load())
	}
}
