package dispatch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-hookrelay/core"
	"github.com/goliatone/go-hookrelay/ratelimit"
)

type sentMessage struct {
	channel core.Channel
	message string
}

type fakeSink struct {
	name     string
	channels map[core.Channel]bool
	meta     core.ProviderResponseMeta
	err      error

	mu   sync.Mutex
	sent []sentMessage
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Send(_ context.Context, channel core.Channel, message string) (core.ProviderResponseMeta, error) {
	if !s.channels[channel] {
		return core.ProviderResponseMeta{}, core.ErrChannelNotConfigured
	}
	s.mu.Lock()
	s.sent = append(s.sent, sentMessage{channel: channel, message: message})
	s.mu.Unlock()
	return s.meta, s.err
}

func bothChannels() map[core.Channel]bool {
	return map[core.Channel]bool{core.ChannelCommon: true, core.ChannelPersonal: true}
}

func testNotification() core.Notification {
	return core.Notification{
		Message:      "hello",
		Destinations: core.Destinations{core.ChannelCommon, core.ChannelPersonal},
		Kind:         core.EventPush,
		Fingerprint:  core.Fingerprint("abcdef0123456789"),
		Actor:        "moslem",
		Repository:   "giteaFinalProject",
	}
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestDeliverWithoutSinksRecordsAuditOnly(t *testing.T) {
	ledger := NewMemoryLedger()
	dispatcher, err := New([]core.Sink{nil}, WithLedger(ledger), WithClock(fixedClock))
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	if len(dispatcher.Sinks()) != 0 {
		t.Fatalf("expected nil sinks to be dropped, got %d", len(dispatcher.Sinks()))
	}

	if err := dispatcher.Deliver(context.Background(), testNotification()); err != nil {
		t.Fatalf("expected audit-only delivery to succeed, got %v", err)
	}
	records, _ := ledger.List(context.Background(), core.DispatchFilter{})
	if len(records) != 2 {
		t.Fatalf("expected one row per destination, got %d", len(records))
	}
	for _, record := range records {
		if record.Status != core.DispatchStatusSkipped || record.Sink != AuditOnlySink {
			t.Fatalf("expected skipped audit-only row, got %#v", record)
		}
	}
}

func TestDeliverFansOutPerDestination(t *testing.T) {
	sink := &fakeSink{name: "discord", channels: bothChannels()}
	ledger := NewMemoryLedger()
	dispatcher, err := New([]core.Sink{sink}, WithLedger(ledger), WithClock(fixedClock))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := dispatcher.Deliver(context.Background(), testNotification()); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(sink.sent) != 2 {
		t.Fatalf("expected one send per destination, got %d", len(sink.sent))
	}
	if sink.sent[0].channel != core.ChannelCommon || sink.sent[1].channel != core.ChannelPersonal {
		t.Fatalf("unexpected delivery order: %#v", sink.sent)
	}

	records, _ := ledger.List(context.Background(), core.DispatchFilter{})
	if len(records) != 2 {
		t.Fatalf("expected two ledger rows, got %d", len(records))
	}
	for _, record := range records {
		if record.Status != core.DispatchStatusDelivered || record.ID == "" || record.Sink != "discord" {
			t.Fatalf("unexpected record %#v", record)
		}
	}
}

func TestDeliverSkipsUnconfiguredChannel(t *testing.T) {
	sink := &fakeSink{name: "discord", channels: map[core.Channel]bool{core.ChannelCommon: true}}
	ledger := NewMemoryLedger()
	dispatcher, _ := New([]core.Sink{sink}, WithLedger(ledger))

	if err := dispatcher.Deliver(context.Background(), testNotification()); err != nil {
		t.Fatalf("expected skip to be silent, got %v", err)
	}
	records, _ := ledger.List(context.Background(), core.DispatchFilter{Channel: core.ChannelPersonal})
	if len(records) != 1 || records[0].Status != core.DispatchStatusSkipped {
		t.Fatalf("expected skipped personal record, got %#v", records)
	}
}

func TestDeliverJoinsFailures(t *testing.T) {
	failing := &fakeSink{name: "discord", channels: bothChannels(), err: errors.New("boom"), meta: core.ProviderResponseMeta{StatusCode: 500}}
	working := &fakeSink{name: "telegram", channels: bothChannels()}
	dispatcher, _ := New([]core.Sink{failing, working})

	err := dispatcher.Deliver(context.Background(), testNotification())
	if err == nil {
		t.Fatalf("expected delivery error")
	}
	if !core.HasTextCode(err, core.RelayErrorDeliveryFailed) {
		t.Fatalf("expected delivery failed text code, got %v", err)
	}
	if len(working.sent) != 2 {
		t.Fatalf("expected other sink to keep delivering, got %d", len(working.sent))
	}
}

func TestDeliverHonoursThrottle(t *testing.T) {
	retry := 30 * time.Second
	sink := &fakeSink{
		name:     "discord",
		channels: bothChannels(),
		err:      errors.New("429"),
		meta:     core.ProviderResponseMeta{StatusCode: http.StatusTooManyRequests, RetryAfter: &retry},
	}
	policy := ratelimit.NewAdaptivePolicy(ratelimit.NewMemoryStateStore())
	policy.Now = fixedClock
	ledger := NewMemoryLedger()
	dispatcher, _ := New([]core.Sink{sink}, WithRateLimitPolicy(policy), WithLedger(ledger))

	notification := testNotification()
	notification.Destinations = core.Destinations{core.ChannelCommon}
	if err := dispatcher.Deliver(context.Background(), notification); err == nil {
		t.Fatalf("expected first delivery to fail with 429")
	}
	if err := dispatcher.Deliver(context.Background(), notification); !core.HasTextCode(err, core.RelayErrorDeliveryFailed) {
		t.Fatalf("expected throttled delivery to fail, got %v", err)
	}
	if len(sink.sent) != 1 {
		t.Fatalf("expected throttled call not to reach sink, got %d sends", len(sink.sent))
	}
	records, _ := ledger.List(context.Background(), core.DispatchFilter{})
	for _, record := range records {
		if record.Status != core.DispatchStatusThrottled {
			t.Fatalf("expected throttled records, got %#v", record)
		}
	}
}

func TestMemoryLedgerFiltersAndPages(t *testing.T) {
	ledger := NewMemoryLedger()
	base := fixedClock()
	for i := 0; i < 5; i++ {
		repo := "alpha"
		if i%2 == 1 {
			repo = "beta"
		}
		_, _ = ledger.Record(context.Background(), core.DispatchRecord{
			ID:         string(rune('a' + i)),
			Repository: repo,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
	}
	records, _ := ledger.List(context.Background(), core.DispatchFilter{Repository: "alpha", Limit: 2})
	if len(records) != 2 || records[0].ID != "e" || records[1].ID != "c" {
		t.Fatalf("unexpected page: %#v", records)
	}
	records, _ = ledger.List(context.Background(), core.DispatchFilter{Offset: 10})
	if len(records) != 0 {
		t.Fatalf("expected empty page past the end")
	}
}
