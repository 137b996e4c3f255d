package core

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func newTestRelay(t *testing.T, opts ...Option) (*Relay, *recordingNotifier, *fakeClock) {
	t.Helper()
	notifier := &recordingNotifier{}
	clock := newFakeClock()
	base := []Option{
		WithDeduplicator(newWindowDeduplicator()),
		WithNotifier(notifier),
		WithClock(clock.Now),
		WithLogger(stubLogger{}),
	}
	relay, err := NewRelay(Config{
		Routing: RoutingRule{TargetUser: "moslem", CommonRepository: "giteaFinalProject"},
	}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	return relay, notifier, clock
}

func requireTextCode(t *testing.T, err error, code string) {
	t.Helper()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors type, got %T (%v)", err, err)
	}
	if rich.TextCode != code {
		t.Fatalf("expected text code %q, got %q", code, rich.TextCode)
	}
}

func TestRelaySubmit_DispatchesToBothChannels(t *testing.T) {
	relay, notifier, _ := newTestRelay(t)

	result, err := relay.Submit(context.Background(), pushPayload("moslem", "giteaFinalProject"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Outcome != OutcomeDispatched || result.Kind != EventPush {
		t.Fatalf("unexpected result: %#v", result)
	}
	calls := notifier.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one notifier call, got %d", len(calls))
	}
	if calls[0].Destinations.String() != "common,personal" {
		t.Fatalf("unexpected destinations %q", calls[0].Destinations.String())
	}
	want := "🚀 **Push Event** by **moslem** in **giteaFinalProject**\n🔹 **Branch:** refs/heads/main"
	if calls[0].Message != want {
		t.Fatalf("unexpected message %q", calls[0].Message)
	}
	if calls[0].Fingerprint == "" || calls[0].Fingerprint != result.Fingerprint {
		t.Fatalf("expected notification to carry result fingerprint")
	}
	if !result.Delivered() {
		t.Fatalf("expected result to report delivery")
	}
}

func TestRelaySubmit_NoDestinationsSkipsNotifier(t *testing.T) {
	relay, notifier, _ := newTestRelay(t)

	result, err := relay.Submit(context.Background(), pushPayload("alice", "elsewhere"))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Outcome != OutcomeDispatched || !result.Destinations.Empty() {
		t.Fatalf("expected dispatched with no destinations, got %#v", result)
	}
	if len(notifier.calls()) != 0 {
		t.Fatalf("expected notifier not to be called")
	}
	if result.Delivered() {
		t.Fatalf("expected no delivery")
	}
}

func TestRelaySubmit_RejectsEmptyPayload(t *testing.T) {
	relay, notifier, _ := newTestRelay(t)

	for _, payload := range []Payload{nil, {}} {
		result, err := relay.Submit(context.Background(), payload)
		if result.Outcome != OutcomeRejected {
			t.Fatalf("expected rejected, got %q", result.Outcome)
		}
		requireTextCode(t, err, RelayErrorEmptyPayload)
	}
	if len(notifier.calls()) != 0 {
		t.Fatalf("expected no deliveries")
	}
}

func TestRelaySubmit_RejectsMissingIdentity(t *testing.T) {
	relay, notifier, _ := newTestRelay(t)

	cases := []Payload{
		{"ref": "refs/heads/main", "repository": map[string]any{"name": "giteaFinalProject"}},
		{"ref": "refs/heads/main", "sender": map[string]any{"login": "moslem"}},
		{"sender": map[string]any{"login": "moslem"}, "repository": map[string]any{}},
	}
	for _, payload := range cases {
		result, err := relay.Submit(context.Background(), payload)
		if result.Outcome != OutcomeRejected {
			t.Fatalf("expected rejected, got %q", result.Outcome)
		}
		requireTextCode(t, err, RelayErrorMissingIdentity)
	}
	if len(notifier.calls()) != 0 {
		t.Fatalf("expected no deliveries")
	}
}

func TestRelaySubmit_RejectedPayloadIsNotRecorded(t *testing.T) {
	dedup := newWindowDeduplicator()
	relay, _, _ := newTestRelay(t, WithDeduplicator(dedup))

	_, _ = relay.Submit(context.Background(), Payload{"ref": "x"})
	if len(dedup.seen) != 0 {
		t.Fatalf("expected rejected payloads to leave dedup state untouched")
	}
}

func TestRelaySubmit_SuppressesDuplicatesInsideWindow(t *testing.T) {
	relay, notifier, clock := newTestRelay(t)
	payload := pushPayload("moslem", "giteaFinalProject")

	if _, err := relay.Submit(context.Background(), payload); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	clock.Advance(2 * time.Second)
	result, err := relay.Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("duplicate submit: %v", err)
	}
	if result.Outcome != OutcomeSuppressed {
		t.Fatalf("expected suppressed, got %q", result.Outcome)
	}
	if len(notifier.calls()) != 1 {
		t.Fatalf("expected a single delivery, got %d", len(notifier.calls()))
	}

	clock.Advance(3 * time.Second)
	result, err = relay.Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("submit after window: %v", err)
	}
	if result.Outcome != OutcomeDispatched {
		t.Fatalf("expected dispatch once the window elapsed, got %q", result.Outcome)
	}
	if len(notifier.calls()) != 2 {
		t.Fatalf("expected second delivery, got %d", len(notifier.calls()))
	}
}

func TestRelaySubmit_DifferentPayloadsAreNotDuplicates(t *testing.T) {
	relay, notifier, _ := newTestRelay(t)

	first := pushPayload("moslem", "giteaFinalProject")
	second := pushPayload("moslem", "giteaFinalProject")
	second["after"] = "def5678"
	for _, payload := range []Payload{first, second} {
		if result, err := relay.Submit(context.Background(), payload); err != nil || result.Outcome != OutcomeDispatched {
			t.Fatalf("expected dispatch, got %#v err=%v", result, err)
		}
	}
	if len(notifier.calls()) != 2 {
		t.Fatalf("expected two deliveries, got %d", len(notifier.calls()))
	}
}

func TestRelaySubmit_DedupFailureIsProcessingFailure(t *testing.T) {
	dedup := newWindowDeduplicator()
	dedup.err = errStoreUnavailable
	relay, notifier, _ := newTestRelay(t, WithDeduplicator(dedup))

	result, err := relay.Submit(context.Background(), pushPayload("moslem", "giteaFinalProject"))
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %q", result.Outcome)
	}
	requireTextCode(t, err, RelayErrorProcessingFailure)
	if len(notifier.calls()) != 0 {
		t.Fatalf("expected no delivery when dedup fails")
	}
}

func TestRelaySubmit_NotifierFailureKeepsFingerprintClaimed(t *testing.T) {
	notifier := &recordingNotifier{err: errStoreUnavailable}
	relay, _, _ := newTestRelay(t, WithNotifier(notifier))
	payload := pushPayload("moslem", "giteaFinalProject")

	result, err := relay.Submit(context.Background(), payload)
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %q", result.Outcome)
	}
	requireTextCode(t, err, RelayErrorProcessingFailure)

	notifier.err = nil
	result, err = relay.Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if result.Outcome != OutcomeSuppressed {
		t.Fatalf("expected retransmission to be suppressed, got %q", result.Outcome)
	}
}

func TestRelaySubmit_RecoversNotifierPanic(t *testing.T) {
	notifier := &recordingNotifier{panicWith: "boom"}
	relay, _, _ := newTestRelay(t, WithNotifier(notifier))

	result, err := relay.Submit(context.Background(), pushPayload("moslem", "giteaFinalProject"))
	if result.Outcome != OutcomeFailed {
		t.Fatalf("expected failed, got %q", result.Outcome)
	}
	requireTextCode(t, err, RelayErrorProcessingFailure)
}

func TestRelaySubmit_ConcurrentDuplicatesDeliverOnce(t *testing.T) {
	relay, notifier, _ := newTestRelay(t)
	payload := pushPayload("moslem", "giteaFinalProject")

	var dispatched atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := relay.Submit(context.Background(), payload)
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			if result.Outcome == OutcomeDispatched {
				dispatched.Add(1)
			}
		}()
	}
	wg.Wait()
	if dispatched.Load() != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", dispatched.Load())
	}
	if len(notifier.calls()) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(notifier.calls()))
	}
}

func TestRelayUpdateRouting_AppliesToNextSubmission(t *testing.T) {
	relay, notifier, _ := newTestRelay(t)

	relay.UpdateRouting(RoutingRule{TargetUser: " alice ", CommonRepository: ""})
	if _, err := relay.Submit(context.Background(), pushPayload("alice", "giteaFinalProject")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	calls := notifier.calls()
	if len(calls) != 1 || calls[0].Destinations.String() != "personal" {
		t.Fatalf("expected personal only after routing update, got %#v", calls)
	}
	if relay.Config().Routing.TargetUser != "alice" {
		t.Fatalf("expected config to reflect routing update")
	}
}

func TestRelaySubmit_RecordsMetricsAndLogs(t *testing.T) {
	metrics := &recordingMetrics{}
	logger := newRecordingLogger()
	relay, _, _ := newTestRelay(t, WithMetricsRecorder(metrics), WithLogger(logger))

	_, _ = relay.Submit(context.Background(), pushPayload("moslem", "giteaFinalProject"))
	_, _ = relay.Submit(context.Background(), Payload{})

	if len(metrics.counters) != 2 || metrics.counters[0].name != MetricSubmitTotal {
		t.Fatalf("expected two submit counters, got %#v", metrics.counters)
	}
	if metrics.counters[0].tags["outcome"] != "dispatched" || metrics.counters[1].tags["outcome"] != "rejected" {
		t.Fatalf("unexpected outcome tags: %#v", metrics.counters)
	}
	if len(metrics.histograms) != 2 || metrics.histograms[0].name != MetricSubmitDurationMS {
		t.Fatalf("expected duration histograms, got %#v", metrics.histograms)
	}

	entries := logger.snapshot()
	if len(entries) != 2 {
		t.Fatalf("expected two log entries, got %d", len(entries))
	}
	if entries[0].level != "info" || entries[1].level != "warn" {
		t.Fatalf("unexpected log levels: %#v", entries)
	}
}

func TestRelayPreview_DoesNotClaimOrDeliver(t *testing.T) {
	dedup := newWindowDeduplicator()
	relay, notifier, _ := newTestRelay(t, WithDeduplicator(dedup))

	result, err := relay.Preview(pushPayload("moslem", "other"))
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if result.Kind != EventPush || result.Destinations.String() != "personal" {
		t.Fatalf("unexpected preview: %#v", result)
	}
	if len(dedup.seen) != 0 || len(notifier.calls()) != 0 {
		t.Fatalf("expected preview to be side-effect free")
	}
}
