package webhooks

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-hookrelay/core"
	"github.com/goliatone/go-hookrelay/dedup"
)

const pushBody = `{"before":"a1","after":"b2","ref":"refs/heads/main","sender":{"login":"moslem"},"repository":{"name":"giteaFinalProject"}}`

type capturingNotifier struct {
	mu            sync.Mutex
	notifications []core.Notification
	err           error
}

func (n *capturingNotifier) Deliver(_ context.Context, notification core.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return n.err
}

func (n *capturingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.notifications)
}

type stubVerifier struct {
	err error
}

func (v stubVerifier) Verify(context.Context, core.InboundRequest) error {
	return v.err
}

type stubSubmitter struct {
	result core.Result
	err    error
}

func (s stubSubmitter) Submit(context.Context, core.Payload) (core.Result, error) {
	return s.result, s.err
}

func newTestRelay(t *testing.T, notifier core.Notifier, now *time.Time) *core.Relay {
	t.Helper()
	cfg := core.DefaultConfig()
	cfg.Routing = core.RoutingRule{TargetUser: "moslem", CommonRepository: "giteaFinalProject"}
	relay, err := core.NewRelay(cfg,
		core.WithDeduplicator(dedup.NewMemoryDeduplicator(dedup.Options{})),
		core.WithNotifier(notifier),
		core.WithClock(func() time.Time { return *now }),
	)
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	return relay
}

func TestProcessor_ProcessesAndDedupesDeliveries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	notifier := &capturingNotifier{}
	processor := NewProcessor(ProviderGitea, nil, newTestRelay(t, notifier, &now))

	req := core.InboundRequest{
		ProviderID: "gitea",
		Body:       []byte(pushBody),
		Headers:    map[string]string{"X-Gitea-Delivery": "d-1"},
	}
	first, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process first webhook: %v", err)
	}
	if first.StatusCode != http.StatusOK || first.Body != MessageProcessed || !first.Accepted {
		t.Fatalf("unexpected first result %#v", first)
	}
	if first.Metadata["delivery_id"] != "d-1" || first.Metadata["event_kind"] != "push" {
		t.Fatalf("unexpected metadata %#v", first.Metadata)
	}

	now = now.Add(2 * time.Second)
	second, err := processor.Process(context.Background(), req)
	if err != nil {
		t.Fatalf("process duplicate webhook: %v", err)
	}
	if second.StatusCode != http.StatusOK || second.Body != MessageDuplicate {
		t.Fatalf("expected duplicate answer, got %#v", second)
	}
	if second.Metadata["deduped"] != true {
		t.Fatalf("expected deduped metadata marker")
	}
	if notifier.count() != 1 {
		t.Fatalf("expected exactly one notification, got %d", notifier.count())
	}

	now = now.Add(5 * time.Second)
	if third, _ := processor.Process(context.Background(), req); third.Body != MessageProcessed {
		t.Fatalf("expected delivery after window to be processed, got %#v", third)
	}
	if notifier.count() != 2 {
		t.Fatalf("expected second notification after window, got %d", notifier.count())
	}
}

func TestProcessor_MapsRejections(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	processor := NewProcessor(ProviderGitea, nil, newTestRelay(t, &capturingNotifier{}, &now))

	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "blank", body: "  ", want: MessageEmptyPayload},
		{name: "empty object", body: "{}", want: MessageEmptyPayload},
		{name: "null", body: "null", want: MessageEmptyPayload},
		{name: "missing sender", body: `{"repository":{"name":"r"}}`, want: MessageMissingIdentity},
		{name: "malformed", body: `{"sender":`, want: MessageMalformedPayload},
		{name: "array", body: `[1,2]`, want: MessageMalformedPayload},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := processor.Process(context.Background(), core.InboundRequest{Body: []byte(tc.body)})
			if err == nil {
				t.Fatalf("expected error")
			}
			if result.StatusCode != http.StatusBadRequest || result.Body != tc.want {
				t.Fatalf("expected 400 %q, got %d %q", tc.want, result.StatusCode, result.Body)
			}
		})
	}
}

func TestProcessor_RejectsInvalidSignature(t *testing.T) {
	notifier := &capturingNotifier{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	processor := NewProcessor(ProviderGitea, stubVerifier{err: errors.New("bad signature")}, newTestRelay(t, notifier, &now))

	result, err := processor.Process(context.Background(), core.InboundRequest{Body: []byte(pushBody)})
	if err == nil {
		t.Fatalf("expected verification error")
	}
	if result.StatusCode != http.StatusUnauthorized || result.Accepted {
		t.Fatalf("expected 401 rejection, got %#v", result)
	}
	if notifier.count() != 0 {
		t.Fatalf("expected no notification for unverified delivery")
	}
}

func TestProcessor_MapsFailureTo500(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	processor := NewProcessor(ProviderGitea, nil, newTestRelay(t, &capturingNotifier{err: errors.New("discord down")}, &now))

	result, err := processor.Process(context.Background(), core.InboundRequest{Body: []byte(pushBody)})
	if !core.HasTextCode(err, core.RelayErrorProcessingFailure) {
		t.Fatalf("expected processing failure, got %v", err)
	}
	if result.StatusCode != http.StatusInternalServerError || result.Body != MessageFailed {
		t.Fatalf("expected 500 answer, got %#v", result)
	}
}

func TestProcessor_UnknownOutcomeIsFailure(t *testing.T) {
	processor := NewProcessor(ProviderGitea, nil, stubSubmitter{result: core.Result{}})
	result, err := processor.Process(context.Background(), core.InboundRequest{Body: []byte(pushBody)})
	if err == nil || result.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected failure for empty outcome, got %#v %v", result, err)
	}
}

func TestNewTemplateProcessor_VerifiesSignedDeliveries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	processor := NewTemplateProcessor(NewGiteaWebhookTemplate("s3cret"), newTestRelay(t, &capturingNotifier{}, &now))

	body := []byte(pushBody)
	result, err := processor.Process(context.Background(), core.InboundRequest{
		Body:    body,
		Headers: map[string]string{"X-Gitea-Signature": signHexHMAC("s3cret", body)},
	})
	if err != nil || result.StatusCode != http.StatusOK {
		t.Fatalf("expected signed delivery accepted, got %#v %v", result, err)
	}
	if result.Metadata["provider_id"] != ProviderGitea {
		t.Fatalf("expected provider id fallback, got %#v", result.Metadata)
	}
}

func TestProcessor_RequiresRelay(t *testing.T) {
	var processor *Processor
	if _, err := processor.Process(context.Background(), core.InboundRequest{}); err == nil {
		t.Fatalf("expected error from nil processor")
	}
}
