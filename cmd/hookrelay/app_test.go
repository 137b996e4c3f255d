package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	hookrelay "github.com/goliatone/go-hookrelay"
	relaycommand "github.com/goliatone/go-hookrelay/command"
	"github.com/goliatone/go-hookrelay/config"
	"github.com/goliatone/go-hookrelay/core"
	"github.com/goliatone/go-hookrelay/dispatch"
	relayquery "github.com/goliatone/go-hookrelay/query"
	"github.com/goliatone/go-hookrelay/webhooks"
)

const pushBody = `{
  "before": "0000000",
  "after": "1111111",
  "ref": "refs/heads/main",
  "sender": {"login": "moslem"},
  "repository": {"name": "giteaFinalProject"}
}`

type recordingSink struct {
	mu       sync.Mutex
	messages map[core.Channel][]string
}

func (*recordingSink) Name() string { return "recording" }

func (s *recordingSink) Send(_ context.Context, channel core.Channel, message string) (core.ProviderResponseMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.messages == nil {
		s.messages = map[core.Channel][]string{}
	}
	s.messages[channel] = append(s.messages[channel], message)
	return core.ProviderResponseMeta{StatusCode: http.StatusNoContent}, nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, messages := range s.messages {
		total += len(messages)
	}
	return total
}

func testConfig() config.AppConfig {
	cfg := config.Defaults()
	cfg.Routing = core.RoutingRule{TargetUser: "moslem", CommonRepository: "giteaFinalProject"}
	cfg.Logging.Format = "json"
	return cfg
}

func buildTestApp(t *testing.T, cfg config.AppConfig) (*App, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	registry := hookrelay.NewSinkRegistry()
	if err := registry.Register("recording", func(config.AppConfig) (core.Sink, error) { return sink, nil }); err != nil {
		t.Fatalf("register sink: %v", err)
	}
	app, err := BuildApp(context.Background(), cfg, "", withLogOutput(io.Discard), withSinkRegistry(registry))
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app, sink
}

func postWebhook(t *testing.T, url string, body string, headers map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post webhook: %v", err)
	}
	defer res.Body.Close()
	text, _ := io.ReadAll(res.Body)
	return res.StatusCode, string(text)
}

func TestBuildApp_MemoryStoreEndToEnd(t *testing.T) {
	app, sink := buildTestApp(t, testConfig())
	server := httptest.NewServer(app.Handler())
	defer server.Close()

	status, body := postWebhook(t, server.URL+"/gitea/webhook", pushBody, nil)
	if status != http.StatusOK || body != webhooks.MessageProcessed {
		t.Fatalf("expected processed, got %d %q", status, body)
	}
	if sink.count() != 2 {
		t.Fatalf("expected common and personal deliveries, got %d", sink.count())
	}

	status, body = postWebhook(t, server.URL+"/gitea/webhook", pushBody, nil)
	if status != http.StatusOK || body != webhooks.MessageDuplicate {
		t.Fatalf("expected duplicate reply, got %d %q", status, body)
	}

	status, body = postWebhook(t, server.URL+"/gitea/webhook", "", nil)
	if status != http.StatusBadRequest || body != webhooks.MessageEmptyPayload {
		t.Fatalf("expected empty payload reply, got %d %q", status, body)
	}
	status, body = postWebhook(t, server.URL+"/gitea/webhook", `{"ref": "main"}`, nil)
	if status != http.StatusBadRequest || body != webhooks.MessageMissingIdentity {
		t.Fatalf("expected missing identity reply, got %d %q", status, body)
	}

	records, err := app.Facade().Queries().ListDispatches.Query(context.Background(), relayquery.ListDispatchesMessage{})
	if err != nil {
		t.Fatalf("list dispatches: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected two audit rows, got %d", len(records))
	}
}

func TestBuildApp_SignedProviderRejectsUnsignedDelivery(t *testing.T) {
	cfg := testConfig()
	cfg.Webhook.Providers = []string{"gitea", "github"}
	cfg.Webhook.Secrets = map[string]string{"github": "s3cret"}
	app, sink := buildTestApp(t, cfg)
	server := httptest.NewServer(app.Handler())
	defer server.Close()

	status, _ := postWebhook(t, server.URL+"/github/webhook", pushBody, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized, got %d", status)
	}
	if sink.count() != 0 {
		t.Fatalf("expected no deliveries")
	}
	status, _ = postWebhook(t, server.URL+"/gogs/webhook", pushBody, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected unmounted provider to be not found, got %d", status)
	}
}

func TestBuildApp_SQLiteStore(t *testing.T) {
	cfg := testConfig()
	cfg.Store.Driver = "sqlite3"
	cfg.Store.DSN = fmt.Sprintf("file:hookrelay-app-%d?mode=memory&cache=shared", time.Now().UnixNano())
	app, sink := buildTestApp(t, cfg)
	server := httptest.NewServer(app.Handler())
	defer server.Close()

	for i := 0; i < 2; i++ {
		if status, _ := postWebhook(t, server.URL+"/gitea/webhook", pushBody, nil); status != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i, status)
		}
	}
	if sink.count() != 2 {
		t.Fatalf("expected one notification fanned out to two channels, got %d", sink.count())
	}
	records, err := app.Facade().Queries().ListDispatches.Query(context.Background(), relayquery.ListDispatchesMessage{
		Filter: core.DispatchFilter{Channel: core.ChannelCommon},
	})
	if err != nil {
		t.Fatalf("list dispatches: %v", err)
	}
	if len(records) != 1 || records[0].Status != core.DispatchStatusDelivered {
		t.Fatalf("unexpected audit rows %+v", records)
	}
}

func TestApp_ServeStopsOnCancel(t *testing.T) {
	app, _ := buildTestApp(t, testConfig())
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Serve(ctx, listener) }()

	url := "http://" + listener.Addr().String() + "/healthz"
	deadline := time.Now().Add(5 * time.Second)
	for {
		res, err := http.Get(url)
		if err == nil {
			_ = res.Body.Close()
			if res.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}
}

func TestBuildApp_RejectsUnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Webhook.Providers = []string{"bitbucket"}
	if _, err := BuildApp(context.Background(), cfg, "", withLogOutput(&bytes.Buffer{})); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
}

func TestBuildApp_WithoutSinksAuditsOnly(t *testing.T) {
	app, err := BuildApp(context.Background(), testConfig(), "", withLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("build app without sinks: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	server := httptest.NewServer(app.Handler())
	defer server.Close()

	status, body := postWebhook(t, server.URL+"/gitea/webhook", pushBody, nil)
	if status != http.StatusOK || body != webhooks.MessageProcessed {
		t.Fatalf("expected processed, got %d %q", status, body)
	}
	records, err := app.Facade().Queries().ListDispatches.Query(context.Background(), relayquery.ListDispatchesMessage{})
	if err != nil {
		t.Fatalf("list dispatches: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected an audit row per destination, got %d", len(records))
	}
	for _, record := range records {
		if record.Status != core.DispatchStatusSkipped || record.Sink != dispatch.AuditOnlySink {
			t.Fatalf("expected skipped audit-only row, got %+v", record)
		}
	}
}

func TestBuildApp_PrunerRunsThroughJobRegistry(t *testing.T) {
	app, _ := buildTestApp(t, testConfig())
	if _, ok := app.jobs.Get(relaycommand.TypePruneSeenEvents); !ok {
		t.Fatalf("expected prune command mirrored into the job registry")
	}
	server := httptest.NewServer(app.Handler())
	defer server.Close()
	if status, _ := postWebhook(t, server.URL+"/gitea/webhook", pushBody, nil); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	removed, err := app.pruner.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run prune job: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected fresh event to survive prune, got %d removed", removed)
	}
	if runs, _ := app.pruner.Stats(); runs != 1 {
		t.Fatalf("expected one recorded run, got %d", runs)
	}
}
