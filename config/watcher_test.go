package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-hookrelay/core"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type routingSpy struct {
	mu    sync.Mutex
	rules []core.RoutingRule
}

func (s *routingSpy) UpdateRouting(rule core.RoutingRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule)
}

func (s *routingSpy) latest() (core.RoutingRule, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rules) == 0 {
		return core.RoutingRule{}, 0
	}
	return s.rules[len(s.rules)-1], len(s.rules)
}

func TestNewWatcher_Validation(t *testing.T) {
	if _, err := NewWatcher(Loader{}, func(context.Context, AppConfig) error { return nil }); err == nil {
		t.Fatalf("expected missing path error")
	}
	if _, err := NewWatcher(Loader{Path: "x.yaml"}, nil); err == nil {
		t.Fatalf("expected missing reload func error")
	}
}

func TestWatcher_PushesRoutingOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hookrelay.yaml")
	if err := os.WriteFile(path, []byte("routing:\n  target_user: alice\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	spy := &routingSpy{}
	watcher, err := NewWatcher(Loader{Path: path, Environ: noEnv}, RoutingReload(spy), WithDebounce(20*time.Millisecond))
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Fatalf("run: %v", err)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		// Rewrite until the watch is registered and the change lands.
		if err := os.WriteFile(path, []byte("routing:\n  target_user: bob\n  common_repository: shared\n"), 0o600); err != nil {
			t.Fatalf("rewrite: %v", err)
		}
		time.Sleep(100 * time.Millisecond)
		if rule, n := spy.latest(); n > 0 {
			if rule.TargetUser != "bob" || rule.CommonRepository != "shared" {
				t.Fatalf("unexpected routing %+v", rule)
			}
			reloads, last := watcher.Reloads()
			if reloads == 0 || last.Routing.TargetUser != "bob" {
				t.Fatalf("expected reload stats, got %d %+v", reloads, last.Routing)
			}
			return
		}
	}
	t.Fatalf("routing was not reloaded")
}

func TestWatcher_InvalidFileKeepsPreviousRouting(t *testing.T) {
	path := writeConfigFile(t, "hookrelay.yaml", "routing:\n  target_user: alice\n")
	spy := &routingSpy{}
	watcher, err := NewWatcher(Loader{Path: path, Environ: noEnv}, RoutingReload(spy))
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	if err := os.WriteFile(path, []byte("webhook:\n  providers: [bitbucket]\n"), 0o600); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	watcher.reload(context.Background())
	if _, n := spy.latest(); n != 0 {
		t.Fatalf("expected invalid config to be rejected")
	}
}
