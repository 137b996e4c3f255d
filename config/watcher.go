package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/goliatone/go-hookrelay/core"
	glog "github.com/goliatone/go-logger/glog"
)

const DefaultReloadDebounce = 250 * time.Millisecond

// ReloadFunc receives every config that loaded and validated after a file
// change.
type ReloadFunc func(ctx context.Context, cfg AppConfig) error

// RoutingReload pushes reloaded routing rules into a running relay. Other
// settings need a restart.
func RoutingReload(target interface{ UpdateRouting(core.RoutingRule) }) ReloadFunc {
	return func(_ context.Context, cfg AppConfig) error {
		if target == nil {
			return fmt.Errorf("config: routing reload target is nil")
		}
		target.UpdateRouting(cfg.Routing)
		return nil
	}
}

// Watcher reloads the config file on change. Events are debounced because
// editors often write a file in several steps.
type Watcher struct {
	loader   Loader
	onReload ReloadFunc
	debounce time.Duration
	logger   core.Logger

	mu      sync.Mutex
	reloads int
	last    AppConfig
}

type WatcherOption func(*Watcher)

func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func WithWatchLogger(logger core.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func NewWatcher(loader Loader, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	if strings.TrimSpace(loader.Path) == "" {
		return nil, fmt.Errorf("config: watcher needs a config file path")
	}
	if onReload == nil {
		return nil, fmt.Errorf("config: watcher reload func is required")
	}
	w := &Watcher{
		loader:   loader,
		onReload: onReload,
		debounce: DefaultReloadDebounce,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	w.logger = glog.Ensure(w.logger)
	return w, nil
}

// Run watches until ctx is done. The parent directory is watched so atomic
// renames by editors are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	defer fw.Close()

	path, err := filepath.Abs(w.loader.Path)
	if err != nil {
		return fmt.Errorf("config: resolve %s: %w", w.loader.Path, err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(path), err)
	}
	w.logger.Info("config watch started", "path", path)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watch stopped", "path", path)
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watch error", "error", err)
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	cfg, err := w.loader.Load(ctx)
	if err != nil {
		w.logger.Warn("config reload rejected", "path", w.loader.Path, "error", err)
		return
	}
	if err := w.onReload(ctx, cfg); err != nil {
		w.logger.Error("config reload failed", "path", w.loader.Path, "error", err)
		return
	}
	w.mu.Lock()
	w.reloads++
	w.last = cfg
	w.mu.Unlock()
	w.logger.Info("config reloaded",
		"path", w.loader.Path,
		"target_user", cfg.Routing.TargetUser,
		"common_repository", cfg.Routing.CommonRepository,
	)
}

// Reloads reports how many reloads were applied and the latest config.
func (w *Watcher) Reloads() (int, AppConfig) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads, w.last
}
