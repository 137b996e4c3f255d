package maintenance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-hookrelay/core"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/robfig/cron/v3"
)

const (
	DefaultPruneSchedule = "@every 30s"
	DefaultPruneTimeout  = 10 * time.Second
)

var specParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// PruneFunc is the prune operation; core.Pruner.Prune and the command bus
// prune helper both fit.
type PruneFunc func(ctx context.Context, now time.Time) (int, error)

// Pruner calls a PruneFunc on a cron schedule. Overlapping runs are skipped.
type Pruner struct {
	prune    PruneFunc
	schedule string
	timeout  time.Duration
	logger   core.Logger
	now      func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	runs    int
	removed int
}

type Option func(*Pruner)

func WithSchedule(spec string) Option {
	return func(p *Pruner) {
		if spec = strings.TrimSpace(spec); spec != "" {
			p.schedule = spec
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(p *Pruner) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(p *Pruner) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(p *Pruner) {
		if provider != nil {
			p.logger = provider.GetLogger("hookrelay.maintenance")
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pruner) {
		if now != nil {
			p.now = now
		}
	}
}

func NewPruner(pruner core.Pruner, opts ...Option) (*Pruner, error) {
	if pruner == nil {
		return nil, fmt.Errorf("maintenance: pruner is required")
	}
	return NewPrunerFunc(pruner.Prune, opts...)
}

func NewPrunerFunc(prune PruneFunc, opts ...Option) (*Pruner, error) {
	if prune == nil {
		return nil, fmt.Errorf("maintenance: prune func is required")
	}
	p := &Pruner{
		prune:    prune,
		schedule: DefaultPruneSchedule,
		timeout:  DefaultPruneTimeout,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.logger = glog.Ensure(p.logger)
	if _, err := specParser.Parse(p.schedule); err != nil {
		return nil, fmt.Errorf("maintenance: invalid schedule %q: %w", p.schedule, err)
	}
	return p, nil
}

func (p *Pruner) Schedule() string {
	return p.schedule
}

// Start schedules the prune. Calling Start twice is a no-op.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return nil
	}
	c := cron.New(
		cron.WithParser(specParser),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(p.schedule, func() {
		_, _ = p.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("maintenance: schedule prune: %w", err)
	}
	c.Start()
	p.cron = c
	p.logger.Info("seen event prune scheduled", "schedule", p.schedule)
	return nil
}

// Stop halts the schedule and waits for a running prune, or for ctx.
func (p *Pruner) Stop(ctx context.Context) error {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
		p.logger.Info("seen event prune stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce prunes immediately.
func (p *Pruner) RunOnce(ctx context.Context) (int, error) {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	started := p.now()
	removed, err := p.prune(runCtx, started)
	if err != nil {
		p.logger.Error("seen event prune failed", "error", err)
		return 0, err
	}

	p.mu.Lock()
	p.runs++
	p.removed += removed
	p.mu.Unlock()

	if removed > 0 {
		p.logger.Debug("seen events pruned", "removed", removed, "duration_ms", p.now().Sub(started).Milliseconds())
	}
	return removed, nil
}

// Stats reports completed runs and the total removed across them.
func (p *Pruner) Stats() (runs int, removed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs, p.removed
}
