package core

import (
	"context"
	"errors"
	"sync"
	"time"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type logEntry struct {
	level   string
	message string
	args    []any
}

type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
}

func newRecordingLogger() recordingLogger {
	return recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (l recordingLogger) record(level, message string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, logEntry{level: level, message: message, args: args})
}

func (l recordingLogger) Trace(msg string, args ...any) { l.record("trace", msg, args) }
func (l recordingLogger) Debug(msg string, args ...any) { l.record("debug", msg, args) }
func (l recordingLogger) Info(msg string, args ...any)  { l.record("info", msg, args) }
func (l recordingLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args) }
func (l recordingLogger) Error(msg string, args ...any) { l.record("error", msg, args) }
func (l recordingLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args) }
func (l recordingLogger) WithContext(context.Context) Logger {
	return l
}

func (l recordingLogger) snapshot() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), (*l.entries)...)
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

type windowDeduplicator struct {
	mu   sync.Mutex
	seen map[Fingerprint]time.Time
	err  error
}

func newWindowDeduplicator() *windowDeduplicator {
	return &windowDeduplicator{seen: map[Fingerprint]time.Time{}}
}

func (d *windowDeduplicator) Claim(_ context.Context, fingerprint Fingerprint, now time.Time) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if firstSeen, ok := d.seen[fingerprint]; ok && now.Sub(firstSeen) < DedupWindow {
		return false, nil
	}
	d.seen[fingerprint] = now
	return true, nil
}

type recordingNotifier struct {
	mu            sync.Mutex
	notifications []Notification
	err           error
	panicWith     any
}

func (n *recordingNotifier) Deliver(_ context.Context, notification Notification) error {
	if n.panicWith != nil {
		panic(n.panicWith)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification)
	return n.err
}

func (n *recordingNotifier) calls() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.notifications...)
}

type metricSample struct {
	name  string
	value float64
	tags  map[string]string
}

type recordingMetrics struct {
	mu         sync.Mutex
	counters   []metricSample
	histograms []metricSample
}

func (m *recordingMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, metricSample{name: name, value: float64(value), tags: tags})
}

func (m *recordingMetrics) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, metricSample{name: name, value: value, tags: tags})
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errStoreUnavailable = errors.New("store unavailable")

func pushPayload(actor, repo string) Payload {
	return Payload{
		"before": "0000000",
		"after":  "abc1234",
		"ref":    "refs/heads/main",
		"sender": map[string]any{"login": actor},
		"repository": map[string]any{
			"name": repo,
		},
	}
}
