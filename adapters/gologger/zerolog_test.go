package gologger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry := map[string]any{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestZerologLogger_WritesKeyValueArgs(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewZerologLogger(ZerologOptions{Level: "debug", Format: "json", Output: buf})

	logger.Info("relay submit dispatched", "outcome", "dispatched", "duration_ms", 3)
	logger.Trace("hidden")

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected one entry below trace, got %d", len(entries))
	}
	entry := entries[0]
	if entry["message"] != "relay submit dispatched" || entry["level"] != "info" {
		t.Fatalf("unexpected entry %#v", entry)
	}
	if entry["outcome"] != "dispatched" || entry["duration_ms"] != float64(3) {
		t.Fatalf("expected structured args, got %#v", entry)
	}
}

func TestZerologLogger_FieldsAndNamedProvider(t *testing.T) {
	buf := &bytes.Buffer{}
	root := NewZerologLogger(ZerologOptions{Output: buf})
	provider := NewZerologProvider(root)

	logger := provider.GetLogger("dispatch")
	fieldsLogger, ok := logger.(glog.FieldsLogger)
	if !ok {
		t.Fatalf("expected zerolog logger to support fields")
	}
	fieldsLogger.WithFields(map[string]any{"channel": "common"}).Warn("sink throttled", "orphan")

	entries := decodeLines(t, buf)
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry["logger"] != "dispatch" || entry["channel"] != "common" {
		t.Fatalf("expected named logger with fields, got %#v", entry)
	}
	if entry["extra"] != "orphan" {
		t.Fatalf("expected dangling arg under extra, got %#v", entry)
	}
}

func TestParseLevel_DefaultsToInfo(t *testing.T) {
	if got := ParseLevel("bogus").String(); got != "info" {
		t.Fatalf("expected info fallback, got %q", got)
	}
	if got := ParseLevel(" WARN ").String(); got != "warn" {
		t.Fatalf("expected warn, got %q", got)
	}
}

func TestResolve_PrefersZerologProvider(t *testing.T) {
	buf := &bytes.Buffer{}
	provider := NewZerologProvider(NewZerologLogger(ZerologOptions{Output: buf}))
	_, logger := glog.Resolve("relay", provider, nil)
	logger.Info("hello")
	entries := decodeLines(t, buf)
	if len(entries) != 1 || entries[0]["logger"] != "relay" {
		t.Fatalf("expected provider logger named relay, got %#v", entries)
	}
}
