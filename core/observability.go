package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func (r *Relay) observeSubmit(ctx context.Context, startedAt time.Time, result Result, err error) {
	if r == nil {
		return
	}
	outcome := string(result.Outcome)
	if outcome == "" {
		outcome = "unknown"
	}
	kind := string(result.Kind)
	if kind == "" {
		kind = string(EventUnknown)
	}
	duration := r.now().Sub(startedAt)

	fields := map[string]any{
		"event_type":  "relay.submit",
		"outcome":     outcome,
		"event_kind":  kind,
		"actor":       result.Actor,
		"repository":  result.Repository,
		"fingerprint": result.Fingerprint.Short(),
		"duration_ms": duration.Milliseconds(),
	}
	if !result.Destinations.Empty() {
		fields["destinations"] = result.Destinations.String()
	}
	if err != nil {
		fields["error"] = err.Error()
		var rich *goerrors.Error
		if goerrors.As(err, &rich) && rich != nil {
			fields["error_category"] = fmt.Sprint(rich.Category)
			fields["error_text_code"] = rich.TextCode
			if stage, ok := rich.Metadata["stage"]; ok {
				fields["stage"] = stage
			}
		}
	}

	tags := map[string]string{
		"outcome":    outcome,
		"event_kind": kind,
	}
	r.recordCounter(ctx, MetricSubmitTotal, 1, tags)
	r.recordHistogram(ctx, MetricSubmitDurationMS, float64(duration.Milliseconds()), tags)

	switch result.Outcome {
	case OutcomeFailed:
		r.logWithLevel(ctx, "error", "relay submit failed", fields)
	case OutcomeRejected:
		r.logWithLevel(ctx, "warn", "relay submit rejected", fields)
	case OutcomeSuppressed:
		r.logWithLevel(ctx, "debug", "relay submit suppressed duplicate", fields)
	default:
		r.logWithLevel(ctx, "info", "relay submit dispatched", fields)
	}
}

func (r *Relay) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if r == nil || r.logger == nil {
		return
	}
	logger := r.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	case "debug":
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (r *Relay) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if r == nil || r.metricsRecorder == nil {
		return
	}
	r.metricsRecorder.IncCounter(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func (r *Relay) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if r == nil || r.metricsRecorder == nil {
		return
	}
	r.metricsRecorder.ObserveHistogram(ctx, strings.TrimSpace(name), value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return map[string]any{}
	}
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

// FlattenFields turns a field map into sorted key/value pairs for loggers
// that do not implement FieldsLogger.
func FlattenFields(fields map[string]any) []any {
	return flattenFields(fields)
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}
