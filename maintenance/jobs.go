package maintenance

import (
	"context"
	"fmt"
	"strings"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-hookrelay/adapters/gologger"
	relaycommand "github.com/goliatone/go-hookrelay/command"
	job "github.com/goliatone/go-job"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// JobRunner executes commands mirrored into a go-job queue registry. Each run
// goes through a TaskCommander, the same path a queue worker takes for a
// delivery, but in-process and synchronously.
type JobRunner struct {
	registry *jobqueuecommand.Registry
	logger   job.Logger
}

// NewJobRunner wraps registry. A nil logger logs nowhere.
func NewJobRunner(registry *jobqueuecommand.Registry, logger job.Logger) (*JobRunner, error) {
	if registry == nil {
		return nil, fmt.Errorf("maintenance: job registry is required")
	}
	if logger == nil {
		logger = gologger.JobLogger(nil, nil)
	}
	return &JobRunner{registry: registry, logger: logger}, nil
}

// Run executes the registered command id with params decoded into its message.
// Retries are disabled; the next scheduled run is the retry.
func (r *JobRunner) Run(ctx context.Context, id string, params map[string]any) error {
	if r == nil || r.registry == nil {
		return fmt.Errorf("maintenance: job runner is not configured")
	}
	id = strings.TrimSpace(id)
	if _, ok := r.registry.Get(id); !ok {
		return fmt.Errorf("maintenance: job %q is not registered", id)
	}
	task := jobqueuecommand.NewTask(r.registry, id)
	msg, err := job.BuildExecutionMessageForTask(task, params)
	if err != nil {
		return fmt.Errorf("maintenance: build job %q: %w", id, err)
	}

	started := time.Now()
	err = job.NewTaskCommander(task).WithRetryOverride(0).Execute(ctx, msg)
	durationMS := time.Since(started).Milliseconds()
	if err != nil {
		r.logger.Error("job failed", "job_id", id, "duration_ms", durationMS, "error", err)
		return err
	}
	r.logger.Debug("job completed", "job_id", id, "duration_ms", durationMS)
	return nil
}

// PruneJob runs the seen-event prune command through the job runner.
func PruneJob(runner *JobRunner) PruneFunc {
	return func(ctx context.Context, now time.Time) (int, error) {
		collector := gocmd.NewResult[relaycommand.PruneResult]()
		ctx = gocmd.ContextWithResult(ctx, collector)
		if err := runner.Run(ctx, relaycommand.TypePruneSeenEvents, map[string]any{"now": now}); err != nil {
			return 0, err
		}
		result, _ := collector.Load()
		return result.Removed, nil
	}
}
