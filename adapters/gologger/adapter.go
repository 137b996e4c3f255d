package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// JobLoggerName is the logger name maintenance jobs log under.
const JobLoggerName = "hookrelay.jobs"

// ToJobProvider exposes a glog provider to go-job.
func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

// JobLogger resolves the jobs logger with precedence provider > logger > nop
// and bridges it to go-job. It never returns go-job's stdlib logger.
func JobLogger(provider glog.LoggerProvider, logger glog.Logger) job.Logger {
	if provider != nil {
		resolved, _ := glog.Resolve(JobLoggerName, provider, logger)
		return ToJobProvider(resolved).GetLogger(JobLoggerName)
	}
	return job.GoLogger(glog.Ensure(logger))
}
