package config

import (
	"errors"
	"strings"

	"github.com/aristath/autopilot/internal/backend"
	"github.com/aristath/autopilot/internal/plan"
)

var (
	strategies = map[string]bool{"sync": true, "async": true, "retry": true}
	exporters  = map[string]bool{"": true, "none": true, "stdout": true, "otlp-http": true}
)

// Validate checks the configuration and returns every problem found, each as
// a *plan.ValidationError.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, field string, value any, reason string) {
		if !ok {
			errs = append(errs, &plan.ValidationError{Field: field, Value: value, Reason: reason})
		}
	}

	s := c.Scheduler
	check(s.MaxConcurrentTasks > 0, "scheduler.max_concurrent_tasks", s.MaxConcurrentTasks, "must be positive")
	check(s.MaxQueuedTasks >= 0, "scheduler.max_queued_tasks", s.MaxQueuedTasks, "must not be negative")
	check(s.TaskTimeoutSeconds >= 0, "scheduler.task_timeout_seconds", s.TaskTimeoutSeconds, "must not be negative")
	check(strategies[s.Strategy], "scheduler.strategy", s.Strategy, "must be sync, async or retry")
	check(s.Retry.MaxRetries >= 0, "scheduler.retry.max_retries", s.Retry.MaxRetries, "must not be negative")

	check(c.Risk.DependencyThreshold > 0, "risk.dependency_threshold", c.Risk.DependencyThreshold, "must be positive")
	if _, err := plan.CompileProtectedPaths(c.Risk.ProtectedPaths); err != nil {
		errs = append(errs, err)
	}

	r := c.Recovery
	check(r.CommandTimeoutSeconds > 0, "recovery.command_timeout_seconds", r.CommandTimeoutSeconds, "must be positive")
	check(r.MaxAttempts >= 0, "recovery.max_attempts", r.MaxAttempts, "must not be negative")

	check(backend.Supported(c.Agent.Type), "agent.type", c.Agent.Type, "must be cli or claude")
	check(strings.TrimSpace(c.Agent.Command) != "", "agent.command", c.Agent.Command, "must not be empty")

	check(exporters[c.Telemetry.OTel.Exporter], "telemetry.otel.exporter", c.Telemetry.OTel.Exporter, "must be none, stdout or otlp-http")
	check(c.Telemetry.OTel.SampleRate >= 0 && c.Telemetry.OTel.SampleRate <= 1, "telemetry.otel.sample_rate", c.Telemetry.OTel.SampleRate, "must be between 0 and 1")

	return errors.Join(errs...)
}
