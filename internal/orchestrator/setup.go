package orchestrator

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/aristath/autopilot/internal/config"
	apotel "github.com/aristath/autopilot/internal/otel"
	"github.com/aristath/autopilot/internal/plan"
	"github.com/aristath/autopilot/internal/scheduler"
)

// NewStrategy builds the execution strategy named in the scheduler config.
func NewStrategy(cfg config.SchedulerConfig, logger *slog.Logger) (scheduler.Strategy, error) {
	switch cfg.Strategy {
	case "", "sync":
		return scheduler.SyncStrategy{}, nil
	case "async":
		return scheduler.AsyncStrategy{}, nil
	case "retry":
		retries := cfg.Retry.MaxRetries
		if retries < 0 {
			retries = 0
		}
		return scheduler.RetryStrategy{
			Inner: scheduler.SyncStrategy{},
			Config: scheduler.RetryConfig{
				InitialInterval: time.Duration(cfg.Retry.InitialIntervalMS) * time.Millisecond,
				MaxInterval:     time.Duration(cfg.Retry.MaxIntervalMS) * time.Millisecond,
				MaxElapsedTime:  time.Duration(cfg.Retry.MaxElapsedSeconds) * time.Second,
				MaxRetries:      uint64(retries),
			},
			Breakers: scheduler.NewBreakerRegistry(logger),
		}, nil
	default:
		return nil, &plan.ValidationError{Field: "scheduler.strategy", Value: cfg.Strategy, Reason: "must be sync, async or retry"}
	}
}

// SchedulerConfig converts the scheduler section into a scheduler.Config.
func SchedulerConfig(cfg config.SchedulerConfig, logger *slog.Logger, metrics *apotel.Metrics, tracer trace.Tracer) (scheduler.Config, error) {
	strategy, err := NewStrategy(cfg, logger)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		MaxConcurrent: cfg.MaxConcurrentTasks,
		MaxQueued:     cfg.MaxQueuedTasks,
		TaskTimeout:   cfg.TaskTimeout(),
		Strategy:      strategy,
		Locks:         scheduler.NewResourceLockManager(),
		Logger:        logger,
		Metrics:       metrics,
		Tracer:        tracer,
	}, nil
}
