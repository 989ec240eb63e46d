package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/aristath/autopilot/internal/plan"
)

// Func performs the work of a task.
type Func func(ctx context.Context, task *plan.Task) (any, error)

// Strategy decides how a task function is invoked. Every strategy shares the
// scheduler's submit, poll, wait and cancel contract.
type Strategy interface {
	Execute(ctx context.Context, task *plan.Task, fn Func) (any, error)
	Name() string
}

// SyncStrategy runs the function on the worker goroutine.
type SyncStrategy struct{}

func (SyncStrategy) Name() string { return "sync" }

func (SyncStrategy) Execute(ctx context.Context, task *plan.Task, fn Func) (any, error) {
	return fn(ctx, task)
}

// AsyncStrategy runs the function on its own goroutine and returns as soon as
// ctx is done, even if the function ignores cancellation. The abandoned
// goroutine keeps running until the function returns.
type AsyncStrategy struct{}

func (AsyncStrategy) Name() string { return "async" }

func (AsyncStrategy) Execute(ctx context.Context, task *plan.Task, fn Func) (any, error) {
	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(ctx, task)
		done <- outcome{v, err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RetryConfig configures exponential backoff.
type RetryConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	MaxElapsedTime      time.Duration
	Multiplier          float64
	RandomizationFactor float64
	MaxRetries          uint64 // 0 means bounded only by MaxElapsedTime
}

// DefaultRetryConfig returns the default backoff settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		MaxElapsedTime:      2 * time.Minute,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
		MaxRetries:          3,
	}
}

// withDefaults fills zero fields from DefaultRetryConfig, except MaxRetries.
func (c RetryConfig) withDefaults() RetryConfig {
	def := DefaultRetryConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = def.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = def.MaxInterval
	}
	if c.MaxElapsedTime <= 0 {
		c.MaxElapsedTime = def.MaxElapsedTime
	}
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
	if c.RandomizationFactor < 0 {
		c.RandomizationFactor = def.RandomizationFactor
	}
	return c
}

// Permanent marks an error that must not be retried.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// BreakerRegistry keeps one circuit breaker per action type, so a run of
// failing deletes does not stop edits from being attempted.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry(logger *slog.Logger) *BreakerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the breaker for key, creating it on first use.
func (r *BreakerRegistry) Get(key string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[key]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Cancellation and timeouts say nothing about the action type's health
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	r.breakers[key] = cb
	return cb
}

// RetryStrategy retries a failing task with exponential backoff behind a
// per-action-type circuit breaker. Permanent errors, open breakers and
// cancellation stop the retries.
type RetryStrategy struct {
	Inner    Strategy // defaults to SyncStrategy
	Config   RetryConfig
	Breakers *BreakerRegistry // optional
}

func (s RetryStrategy) Name() string { return "retry" }

func (s RetryStrategy) Execute(ctx context.Context, task *plan.Task, fn Func) (any, error) {
	inner := s.Inner
	if inner == nil {
		inner = SyncStrategy{}
	}

	var value any
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		var err error
		if s.Breakers != nil {
			value, err = s.Breakers.Get(string(task.ActionType)).Execute(func() (interface{}, error) {
				return inner.Execute(ctx, task, fn)
			})
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
		} else {
			value, err = inner.Execute(ctx, task, fn)
		}

		if err != nil && ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}

	cfg := s.Config.withDefaults()
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = cfg.InitialInterval
	policy.MaxInterval = cfg.MaxInterval
	policy.MaxElapsedTime = cfg.MaxElapsedTime
	policy.Multiplier = cfg.Multiplier
	policy.RandomizationFactor = cfg.RandomizationFactor

	var b backoff.BackOff = policy
	if cfg.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, cfg.MaxRetries)
	}

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return value, err
}
