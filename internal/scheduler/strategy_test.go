package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aristath/autopilot/internal/plan"
)

func fastRetry(maxRetries uint64) RetryConfig {
	return RetryConfig{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  time.Second,
		Multiplier:      2,
		MaxRetries:      maxRetries,
	}
}

func TestSyncStrategy(t *testing.T) {
	task := buildPlan(t, nil)[0]
	v, err := SyncStrategy{}.Execute(context.Background(), task, func(ctx context.Context, task *plan.Task) (any, error) {
		return task.Description, nil
	})
	if err != nil || v != "task 0" {
		t.Errorf("Execute = (%v, %v)", v, err)
	}
}

func TestAsyncStrategy_ReturnsOnCancel(t *testing.T) {
	task := buildPlan(t, nil)[0]
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := AsyncStrategy{}.Execute(ctx, task, func(context.Context, *plan.Task) (any, error) {
		<-release // ignores ctx
		return nil, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("async strategy blocked for %s", elapsed)
	}
}

func TestRetryStrategy(t *testing.T) {
	tests := []struct {
		name      string
		failures  int32
		permanent bool
		retries   uint64
		wantErr   bool
		wantCalls int32
	}{
		{name: "succeeds first time", failures: 0, retries: 3, wantCalls: 1},
		{name: "succeeds after retries", failures: 2, retries: 3, wantCalls: 3},
		{name: "exhausts retries", failures: 10, retries: 2, wantErr: true, wantCalls: 3},
		{name: "permanent error stops", failures: 10, permanent: true, retries: 5, wantErr: true, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := buildPlan(t, nil)[0]
			var calls atomic.Int32
			fn := func(context.Context, *plan.Task) (any, error) {
				n := calls.Add(1)
				if n <= tt.failures {
					err := errors.New("transient")
					if tt.permanent {
						return nil, Permanent(err)
					}
					return nil, err
				}
				return "ok", nil
			}

			s := RetryStrategy{Config: fastRetry(tt.retries)}
			v, err := s.Execute(context.Background(), task, fn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && v != "ok" {
				t.Errorf("value = %v, want ok", v)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestRetryStrategy_StopsOnCancel(t *testing.T) {
	task := buildPlan(t, nil)[0]
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	s := RetryStrategy{Config: fastRetry(100)}
	_, err := s.Execute(ctx, task, func(context.Context, *plan.Task) (any, error) {
		if calls.Add(1) == 2 {
			cancel()
		}
		return nil, errors.New("fail")
	})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if calls.Load() > 3 {
		t.Errorf("kept retrying after cancel: %d calls", calls.Load())
	}
}

func TestRetryStrategy_BreakerOpens(t *testing.T) {
	breakers := NewBreakerRegistry(nil)
	task := buildPlan(t, nil)[0]
	fail := func(context.Context, *plan.Task) (any, error) { return nil, errors.New("fail") }

	s := RetryStrategy{Config: fastRetry(10), Breakers: breakers}
	_, err := s.Execute(context.Background(), task, fail)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open breaker", err)
	}
	if got := breakers.Get(string(plan.ActionGeneral)).State(); got != gobreaker.StateOpen {
		t.Errorf("breaker state = %s, want open", got)
	}
	if got := breakers.Get(string(plan.ActionEdit)).State(); got != gobreaker.StateClosed {
		t.Errorf("unrelated breaker state = %s, want closed", got)
	}
}

func TestBreaker_IgnoresCancellation(t *testing.T) {
	cb := NewBreakerRegistry(nil).Get("edit")
	for i := 0; i < 10; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, context.Canceled })
	}
	if cb.State() != gobreaker.StateClosed {
		t.Errorf("cancellations tripped the breaker: state %s", cb.State())
	}
}

func TestRetryStrategy_WithinScheduler(t *testing.T) {
	var calls atomic.Int32
	fn := func(context.Context, *plan.Task) (any, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("flaky")
		}
		return "done", nil
	}
	s := New(fn, Config{Strategy: RetryStrategy{Config: fastRetry(5)}})
	defer shutdown(t, s)

	scheduleAll(t, s, buildPlan(t, nil))
	r, err := s.WaitForTask(context.Background(), 0, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !r.Success || r.Value != "done" {
		t.Errorf("result = %+v", r)
	}
}
