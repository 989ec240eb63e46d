package orchestrator

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aristath/autopilot/internal/config"
	"github.com/aristath/autopilot/internal/plan"
	"github.com/aristath/autopilot/internal/scheduler"
)

func TestNewStrategy(t *testing.T) {
	tests := []struct {
		name     string
		strategy string
		want     string
		wantErr  bool
	}{
		{"default", "", "sync", false},
		{"sync", "sync", "sync", false},
		{"async", "async", "async", false},
		{"retry", "retry", "retry", false},
		{"unknown", "parallel", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig().Scheduler
			cfg.Strategy = tt.strategy

			got, err := NewStrategy(cfg, nil)
			if tt.wantErr {
				var ve *plan.ValidationError
				if !errors.As(err, &ve) || ve.Field != "scheduler.strategy" {
					t.Errorf("err = %v, want ValidationError on scheduler.strategy", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewStrategy: %v", err)
			}
			if got.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", got.Name(), tt.want)
			}
		})
	}
}

func TestNewStrategy_RetryConfig(t *testing.T) {
	cfg := config.SchedulerConfig{
		Strategy: "retry",
		Retry: config.RetryConfig{
			MaxRetries:        5,
			InitialIntervalMS: 250,
			MaxIntervalMS:     2000,
			MaxElapsedSeconds: 30,
		},
	}

	got, err := NewStrategy(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	retry, ok := got.(scheduler.RetryStrategy)
	if !ok {
		t.Fatalf("strategy = %T, want RetryStrategy", got)
	}
	if retry.Config.MaxRetries != 5 ||
		retry.Config.InitialInterval != 250*time.Millisecond ||
		retry.Config.MaxInterval != 2*time.Second ||
		retry.Config.MaxElapsedTime != 30*time.Second {
		t.Errorf("retry config = %+v", retry.Config)
	}
	if retry.Breakers == nil {
		t.Error("expected a breaker registry")
	}
}

func TestSchedulerConfig(t *testing.T) {
	cfg := config.DefaultConfig().Scheduler
	cfg.MaxConcurrentTasks = 3
	cfg.MaxQueuedTasks = 10
	cfg.TaskTimeoutSeconds = 90

	got, err := SchedulerConfig(cfg, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.MaxConcurrent != 3 || got.MaxQueued != 10 || got.TaskTimeout != 90*time.Second {
		t.Errorf("scheduler config = %+v", got)
	}
	if got.Locks == nil || got.Strategy == nil {
		t.Error("expected locks and strategy to be set")
	}
}

func TestBuildPrompt(t *testing.T) {
	p := plan.NewExecutionPlan()
	id, err := p.AddTask("Edit config.py to rename the timeout option, a breaking change", plan.ActionEdit, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Annotate(); err != nil {
		t.Fatal(err)
	}
	task, _ := p.Task(id)

	prompt := BuildPrompt(task)
	for _, want := range []string{
		"Task 0 (edit): Edit config.py",
		"Risk level: ",
		"config.py",
		"may break existing callers",
		"make sure these checks pass",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestRunState(t *testing.T) {
	// Shapes as produced by plan.LoadCheckpoint
	s := runState{
		"run_id":                  "r1",
		"recovery_attempts":       map[string]any{"task_2": 1},
		"total_recovery_attempts": 1,
		"snapshots":               []any{"tag-a"},
	}

	if got := s.addAttempt(2); got != 2 {
		t.Errorf("addAttempt(2) = %d, want 2", got)
	}
	if got := s.addAttempt(5); got != 1 {
		t.Errorf("addAttempt(5) = %d, want 1", got)
	}
	if s.totalAttempts() != 3 {
		t.Errorf("totalAttempts = %d, want 3", s.totalAttempts())
	}

	clone := s.clone()
	s.addSnapshot("tag-b")
	s.addAttempt(2)
	s.addRound()

	if snaps := clone["snapshots"].([]any); len(snaps) != 1 {
		t.Errorf("clone snapshots changed: %v", snaps)
	}
	if clone["recovery_attempts"].(map[string]any)["task_2"] != 2 {
		t.Errorf("clone attempts changed: %v", clone["recovery_attempts"])
	}
	if got := s.snapshots(); len(got) != 2 || got[1] != "tag-b" {
		t.Errorf("snapshots = %v", got)
	}
	if s.completedRounds() != 1 {
		t.Errorf("completedRounds = %d, want 1", s.completedRounds())
	}
}
