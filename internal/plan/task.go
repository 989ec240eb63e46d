package plan

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"   // Waiting to be scheduled or for dependencies
	StatusRunning   TaskStatus = "running"   // Currently executing
	StatusCompleted TaskStatus = "completed" // Finished successfully
	StatusFailed    TaskStatus = "failed"    // Finished with error
	StatusCancelled TaskStatus = "cancelled" // Cancelled or skipped, never finished
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

func parseStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return TaskStatus(s), nil
	default:
		return "", fmt.Errorf("unknown task status %q", s)
	}
}

// ActionType classifies the kind of change a task performs.
type ActionType string

const (
	ActionReview  ActionType = "review"
	ActionEdit    ActionType = "edit"
	ActionAdd     ActionType = "add"
	ActionDelete  ActionType = "delete"
	ActionRename  ActionType = "rename"
	ActionTest    ActionType = "test"
	ActionGeneral ActionType = "general"
)

// RiskLevel is an ordered severity scale.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

var riskNames = [...]string{"low", "medium", "high", "critical"}

func (r RiskLevel) String() string {
	if r < RiskLow || r > RiskCritical {
		return fmt.Sprintf("RiskLevel(%d)", int(r))
	}
	return riskNames[r]
}

// ParseRiskLevel converts a risk name to a RiskLevel.
func ParseRiskLevel(s string) (RiskLevel, error) {
	for i, name := range riskNames {
		if strings.EqualFold(s, name) {
			return RiskLevel(i), nil
		}
	}
	return RiskLow, fmt.Errorf("unknown risk level %q", s)
}

func (r RiskLevel) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *RiskLevel) UnmarshalText(text []byte) error {
	lvl, err := ParseRiskLevel(string(text))
	if err != nil {
		return err
	}
	*r = lvl
	return nil
}

// raise returns the level moved up by delta steps, capped at critical.
func (r RiskLevel) raise(delta int) RiskLevel {
	out := r + RiskLevel(delta)
	if out > RiskCritical {
		return RiskCritical
	}
	return out
}

// TaskResult is the outcome of running a task.
type TaskResult struct {
	Success  bool
	Value    any
	Error    string
	Duration time.Duration
	Metadata map[string]any
}

// Err returns the failure as a *TaskExecutionError, or nil when the task succeeded.
func (r *TaskResult) Err(taskID int) error {
	if r == nil || r.Success {
		return nil
	}
	return &TaskExecutionError{TaskID: taskID, Err: fmt.Errorf("%s", r.Error)}
}

func (r *TaskResult) clone() *TaskResult {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Metadata != nil {
		cp.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// Task is a single unit of change work owned by an ExecutionPlan.
//
// Identity fields are fixed at creation. Annotation fields (risk, impact,
// rollback, validation) are written by the plan's analysis methods and are
// expected to be filled in before the task is handed to a scheduler.
// Status, result and run timestamps are guarded by the task's own mutex and
// are safe for concurrent use through the accessor methods.
type Task struct {
	ID           int
	Description  string
	ActionType   ActionType
	Dependencies []int
	CreatedAt    time.Time

	RiskLevel       RiskLevel
	RiskReasons     []string
	ImpactScope     string
	BreakingChange  bool
	RollbackPlan    string
	ValidationSteps []string
	AffectedFiles   []string

	mu          sync.RWMutex
	status      TaskStatus
	result      *TaskResult
	startedAt   time.Time
	completedAt time.Time
}

func newTask(id int, description string, actionType ActionType, deps []int) *Task {
	return &Task{
		ID:           id,
		Description:  description,
		ActionType:   actionType,
		Dependencies: deps,
		CreatedAt:    time.Now(),
		RiskLevel:    RiskLow,
		status:       StatusPending,
	}
}

// Status returns the current status.
func (t *Task) Status() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Result returns a copy of the task result, or nil if none has been recorded.
func (t *Task) Result() *TaskResult {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result.clone()
}

// StartedAt returns when the task last entered the running state.
func (t *Task) StartedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.startedAt
}

// CompletedAt returns when the task reached a terminal state.
func (t *Task) CompletedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.completedAt
}

// MarkRunning moves a pending task to running. It fails for any other state,
// which guarantees a task is only ever claimed by one worker.
func (t *Task) MarkRunning() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status != StatusPending {
		return &InvalidTaskError{TaskID: t.ID, Reason: fmt.Sprintf("cannot start task in state %s", t.status)}
	}
	t.status = StatusRunning
	t.startedAt = time.Now()
	return nil
}

// MarkCompleted records a successful result. Only a running task can complete.
func (t *Task) MarkCompleted(result TaskResult) bool {
	result.Success = true
	return t.finish(StatusCompleted, &result, StatusRunning)
}

// MarkFailed records a failed result. Only a running task can fail.
func (t *Task) MarkFailed(result TaskResult) bool {
	result.Success = false
	return t.finish(StatusFailed, &result, StatusRunning)
}

// MarkCancelled moves a pending or running task to cancelled with the given reason.
// Returns false when the task was already terminal.
func (t *Task) MarkCancelled(reason string) bool {
	return t.finish(StatusCancelled, &TaskResult{Success: false, Error: reason}, StatusPending, StatusRunning)
}

func (t *Task) finish(to TaskStatus, result *TaskResult, from ...TaskStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	allowed := false
	for _, s := range from {
		if t.status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}

	now := time.Now()
	if result.Duration == 0 && !t.startedAt.IsZero() {
		result.Duration = now.Sub(t.startedAt)
	}
	t.status = to
	t.result = result
	t.completedAt = now
	return true
}

// ResetForRetry moves a failed, cancelled or interrupted (running) task back
// to pending and clears its result. Completed tasks are left alone.
func (t *Task) ResetForRetry() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.status {
	case StatusFailed, StatusCancelled, StatusRunning:
		t.status = StatusPending
		t.result = nil
		t.startedAt = time.Time{}
		t.completedAt = time.Time{}
		return true
	}
	return false
}

// restoreState sets the run state directly; used when loading checkpoints.
func (t *Task) restoreState(status TaskStatus, result *TaskResult, started, completed time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = status
	t.result = result
	t.startedAt = started
	t.completedAt = completed
}
