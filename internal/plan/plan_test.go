package plan

import (
	"errors"
	"testing"
)

func TestAddTask(t *testing.T) {
	tests := []struct {
		name        string
		description string
		actionType  ActionType
		deps        []int
		wantID      int
		wantType    ActionType
		wantErr     bool
	}{
		{name: "first task", description: "review code", actionType: ActionReview, wantID: 2, wantType: ActionReview},
		{name: "default type", description: "do something", wantID: 2, wantType: ActionGeneral},
		{name: "valid deps", description: "edit main.go", actionType: ActionEdit, deps: []int{0, 1}, wantID: 2, wantType: ActionEdit},
		{name: "self reference", description: "x", deps: []int{2}, wantErr: true},
		{name: "forward reference", description: "x", deps: []int{5}, wantErr: true},
		{name: "negative dep", description: "x", deps: []int{-1}, wantErr: true},
		{name: "empty description", description: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewExecutionPlan()
			mustAdd(t, p, "seed a", ActionGeneral)
			mustAdd(t, p, "seed b", ActionGeneral)

			id, err := p.AddTask(tt.description, tt.actionType, tt.deps)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrInvalidTask) {
					t.Errorf("expected ErrInvalidTask, got %v", err)
				}
				var invalid *InvalidTaskError
				if !errors.As(err, &invalid) {
					t.Errorf("expected *InvalidTaskError, got %T", err)
				}
				if p.Len() != 2 {
					t.Errorf("rejected task must not be added, len = %d", p.Len())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.wantID {
				t.Errorf("id = %d, want %d", id, tt.wantID)
			}
			task, err := p.Task(id)
			if err != nil {
				t.Fatalf("Task(%d): %v", id, err)
			}
			if task.ActionType != tt.wantType {
				t.Errorf("action type = %s, want %s", task.ActionType, tt.wantType)
			}
			if task.Status() != StatusPending {
				t.Errorf("status = %s, want pending", task.Status())
			}
			if task.RiskLevel != RiskLow {
				t.Errorf("risk = %s, want low", task.RiskLevel)
			}
		})
	}
}

func TestAddTaskDeduplicatesDependencies(t *testing.T) {
	p := NewExecutionPlan()
	mustAdd(t, p, "a", ActionGeneral)
	id, err := p.AddTask("b", ActionEdit, []int{0, 0})
	if err != nil {
		t.Fatal(err)
	}
	task, _ := p.Task(id)
	if len(task.Dependencies) != 1 {
		t.Errorf("dependencies = %v, want [0]", task.Dependencies)
	}
}

func TestTaskNotFound(t *testing.T) {
	p := NewExecutionPlan()
	_, err := p.Task(3)
	var nf *TaskNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *TaskNotFoundError, got %v", err)
	}
	if nf.TaskID != 3 {
		t.Errorf("TaskID = %d, want 3", nf.TaskID)
	}
}

func TestClearAndIDsNotReusedWithinPlan(t *testing.T) {
	p := NewExecutionPlan()
	mustAdd(t, p, "a", ActionGeneral)
	mustAdd(t, p, "b", ActionGeneral)
	if p.Len() != 2 {
		t.Fatalf("len = %d, want 2", p.Len())
	}
	p.Clear()
	if p.Len() != 0 {
		t.Errorf("len after clear = %d, want 0", p.Len())
	}
}

func TestResetFailed(t *testing.T) {
	p := NewExecutionPlan()
	a := taskAt(t, p, mustAdd(t, p, "a", ActionGeneral))
	b := taskAt(t, p, mustAdd(t, p, "b", ActionGeneral))
	c := taskAt(t, p, mustAdd(t, p, "c", ActionGeneral))

	a.MarkRunning()
	a.MarkCompleted(TaskResult{})
	b.MarkRunning()
	b.MarkFailed(TaskResult{Error: "boom"})
	c.MarkCancelled("skipped")

	reset := p.ResetFailed()
	if len(reset) != 2 || reset[0] != 1 || reset[1] != 2 {
		t.Errorf("reset = %v, want [1 2]", reset)
	}
	if a.Status() != StatusCompleted {
		t.Errorf("completed task changed to %s", a.Status())
	}
	if b.Status() != StatusPending || b.Result() != nil {
		t.Errorf("failed task not reset: %s %v", b.Status(), b.Result())
	}

	counts := p.CountByStatus()
	if counts[StatusPending] != 2 || counts[StatusCompleted] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestAnnotate(t *testing.T) {
	p := NewExecutionPlan()
	mustAdd(t, p, "delete legacy/old_api.py", ActionDelete)
	mustAdd(t, p, "review docs", ActionReview)

	if err := p.Annotate(); err != nil {
		t.Fatal(err)
	}
	for _, task := range p.Tasks() {
		if task.RollbackPlan == "" {
			t.Errorf("task %d has no rollback plan", task.ID)
		}
		if len(task.ValidationSteps) == 0 {
			t.Errorf("task %d has no validation steps", task.ID)
		}
		if task.ImpactScope == "" {
			t.Errorf("task %d has no impact scope", task.ID)
		}
	}
	del, _ := p.Task(0)
	if del.RiskLevel < RiskMedium {
		t.Errorf("delete risk = %s, want >= medium", del.RiskLevel)
	}
}

func mustAdd(t *testing.T, p *ExecutionPlan, desc string, action ActionType, deps ...int) int {
	t.Helper()
	id, err := p.AddTask(desc, action, deps)
	if err != nil {
		t.Fatalf("AddTask(%q): %v", desc, err)
	}
	return id
}

func taskAt(t *testing.T, p *ExecutionPlan, id int) *Task {
	t.Helper()
	task, err := p.Task(id)
	if err != nil {
		t.Fatalf("Task(%d): %v", id, err)
	}
	return task
}
