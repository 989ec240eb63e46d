// Package plan models an ordered set of change tasks and derives dependency,
// risk, impact, rollback and validation metadata from them.
package plan

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultDependencyThreshold is the dependency count at which a task's risk is raised.
const DefaultDependencyThreshold = 3

// ExecutionPlan owns an append-only sequence of tasks. A task's id is its
// index in the sequence and is never reused; only Clear removes tasks.
type ExecutionPlan struct {
	mu                  sync.RWMutex
	tasks               []*Task
	dependencyThreshold int
	protected           []ProtectedPath
}

// Option configures an ExecutionPlan.
type Option func(*ExecutionPlan)

// WithDependencyThreshold sets how many dependencies raise a task's risk.
func WithDependencyThreshold(n int) Option {
	return func(p *ExecutionPlan) {
		if n > 0 {
			p.dependencyThreshold = n
		}
	}
}

// WithProtectedPaths marks file patterns whose modification raises risk.
func WithProtectedPaths(paths []ProtectedPath) Option {
	return func(p *ExecutionPlan) {
		p.protected = append(p.protected, paths...)
	}
}

// NewExecutionPlan creates an empty plan.
func NewExecutionPlan(opts ...Option) *ExecutionPlan {
	p := &ExecutionPlan{dependencyThreshold: DefaultDependencyThreshold}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddTask appends a task and returns its id. An empty action type means general.
// Every dependency must refer to an earlier task.
func (p *ExecutionPlan) AddTask(description string, actionType ActionType, dependencies []int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := len(p.tasks)

	if strings.TrimSpace(description) == "" {
		return -1, &InvalidTaskError{TaskID: id, Reason: "description is empty"}
	}
	if actionType == "" {
		actionType = ActionGeneral
	}

	deps, err := normalizeDependencies(id, dependencies)
	if err != nil {
		return -1, err
	}

	p.tasks = append(p.tasks, newTask(id, description, ActionType(strings.ToLower(string(actionType))), deps))
	return id, nil
}

// normalizeDependencies enforces the forward-reference rule and drops duplicates.
func normalizeDependencies(id int, dependencies []int) ([]int, error) {
	deps := make([]int, 0, len(dependencies))
	seen := make(map[int]bool, len(dependencies))
	for _, dep := range dependencies {
		if dep < 0 || dep >= id {
			return nil, &InvalidTaskError{
				TaskID: id,
				Reason: fmt.Sprintf("dependency %d must reference an earlier task (< %d)", dep, id),
			}
		}
		if seen[dep] {
			continue
		}
		seen[dep] = true
		deps = append(deps, dep)
	}
	return deps, nil
}

// Task returns the task with the given id.
func (p *ExecutionPlan) Task(id int) (*Task, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if id < 0 || id >= len(p.tasks) {
		return nil, &TaskNotFoundError{TaskID: id}
	}
	return p.tasks[id], nil
}

// Tasks returns the tasks in id order.
func (p *ExecutionPlan) Tasks() []*Task {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Task, len(p.tasks))
	copy(out, p.tasks)
	return out
}

// Len returns the number of tasks.
func (p *ExecutionPlan) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tasks)
}

// Clear removes every task.
func (p *ExecutionPlan) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = nil
}

// Annotate evaluates risk and impact and generates rollback and validation
// text for every task.
func (p *ExecutionPlan) Annotate() error {
	for _, task := range p.Tasks() {
		if _, err := p.EvaluateRisk(task); err != nil {
			return err
		}
		if _, err := p.AssessImpact(task); err != nil {
			return err
		}
		p.CreateRollbackPlan(task)
		p.GenerateValidationSteps(task)
	}
	return nil
}

// ResetFailed moves every failed or cancelled task back to pending and
// returns the ids that were reset.
func (p *ExecutionPlan) ResetFailed() []int {
	var reset []int
	for _, task := range p.Tasks() {
		switch task.Status() {
		case StatusFailed, StatusCancelled:
			if task.ResetForRetry() {
				reset = append(reset, task.ID)
			}
		}
	}
	return reset
}

// CountByStatus tallies tasks by their current status.
func (p *ExecutionPlan) CountByStatus() map[TaskStatus]int {
	counts := make(map[TaskStatus]int)
	for _, task := range p.Tasks() {
		counts[task.Status()]++
	}
	return counts
}

// owns reports whether the task belongs to this plan.
func (p *ExecutionPlan) owns(task *Task) bool {
	if task == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return task.ID >= 0 && task.ID < len(p.tasks) && p.tasks[task.ID] == task
}
