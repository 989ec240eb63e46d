package plan

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is matching against the structured error types.
var (
	ErrInvalidTask   = errors.New("invalid task")
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskExecution = errors.New("task execution failed")
	ErrCheckpoint    = errors.New("checkpoint error")
	ErrValidation    = errors.New("validation error")
)

// InvalidTaskError reports a malformed task or a forward-reference violation.
type InvalidTaskError struct {
	TaskID int
	Reason string
}

func (e *InvalidTaskError) Error() string {
	return fmt.Sprintf("invalid task %d: %s", e.TaskID, e.Reason)
}

func (e *InvalidTaskError) Is(target error) bool { return target == ErrInvalidTask }

// TaskNotFoundError reports an unknown task id.
type TaskNotFoundError struct {
	TaskID int
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task %d not found", e.TaskID)
}

func (e *TaskNotFoundError) Is(target error) bool { return target == ErrTaskNotFound }

// TaskExecutionError wraps the runtime failure of a task.
type TaskExecutionError struct {
	TaskID int
	Err    error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %d failed: %v", e.TaskID, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

func (e *TaskExecutionError) Is(target error) bool { return target == ErrTaskExecution }

// CheckpointError reports a missing, unreadable or corrupt checkpoint.
type CheckpointError struct {
	Path string
	Err  error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("checkpoint %s: %v", e.Path, e.Err)
}

func (e *CheckpointError) Unwrap() error { return e.Err }

func (e *CheckpointError) Is(target error) bool { return target == ErrCheckpoint }

// ValidationError describes a rejected field value.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
