package scheduler

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrTaskTimeout matches every *TaskTimeoutError.
	ErrTaskTimeout = errors.New("task wait timed out")
	// ErrSchedulerFull matches every *SchedulerFullError.
	ErrSchedulerFull = errors.New("scheduler full")
	// ErrSchedulerClosed is returned when scheduling after Shutdown.
	ErrSchedulerClosed = errors.New("scheduler closed")
)

// AllTasks is the TaskID reported by a TaskTimeoutError from WaitForAll.
const AllTasks = -1

// TaskTimeoutError reports that a wait exceeded its timeout.
type TaskTimeoutError struct {
	TaskID  int
	Timeout time.Duration
	Err     error
}

func (e *TaskTimeoutError) Error() string {
	if e.TaskID == AllTasks {
		return fmt.Sprintf("waiting for all tasks timed out after %s", e.Timeout)
	}
	return fmt.Sprintf("waiting for task %d timed out after %s", e.TaskID, e.Timeout)
}

func (e *TaskTimeoutError) Unwrap() error { return e.Err }

func (e *TaskTimeoutError) Is(target error) bool { return target == ErrTaskTimeout }

// SchedulerFullError reports that the queue capacity is exhausted.
type SchedulerFullError struct {
	Capacity int
}

func (e *SchedulerFullError) Error() string {
	return fmt.Sprintf("scheduler full: %d unfinished tasks already queued", e.Capacity)
}

func (e *SchedulerFullError) Is(target error) bool { return target == ErrSchedulerFull }
