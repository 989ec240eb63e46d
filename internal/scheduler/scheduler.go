// Package scheduler runs plan tasks under a concurrency cap in dependency order.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	apotel "github.com/aristath/autopilot/internal/otel"
	"github.com/aristath/autopilot/internal/plan"
)

// Result recorded for tasks cancelled because a dependency did not complete.
const SkippedDependencyFailed = "skipped: dependency failed"

// DefaultMaxConcurrent is used when Config.MaxConcurrent is not positive.
const DefaultMaxConcurrent = 4

// Config configures a TaskScheduler.
type Config struct {
	MaxConcurrent int           // concurrency cap, default DefaultMaxConcurrent
	MaxQueued     int           // unfinished tasks allowed at once; 0 means unlimited
	TaskTimeout   time.Duration // per-task execution bound; 0 means none
	Strategy      Strategy      // default SyncStrategy
	Locks         *ResourceLockManager
	Logger        *slog.Logger
	Metrics       *apotel.Metrics
	Tracer        trace.Tracer
}

// ScheduleOption adjusts a single ScheduleTask call.
type ScheduleOption func(*entry)

// WithDelay holds the task back for d before it becomes eligible.
func WithDelay(d time.Duration) ScheduleOption {
	return func(e *entry) {
		if d > 0 {
			e.readyAt = time.Now().Add(d)
		}
	}
}

// WithStrategy overrides the scheduler's strategy for one task.
func WithStrategy(s Strategy) ScheduleOption {
	return func(e *entry) {
		if s != nil {
			e.strategy = s
		}
	}
}

// WithFunc overrides the scheduler's task function for one task.
func WithFunc(fn Func) ScheduleOption {
	return func(e *entry) {
		if fn != nil {
			e.fn = fn
		}
	}
}

type entry struct {
	task            *plan.Task
	fn              Func
	strategy        Strategy
	readyAt         time.Time
	cancel          context.CancelFunc // set while running
	cancelRequested bool
	done            chan struct{} // closed once the task is terminal
	closed          bool
}

// Statistics is a point-in-time view of the scheduler.
type Statistics struct {
	Total         int
	Pending       int
	Running       int
	Completed     int
	Failed        int
	Cancelled     int
	PeakRunning   int
	MaxConcurrent int
}

// TaskScheduler executes tasks once all their dependencies have completed,
// never running more than MaxConcurrent at a time. A failing or cancelled
// task cancels all of its transitive dependents without running them.
type TaskScheduler struct {
	cfg    Config
	fn     Func
	logger *slog.Logger

	mu         sync.Mutex
	entries    map[int]*entry
	dependents map[int][]int
	closed     bool
	running    int
	peak       int

	sem    *semaphore.Weighted
	wake   chan struct{}
	ctx    context.Context
	stop   context.CancelFunc
	group  *errgroup.Group
	loopWG sync.WaitGroup
}

// New creates a scheduler that runs fn for each task and starts its dispatcher.
func New(fn Func, cfg Config) *TaskScheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Strategy == nil {
		cfg.Strategy = SyncStrategy{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = apotel.NoopMetrics()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = nooptrace.NewTracerProvider().Tracer(apotel.ScopeName)
	}

	ctx, stop := context.WithCancel(context.Background())
	s := &TaskScheduler{
		cfg:        cfg,
		fn:         fn,
		logger:     cfg.Logger.With("component", "scheduler"),
		entries:    make(map[int]*entry),
		dependents: make(map[int][]int),
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		wake:       make(chan struct{}, 1),
		ctx:        ctx,
		stop:       stop,
		group:      &errgroup.Group{},
	}

	s.loopWG.Add(1)
	go s.loop()
	return s
}

// ScheduleTask submits a pending task and returns its id. Every dependency
// must already be known to the scheduler; if one has already failed or been
// cancelled the task is cancelled immediately.
func (s *TaskScheduler) ScheduleTask(task *plan.Task, opts ...ScheduleOption) (int, error) {
	if task == nil {
		return -1, &plan.InvalidTaskError{TaskID: -1, Reason: "task is nil"}
	}
	if task.Status() != plan.StatusPending {
		return -1, &plan.InvalidTaskError{TaskID: task.ID, Reason: fmt.Sprintf("task is %s, not pending", task.Status())}
	}

	e := &entry{
		task:     task,
		fn:       s.fn,
		strategy: s.cfg.Strategy,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.fn == nil {
		return -1, &plan.InvalidTaskError{TaskID: task.ID, Reason: "no task function"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return -1, ErrSchedulerClosed
	}
	if existing, ok := s.entries[task.ID]; ok && !existing.closed {
		return -1, &plan.InvalidTaskError{TaskID: task.ID, Reason: "task already scheduled"}
	}
	for _, dep := range task.Dependencies {
		if _, ok := s.entries[dep]; !ok {
			return -1, &plan.InvalidTaskError{TaskID: task.ID, Reason: fmt.Sprintf("dependency %d is not scheduled", dep)}
		}
	}
	if s.cfg.MaxQueued > 0 && s.unfinishedLocked() >= s.cfg.MaxQueued {
		return -1, &SchedulerFullError{Capacity: s.cfg.MaxQueued}
	}

	_, rescheduled := s.entries[task.ID]
	s.entries[task.ID] = e
	if !rescheduled {
		for _, dep := range task.Dependencies {
			s.dependents[dep] = append(s.dependents[dep], task.ID)
		}
	}

	for _, dep := range task.Dependencies {
		switch s.entries[dep].task.Status() {
		case plan.StatusFailed, plan.StatusCancelled:
			if task.MarkCancelled(SkippedDependencyFailed) {
				s.finishLocked(e)
				s.cascadeLocked(task.ID)
			}
			s.logger.Debug("task skipped at schedule time", "task_id", task.ID, "dependency", dep)
			return task.ID, nil
		}
	}

	s.logger.Debug("task scheduled", "task_id", task.ID, "action_type", task.ActionType)
	s.signal()
	return task.ID, nil
}

// AdoptCompleted registers a task that already completed elsewhere, for
// instance in an earlier run, so its dependents can be scheduled.
func (s *TaskScheduler) AdoptCompleted(task *plan.Task) error {
	if task == nil || task.Status() != plan.StatusCompleted {
		id := -1
		if task != nil {
			id = task.ID
		}
		return &plan.InvalidTaskError{TaskID: id, Reason: "only completed tasks can be adopted"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSchedulerClosed
	}
	if _, ok := s.entries[task.ID]; ok {
		return &plan.InvalidTaskError{TaskID: task.ID, Reason: "task already scheduled"}
	}

	e := &entry{task: task, done: make(chan struct{})}
	s.entries[task.ID] = e
	for _, dep := range task.Dependencies {
		s.dependents[dep] = append(s.dependents[dep], task.ID)
	}
	s.finishLocked(e)
	return nil
}

// CancelTask cancels a pending task immediately, or requests cancellation of
// a running one. Returns false for unknown or already finished tasks.
func (s *TaskScheduler) CancelTask(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.closed {
		return false
	}

	switch e.task.Status() {
	case plan.StatusPending:
		if !e.task.MarkCancelled("cancelled") {
			return false
		}
		s.finishLocked(e)
		s.cascadeLocked(id)
		s.logger.Info("task cancelled", "task_id", id)
		return true
	case plan.StatusRunning:
		e.cancelRequested = true
		if e.cancel != nil {
			e.cancel()
		}
		s.logger.Info("cancellation requested", "task_id", id)
		return true
	default:
		return false
	}
}

// Poll returns the task's result without blocking. done is false while the
// task is pending or running.
func (s *TaskScheduler) Poll(id int) (result *plan.TaskResult, done bool, err error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()

	if !ok {
		return nil, false, &plan.TaskNotFoundError{TaskID: id}
	}
	select {
	case <-e.done:
		return e.task.Result(), true, nil
	default:
		return nil, false, nil
	}
}

// WaitForTask blocks until the task is terminal. A timeout of zero waits
// indefinitely (bounded only by ctx).
func (s *TaskScheduler) WaitForTask(ctx context.Context, id int, timeout time.Duration) (*plan.TaskResult, error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	s.mu.Unlock()

	if !ok {
		return nil, &plan.TaskNotFoundError{TaskID: id}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-e.done:
		return e.task.Result(), nil
	case <-expired:
		return nil, &TaskTimeoutError{TaskID: id, Timeout: timeout, Err: context.DeadlineExceeded}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitForAll blocks until every task known at call time is terminal and
// returns their results in id order. On timeout no results are returned.
func (s *TaskScheduler) WaitForAll(ctx context.Context, timeout time.Duration) ([]*plan.TaskResult, error) {
	s.mu.Lock()
	ids := make([]int, 0, len(s.entries))
	waits := make(map[int]*entry, len(s.entries))
	for id, e := range s.entries {
		ids = append(ids, id)
		waits[id] = e
	}
	s.mu.Unlock()
	sort.Ints(ids)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for _, id := range ids {
		select {
		case <-waits[id].done:
		case <-expired:
			return nil, &TaskTimeoutError{TaskID: AllTasks, Timeout: timeout, Err: context.DeadlineExceeded}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	results := make([]*plan.TaskResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, waits[id].task.Result())
	}
	return results, nil
}

// GetStatistics counts tasks by status.
func (s *TaskScheduler) GetStatistics() Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Statistics{
		Total:         len(s.entries),
		PeakRunning:   s.peak,
		MaxConcurrent: s.cfg.MaxConcurrent,
	}
	for _, e := range s.entries {
		switch e.task.Status() {
		case plan.StatusPending:
			stats.Pending++
		case plan.StatusRunning:
			stats.Running++
		case plan.StatusCompleted:
			stats.Completed++
		case plan.StatusFailed:
			stats.Failed++
		case plan.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// Shutdown stops accepting tasks. With waitForCompletion the remaining tasks
// are allowed to finish; otherwise pending tasks are cancelled and running
// ones are asked to stop. Shutdown then waits for running workers to return,
// bounded by ctx. If ctx ends first, everything is cancelled and ctx's error
// is returned; a worker that ignores cancellation keeps running in the
// background and its result is still recorded when it returns.
func (s *TaskScheduler) Shutdown(ctx context.Context, waitForCompletion bool) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	var err error
	if waitForCompletion {
		if _, waitErr := s.WaitForAll(ctx, 0); waitErr != nil {
			err = waitErr
			s.cancelAll("cancelled: scheduler shutdown")
		}
	} else {
		s.cancelAll("cancelled: scheduler shutdown")
	}

	// Running workers finish on their own once their context is cancelled
	s.stop()
	drained := make(chan error, 1)
	go func() {
		s.loopWG.Wait()
		drained <- s.group.Wait()
	}()

	select {
	case waitErr := <-drained:
		if waitErr != nil && err == nil {
			err = waitErr
		}
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

func (s *TaskScheduler) cancelAll(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if e.closed {
			continue
		}
		switch e.task.Status() {
		case plan.StatusPending:
			if e.task.MarkCancelled(reason) {
				s.finishLocked(e)
			}
		case plan.StatusRunning:
			e.cancelRequested = true
			if e.cancel != nil {
				e.cancel()
			}
			s.logger.Debug("cancelling running task", "task_id", id)
		}
	}
}

func (s *TaskScheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// loop dispatches eligible tasks whenever something changes or a delayed
// task becomes ready.
func (s *TaskScheduler) loop() {
	defer s.loopWG.Done()

	var timer *time.Timer
	for {
		var delayed <-chan time.Time
		if next := s.dispatch(); next > 0 {
			if timer == nil {
				timer = time.NewTimer(next)
			} else {
				timer.Reset(next)
			}
			delayed = timer.C
		}

		select {
		case <-s.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
		case <-delayed:
		}
	}
}

// dispatch starts every eligible task that fits under the concurrency cap
// and returns how long until the next delayed task becomes ready (0 if none).
func (s *TaskScheduler) dispatch() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.entries))
	for id, e := range s.entries {
		if !e.closed && e.task.Status() == plan.StatusPending {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	now := time.Now()
	var next time.Duration
	for _, id := range ids {
		e := s.entries[id]
		if wait := e.readyAt.Sub(now); wait > 0 {
			if next == 0 || wait < next {
				next = wait
			}
			continue
		}
		if !s.dependenciesCompletedLocked(e.task) {
			continue
		}

		var release func()
		if s.cfg.Locks != nil {
			var ok bool
			if release, ok = s.cfg.Locks.TryAcquire(e.task.AffectedFiles); !ok {
				continue
			}
		}
		if !s.sem.TryAcquire(1) {
			if release != nil {
				release()
			}
			break
		}
		if err := e.task.MarkRunning(); err != nil {
			s.sem.Release(1)
			if release != nil {
				release()
			}
			continue
		}

		var (
			ctx    context.Context
			cancel context.CancelFunc
		)
		if s.cfg.TaskTimeout > 0 {
			ctx, cancel = context.WithTimeout(s.ctx, s.cfg.TaskTimeout)
		} else {
			ctx, cancel = context.WithCancel(s.ctx)
		}
		e.cancel = cancel
		s.running++
		if s.running > s.peak {
			s.peak = s.running
		}

		s.group.Go(func() error {
			s.run(ctx, e, release)
			return nil
		})
	}
	return next
}

func (s *TaskScheduler) dependenciesCompletedLocked(task *plan.Task) bool {
	for _, dep := range task.Dependencies {
		d, ok := s.entries[dep]
		if !ok || d.task.Status() != plan.StatusCompleted {
			return false
		}
	}
	return true
}

// run executes one task on a worker goroutine.
func (s *TaskScheduler) run(ctx context.Context, e *entry, release func()) {
	task := e.task
	attrs := metric.WithAttributes(apotel.AttrActionType.String(string(task.ActionType)))
	s.cfg.Metrics.RunningTasks.Add(ctx, 1, attrs)

	ctx, span := apotel.StartSpan(ctx, s.cfg.Tracer, "scheduler.task",
		apotel.AttrTaskID.Int(task.ID),
		apotel.AttrActionType.String(string(task.ActionType)),
		apotel.AttrRiskLevel.String(task.RiskLevel.String()),
	)

	s.logger.Info("task started", "task_id", task.ID, "strategy", e.strategy.Name())
	start := time.Now()
	value, err := e.strategy.Execute(ctx, task, e.fn)
	duration := time.Since(start)
	deadlineHit := errors.Is(ctx.Err(), context.DeadlineExceeded)

	if release != nil {
		release()
	}
	e.cancel()

	s.mu.Lock()
	var status plan.TaskStatus
	switch {
	case err == nil:
		task.MarkCompleted(plan.TaskResult{Value: value, Duration: duration})
		status = plan.StatusCompleted
	case e.cancelRequested:
		task.MarkCancelled(fmt.Sprintf("cancelled: %v", err))
		status = plan.StatusCancelled
	case deadlineHit && s.cfg.TaskTimeout > 0:
		task.MarkFailed(plan.TaskResult{
			Error:    fmt.Sprintf("timed out after %s: %v", s.cfg.TaskTimeout, err),
			Duration: duration,
			Metadata: map[string]any{"timeout": true},
		})
		status = plan.StatusFailed
	default:
		task.MarkFailed(plan.TaskResult{Error: err.Error(), Duration: duration})
		status = plan.StatusFailed
	}
	s.finishLocked(e)
	if status != plan.StatusCompleted {
		s.cascadeLocked(task.ID)
	}
	s.running--
	s.mu.Unlock()

	s.sem.Release(1)
	s.signal()

	span.SetAttributes(apotel.AttrStatus.String(string(status)))
	span.End()

	// ctx may already be cancelled; metrics use a fresh one
	mctx := context.Background()
	s.cfg.Metrics.RunningTasks.Add(mctx, -1, attrs)
	s.cfg.Metrics.TaskDuration.Record(mctx, duration.Seconds(), attrs)
	s.cfg.Metrics.TasksFinished.Add(mctx, 1, metric.WithAttributes(
		apotel.AttrActionType.String(string(task.ActionType)),
		apotel.AttrStatus.String(string(status)),
	))

	if err != nil {
		s.logger.Warn("task finished", "task_id", task.ID, "status", status, "duration", duration, "error", err)
	} else {
		s.logger.Info("task finished", "task_id", task.ID, "status", status, "duration", duration)
	}
}

// cascadeLocked cancels every transitive dependent of id that has not started.
func (s *TaskScheduler) cascadeLocked(id int) {
	queue := append([]int(nil), s.dependents[id]...)
	for len(queue) > 0 {
		depID := queue[0]
		queue = queue[1:]

		e, ok := s.entries[depID]
		if !ok || e.closed {
			continue
		}
		if e.task.MarkCancelled(SkippedDependencyFailed) {
			s.finishLocked(e)
			s.logger.Info("task skipped", "task_id", depID, "failed_dependency", id)
			queue = append(queue, s.dependents[depID]...)
		}
	}
}

func (s *TaskScheduler) finishLocked(e *entry) {
	if e.closed {
		return
	}
	e.closed = true
	close(e.done)
}

func (s *TaskScheduler) unfinishedLocked() int {
	n := 0
	for _, e := range s.entries {
		if !e.closed {
			n++
		}
	}
	return n
}
