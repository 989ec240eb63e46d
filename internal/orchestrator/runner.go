// Package orchestrator runs an execution plan end to end: it schedules the
// tasks, recovers the ones that fail, and re-enters the scheduler until
// nothing more can be recovered.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/autopilot/internal/backend"
	"github.com/aristath/autopilot/internal/events"
	apotel "github.com/aristath/autopilot/internal/otel"
	"github.com/aristath/autopilot/internal/persistence"
	"github.com/aristath/autopilot/internal/plan"
	"github.com/aristath/autopilot/internal/recovery"
	"github.com/aristath/autopilot/internal/scheduler"
	"github.com/aristath/autopilot/internal/telemetry"
)

// Sender is the bus sender of every runner message.
const Sender = "orchestrator"

// BackendFactory creates the agent backend that performs one task.
type BackendFactory func(task *plan.Task) (backend.Backend, error)

// Config configures a Runner.
type Config struct {
	Scheduler   scheduler.Config
	Recovery    *recovery.Planner // default: planner that rejects approvals
	Backends    BackendFactory
	BackendType string // recorded with agent sessions

	Bus            *events.Bus       // optional
	Store          persistence.Store // optional
	CheckpointPath string            // empty disables checkpoints

	MaxAttempts         int // recovery rounds per task; 0 disables recovery
	DryRun              bool
	SnapshotBeforeRisky bool
	Name                string

	Logger *slog.Logger
	Tracer trace.Tracer
}

// Summary describes a finished run.
type Summary struct {
	RunID            string
	Status           string
	Rounds           int
	Counts           map[plan.TaskStatus]int
	Skipped          []int // failed tasks accepted by a skip action
	Snapshots        []string
	RecoveryAttempts int
	Statistics       scheduler.Statistics
}

// Runner executes one plan. A Runner is single-use.
type Runner struct {
	cfg    Config
	plan   *plan.ExecutionPlan
	runID  string
	logger *slog.Logger

	mu      sync.Mutex
	state   runState
	skipped map[int]bool
}

// NewRunner prepares a run of p. agentState is the state restored from a
// checkpoint, or nil for a fresh run; its run_id is reused when present.
func NewRunner(p *plan.ExecutionPlan, agentState map[string]any, cfg Config) (*Runner, error) {
	if p == nil {
		return nil, errors.New("runner: plan is required")
	}
	if cfg.Backends == nil {
		return nil, errors.New("runner: backend factory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = nooptrace.NewTracerProvider().Tracer(apotel.ScopeName)
	}
	if cfg.Recovery == nil {
		cfg.Recovery = recovery.NewPlanner(recovery.Config{Logger: cfg.Logger})
	}
	if cfg.Scheduler.Logger == nil {
		cfg.Scheduler.Logger = cfg.Logger
	}

	state := runState(maps.Clone(agentState))
	if state == nil {
		state = make(runState)
	}
	if state.runID() == "" {
		state[stateRunID] = uuid.NewString()
	}

	return &Runner{
		cfg:     cfg,
		plan:    p,
		runID:   state.runID(),
		logger:  cfg.Logger.With("component", "orchestrator", "run_id", state.runID()),
		state:   state,
		skipped: make(map[int]bool),
	}, nil
}

// RunID returns the id shared by checkpoints, persistence and bus messages.
func (r *Runner) RunID() string {
	return r.runID
}

// AgentState returns a copy of the state that is written to checkpoints.
func (r *Runner) AgentState() map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Run executes the plan until every task is terminal and no failed task can
// be recovered further. A cancelled ctx stops the run; the partial summary is
// returned along with ctx's error.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	ctx, span := apotel.StartSpan(ctx, r.cfg.Tracer, "orchestrator.run", apotel.AttrRunID.String(r.runID))
	defer span.End()

	if err := r.annotate(); err != nil {
		return nil, fmt.Errorf("annotate plan: %w", err)
	}
	if _, err := r.plan.AnalyzeDependencies(); err != nil {
		return nil, fmt.Errorf("analyze dependencies: %w", err)
	}
	for _, task := range r.plan.Tasks() {
		if task.Status() == plan.StatusRunning && task.ResetForRetry() {
			r.logger.Info("interrupted task reset to pending", "task_id", task.ID)
		}
	}

	r.startRun(ctx)
	r.warnHighRisk()
	r.snapshot(ctx)
	r.checkpoint()

	sched := scheduler.New(r.execute, r.cfg.Scheduler)
	ids := r.scheduleInitial(sched)

	var runErr error
	for {
		if err := r.awaitRound(ctx, sched, ids); err != nil {
			runErr = err
			break
		}
		r.publishStatistics(sched.GetStatistics())

		reset := r.recoverFailed(ctx)

		r.mu.Lock()
		r.state.addRound()
		r.mu.Unlock()
		r.checkpoint()

		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		if len(reset) == 0 {
			break
		}
		r.logger.Info("re-entering scheduler", "tasks", reset)
		ids = r.submitAll(sched, reset)
	}

	if err := sched.Shutdown(context.WithoutCancel(ctx), false); err != nil {
		r.logger.Warn("scheduler shutdown failed", "error", err)
	}

	summary := r.finish(ctx, sched.GetStatistics(), runErr)
	span.SetAttributes(apotel.AttrStatus.String(summary.Status))
	return summary, runErr
}

// annotate fills risk, impact, rollback and validation data for tasks that
// have none yet. Tasks restored from a checkpoint keep their annotations.
func (r *Runner) annotate() error {
	for _, task := range r.plan.Tasks() {
		if task.RollbackPlan != "" {
			continue
		}
		if _, err := r.plan.EvaluateRisk(task); err != nil {
			return err
		}
		if _, err := r.plan.AssessImpact(task); err != nil {
			return err
		}
		r.plan.CreateRollbackPlan(task)
		r.plan.GenerateValidationSteps(task)
	}
	return nil
}

func (r *Runner) startRun(ctx context.Context) {
	if r.cfg.Store == nil {
		return
	}
	_, err := r.cfg.Store.CreateRun(ctx, persistence.Run{
		ID:             r.runID,
		Name:           r.cfg.Name,
		CheckpointPath: r.cfg.CheckpointPath,
	})
	if err != nil {
		r.logger.Warn("failed to record run", "error", err)
	}
}

func (r *Runner) warnHighRisk() {
	for _, task := range r.plan.Tasks() {
		if task.Status() == plan.StatusCompleted || task.RiskLevel < plan.RiskHigh {
			continue
		}
		r.publish(events.TypeWarning, events.PriorityHigh, events.EventTaskHighRisk,
			fmt.Sprintf("Task %d is %s risk: %s", task.ID, task.RiskLevel, strings.Join(task.RiskReasons, "; ")),
			map[string]any{"task_id": task.ID, "description": task.Description, "risk_level": task.RiskLevel.String()})
	}
}

// snapshot tags HEAD when unfinished high-risk work is about to run.
func (r *Runner) snapshot(ctx context.Context) {
	if !r.cfg.SnapshotBeforeRisky || r.cfg.DryRun {
		return
	}
	risky := false
	for _, task := range r.plan.Tasks() {
		if task.Status() != plan.StatusCompleted && task.RiskLevel >= plan.RiskHigh {
			risky = true
			break
		}
	}
	if !risky {
		return
	}

	ref := r.cfg.Recovery.CreateGitSnapshot(ctx, fmt.Sprintf("autopilot run %s", r.runID))
	if ref == "" {
		r.logger.Warn("continuing without a snapshot")
		return
	}

	r.mu.Lock()
	r.state.addSnapshot(ref)
	r.mu.Unlock()
	r.publish(events.TypeInfo, events.PriorityNormal, events.EventSnapshotCreated,
		fmt.Sprintf("Snapshot %s created", ref), map[string]any{"snapshot": ref})
}

func (r *Runner) scheduleInitial(sched *scheduler.TaskScheduler) []int {
	var ids []int
	for _, task := range r.plan.Tasks() {
		switch task.Status() {
		case plan.StatusCompleted:
			if err := sched.AdoptCompleted(task); err != nil {
				r.logger.Warn("failed to adopt completed task", "task_id", task.ID, "error", err)
			}
		case plan.StatusPending:
			if r.submit(sched, task) {
				ids = append(ids, task.ID)
			}
		}
	}
	return ids
}

func (r *Runner) submitAll(sched *scheduler.TaskScheduler, taskIDs []int) []int {
	var ids []int
	for _, id := range taskIDs {
		task, err := r.plan.Task(id)
		if err != nil {
			continue
		}
		if r.submit(sched, task) {
			ids = append(ids, id)
		}
	}
	return ids
}

// submit schedules a pending task. A task whose dependency already failed,
// or that the scheduler refuses, is cancelled and reported right away.
func (r *Runner) submit(sched *scheduler.TaskScheduler, task *plan.Task) bool {
	for _, dep := range task.Dependencies {
		depTask, err := r.plan.Task(dep)
		if err != nil {
			continue
		}
		switch depTask.Status() {
		case plan.StatusFailed, plan.StatusCancelled:
			if task.MarkCancelled(scheduler.SkippedDependencyFailed) {
				r.taskFinished(context.Background(), task)
			}
			return false
		}
	}

	if _, err := sched.ScheduleTask(task); err != nil {
		r.logger.Warn("task not scheduled", "task_id", task.ID, "error", err)
		if task.MarkCancelled(fmt.Sprintf("not scheduled: %v", err)) {
			r.taskFinished(context.Background(), task)
		}
		return false
	}
	return true
}

// awaitRound reports each task as it finishes and returns once the
// scheduler is idle.
func (r *Runner) awaitRound(ctx context.Context, sched *scheduler.TaskScheduler, ids []int) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := sched.WaitForTask(gctx, id, 0); err != nil {
				return err
			}
			if task, err := r.plan.Task(id); err == nil {
				r.taskFinished(ctx, task)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	_, err := sched.WaitForAll(ctx, 0)
	return err
}

// execute is the scheduler's task function: it hands the task to an agent.
func (r *Runner) execute(ctx context.Context, task *plan.Task) (any, error) {
	r.publish(events.TypeInfo, events.PriorityLow, events.EventTaskStarted,
		fmt.Sprintf("Task %d started: %s", task.ID, task.Description),
		map[string]any{"task_id": task.ID, "description": task.Description})

	b, err := r.cfg.Backends(task)
	if err != nil {
		return nil, scheduler.Permanent(fmt.Errorf("create backend: %w", err))
	}
	defer b.Close()

	prompt := BuildPrompt(task)
	r.saveMessage(ctx, task.ID, "user", prompt)

	resp, err := b.Send(ctx, backend.Message{Content: prompt, TaskID: task.ID})
	if sid := b.SessionID(); sid != "" && r.cfg.Store != nil {
		if serr := r.cfg.Store.SaveSession(context.WithoutCancel(ctx), r.runID, task.ID, sid, r.cfg.BackendType); serr != nil {
			r.logger.Warn("failed to save agent session", "task_id", task.ID, "error", serr)
		}
	}
	if err != nil {
		return nil, err
	}

	content := telemetry.Redact(resp.Content)
	r.saveMessage(ctx, task.ID, "assistant", content)
	if resp.Error != "" {
		return nil, errors.New(telemetry.Redact(resp.Error))
	}
	return content, nil
}

func (r *Runner) saveMessage(ctx context.Context, taskID int, role, content string) {
	if r.cfg.Store == nil {
		return
	}
	if err := r.cfg.Store.SaveMessage(context.WithoutCancel(ctx), r.runID, taskID, role, content); err != nil {
		r.logger.Warn("failed to save agent message", "task_id", taskID, "error", err)
	}
}

// taskFinished persists and broadcasts a terminal task.
func (r *Runner) taskFinished(ctx context.Context, task *plan.Task) {
	r.saveTask(ctx, task)

	payload := map[string]any{"task_id": task.ID, "status": string(task.Status())}
	result := task.Result()
	if result != nil {
		payload["duration_seconds"] = result.Duration.Seconds()
	}

	switch task.Status() {
	case plan.StatusCompleted:
		r.publish(events.TypeInfo, events.PriorityNormal, events.EventTaskCompleted,
			fmt.Sprintf("Task %d completed", task.ID), payload)
	case plan.StatusFailed:
		reason := ""
		if result != nil {
			reason = telemetry.Redact(result.Error)
			r.logger.Warn("task failed", "task_id", task.ID, "error", telemetry.Redact(result.Err(task.ID).Error()))
		}
		payload["error"] = reason
		r.publish(events.TypeError, events.PriorityHigh, events.EventTaskFailed,
			fmt.Sprintf("Task %d failed: %s", task.ID, reason), payload)
	case plan.StatusCancelled:
		reason := ""
		if result != nil {
			reason = result.Error
		}
		payload["reason"] = reason
		r.publish(events.TypeWarning, events.PriorityNormal, events.EventTaskCancelled,
			fmt.Sprintf("Task %d cancelled: %s", task.ID, reason), payload)
	}
}

func (r *Runner) saveTask(ctx context.Context, task *plan.Task) {
	if r.cfg.Store == nil {
		return
	}
	if err := r.cfg.Store.SaveTask(context.WithoutCancel(ctx), r.runID, task.Record()); err != nil {
		r.logger.Warn("failed to save task", "task_id", task.ID, "error", err)
	}
}

// recoverFailed runs one recovery attempt for every failed task, in id
// order, and resets the recovered tasks and their skipped dependents.
// It returns the ids that were reset.
func (r *Runner) recoverFailed(ctx context.Context) []int {
	var recovered []int
	for _, task := range r.plan.Tasks() {
		if ctx.Err() != nil {
			break
		}
		if task.Status() != plan.StatusFailed {
			continue
		}
		r.mu.Lock()
		skipped := r.skipped[task.ID]
		r.mu.Unlock()
		if skipped {
			continue
		}
		if r.recoverTask(ctx, task) {
			recovered = append(recovered, task.ID)
		}
	}
	if len(recovered) == 0 {
		return nil
	}
	return r.resetForRetry(recovered)
}

// recoverTask applies the task's recovery actions in priority order until
// one succeeds. It reports whether the task should run again.
func (r *Runner) recoverTask(ctx context.Context, task *plan.Task) bool {
	logger := r.logger.With("task_id", task.ID)

	r.mu.Lock()
	if r.state.attempts(task.ID) >= r.cfg.MaxAttempts {
		r.mu.Unlock()
		logger.Info("recovery attempts exhausted", "max_attempts", r.cfg.MaxAttempts)
		return false
	}
	attempt := r.state.addAttempt(task.ID)
	r.mu.Unlock()

	errMsg := ""
	if result := task.Result(); result != nil {
		errMsg = result.Error
	}
	actions := r.cfg.Recovery.BuildActions(task, errMsg)

	proposed := make([]string, 0, len(actions))
	for _, a := range actions {
		proposed = append(proposed, fmt.Sprintf("%s: %s", a.Strategy, a.Description))
	}
	r.publish(events.TypeSuggestion, events.PriorityNormal, events.EventRecoveryProposed,
		fmt.Sprintf("Recovery for task %d (attempt %d): %d actions", task.ID, attempt, len(actions)),
		map[string]any{"task_id": task.ID, "attempt": attempt, "actions": proposed})
	logger.Info("recovering task", "attempt", attempt, "actions", len(actions))

	for _, action := range actions {
		if ctx.Err() != nil {
			return false
		}

		switch action.Strategy {
		case recovery.StrategyManual, recovery.StrategyAbort:
			r.recordAttempt(ctx, attempt, action, &recovery.Result{})
			r.publish(events.TypeWarning, events.PriorityHigh, events.EventRecoveryApplied,
				fmt.Sprintf("Task %d needs manual intervention: %s", task.ID, action.Description),
				map[string]any{"task_id": task.ID, "strategy": string(action.Strategy)})
			return false
		}

		res := r.cfg.Recovery.Apply(ctx, action, r.cfg.DryRun)
		r.recordAttempt(ctx, attempt, action, res)
		r.reportAttempt(task.ID, action, res)

		if !res.Success {
			continue
		}
		if r.cfg.DryRun {
			// Nothing was changed, so running the task again would fail the same way
			return false
		}
		if action.Strategy == recovery.StrategySkip {
			r.mu.Lock()
			r.skipped[task.ID] = true
			r.mu.Unlock()
			logger.Info("failure accepted")
			return false
		}
		return true
	}
	return false
}

func (r *Runner) recordAttempt(ctx context.Context, attempt int, action recovery.Action, res *recovery.Result) {
	if r.cfg.Store == nil {
		return
	}
	errs := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		errs = append(errs, telemetry.Redact(e))
	}
	err := r.cfg.Store.RecordRecovery(context.WithoutCancel(ctx), persistence.RecoveryAttempt{
		RunID:       r.runID,
		TaskID:      action.TaskID,
		Attempt:     attempt,
		Strategy:    string(action.Strategy),
		Description: action.Description,
		Success:     res.Success,
		Rejected:    res.Rejected,
		Commands:    action.Commands,
		Errors:      errs,
	})
	if err != nil {
		r.logger.Warn("failed to record recovery attempt", "task_id", action.TaskID, "error", err)
	}
}

func (r *Runner) reportAttempt(taskID int, action recovery.Action, res *recovery.Result) {
	payload := map[string]any{
		"task_id":  taskID,
		"strategy": string(action.Strategy),
		"success":  res.Success,
		"commands": res.CommandsExecuted,
	}
	if kw, ok := action.Metadata["keyword"]; ok {
		payload["matched_keyword"] = kw
	}
	switch {
	case res.Success:
		r.publish(events.TypeInfo, events.PriorityNormal, events.EventRecoveryApplied,
			fmt.Sprintf("Task %d: %s succeeded", taskID, action.Description), payload)
	case res.Rejected:
		r.publish(events.TypeWarning, events.PriorityNormal, events.EventRecoveryApplied,
			fmt.Sprintf("Task %d: %s rejected", taskID, action.Description), payload)
	default:
		errs := make([]string, 0, len(res.Errors))
		for _, e := range res.Errors {
			errs = append(errs, telemetry.Redact(e))
		}
		payload["errors"] = errs
		r.publish(events.TypeError, events.PriorityNormal, events.EventRecoveryApplied,
			fmt.Sprintf("Task %d: %s failed", taskID, action.Description), payload)
	}
}

// resetForRetry moves the recovered tasks back to pending along with every
// task that was skipped because of one of them.
func (r *Runner) resetForRetry(recovered []int) []int {
	reset := make(map[int]bool, len(recovered))
	for _, id := range recovered {
		reset[id] = true
	}

	var ids []int
	// Dependencies always precede dependents, so one pass in id order
	// reaches every transitive dependent.
	for _, task := range r.plan.Tasks() {
		if !reset[task.ID] {
			if task.Status() != plan.StatusCancelled {
				continue
			}
			result := task.Result()
			if result == nil || result.Error != scheduler.SkippedDependencyFailed {
				continue
			}
			blocked := false
			for _, dep := range task.Dependencies {
				if reset[dep] {
					blocked = true
					break
				}
			}
			if !blocked {
				continue
			}
		}
		if task.ResetForRetry() {
			reset[task.ID] = true
			ids = append(ids, task.ID)
		}
	}
	return ids
}

func (r *Runner) publishStatistics(stats scheduler.Statistics) {
	r.publish(events.TypeMetric, events.PriorityLow, events.EventRunProgress,
		fmt.Sprintf("%d/%d tasks completed, %d failed, %d cancelled", stats.Completed, stats.Total, stats.Failed, stats.Cancelled),
		map[string]any{
			"total":          stats.Total,
			"pending":        stats.Pending,
			"running":        stats.Running,
			"completed":      stats.Completed,
			"failed":         stats.Failed,
			"cancelled":      stats.Cancelled,
			"peak_running":   stats.PeakRunning,
			"max_concurrent": stats.MaxConcurrent,
		})
}

func (r *Runner) checkpoint() {
	if r.cfg.CheckpointPath == "" {
		return
	}
	if err := r.plan.SaveCheckpoint(r.cfg.CheckpointPath, r.AgentState()); err != nil {
		r.logger.Warn("checkpoint failed", "path", r.cfg.CheckpointPath, "error", err)
	}
}

func (r *Runner) finish(ctx context.Context, stats scheduler.Statistics, runErr error) *Summary {
	for _, task := range r.plan.Tasks() {
		r.saveTask(ctx, task)
	}
	r.checkpoint()

	counts := r.plan.CountByStatus()
	status := persistence.RunSucceeded
	switch {
	case runErr != nil:
		status = persistence.RunAborted
	case counts[plan.StatusCompleted] != r.plan.Len():
		status = persistence.RunFailed
	}

	r.mu.Lock()
	summary := &Summary{
		RunID:            r.runID,
		Status:           status,
		Rounds:           r.state.completedRounds(),
		Counts:           counts,
		Snapshots:        r.state.snapshots(),
		RecoveryAttempts: r.state.totalAttempts(),
		Statistics:       stats,
	}
	for id := range r.skipped {
		summary.Skipped = append(summary.Skipped, id)
	}
	r.mu.Unlock()
	sort.Ints(summary.Skipped)

	if r.cfg.Store != nil {
		lastSnapshot := ""
		if n := len(summary.Snapshots); n > 0 {
			lastSnapshot = summary.Snapshots[n-1]
		}
		if err := r.cfg.Store.FinishRun(context.WithoutCancel(ctx), r.runID, status, lastSnapshot); err != nil {
			r.logger.Warn("failed to finish run record", "error", err)
		}
	}

	priority := events.PriorityNormal
	if status != persistence.RunSucceeded {
		priority = events.PriorityHigh
	}
	r.publish(events.TypeInfo, priority, events.EventRunFinished,
		fmt.Sprintf("Run %s: %d completed, %d failed, %d cancelled", status,
			counts[plan.StatusCompleted], counts[plan.StatusFailed], counts[plan.StatusCancelled]),
		map[string]any{
			"status":            status,
			"rounds":            summary.Rounds,
			"completed":         counts[plan.StatusCompleted],
			"failed":            counts[plan.StatusFailed],
			"cancelled":         counts[plan.StatusCancelled],
			"recovery_attempts": summary.RecoveryAttempts,
		})
	r.logger.Info("run finished", "status", status, "rounds", summary.Rounds,
		"completed", counts[plan.StatusCompleted], "failed", counts[plan.StatusFailed])
	return summary
}

func (r *Runner) publish(typ events.MessageType, priority events.Priority, event, summary string, payload map[string]any) {
	if r.cfg.Bus == nil {
		return
	}
	if payload == nil {
		payload = make(map[string]any)
	}
	payload["event"] = event
	payload["summary"] = summary
	payload["run_id"] = r.runID

	_, err := r.cfg.Bus.Publish(events.Message{
		Sender:   Sender,
		Receiver: events.Broadcast,
		Type:     typ,
		Priority: priority,
		Payload:  payload,
	})
	if err != nil {
		r.logger.Debug("bus publish failed", "event", event, "error", err)
	}
}
