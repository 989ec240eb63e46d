package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/autopilot/internal/backend"
	"github.com/aristath/autopilot/internal/config"
	"github.com/aristath/autopilot/internal/orchestrator"
	"github.com/aristath/autopilot/internal/persistence"
	"github.com/aristath/autopilot/internal/plan"
	"github.com/aristath/autopilot/internal/recovery"
	"github.com/aristath/autopilot/internal/tui"
)

// runFlags are the config overrides shared by run and resume. Zero values
// leave the configured setting alone.
type runFlags struct {
	concurrency int
	dryRun      bool
	autoApprove bool
	checkpoint  string
	useTUI      bool
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Maximum number of tasks running at once")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Propose recovery actions without running them")
	cmd.Flags().BoolVar(&f.autoApprove, "auto-approve", false, "Approve every recovery action without asking")
	cmd.Flags().StringVar(&f.checkpoint, "checkpoint", "", "Checkpoint file to write")
	cmd.Flags().BoolVar(&f.useTUI, "tui", false, "Show the live dashboard")
}

func (f *runFlags) apply(cfg *config.Config) {
	if f.concurrency != 0 {
		cfg.Scheduler.MaxConcurrentTasks = f.concurrency
	}
	if f.dryRun {
		cfg.Recovery.DryRun = true
	}
	if f.autoApprove {
		cfg.Recovery.AutoApprove = true
	}
	if f.checkpoint != "" {
		cfg.Checkpoint.Path = f.checkpoint
	}
	if f.useTUI {
		// Anything on stdout would tear the dashboard
		cfg.Telemetry.Quiet = true
	}
}

var (
	runOpts    runFlags
	resumeOpts runFlags
)

func init() {
	runOpts.bind(runCmd)
	resumeOpts.bind(resumeCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <taskfile>",
	Short: "Run a task file",
	Long: `Annotate every task in a YAML or JSON task file with risk, impact, rollback
and validation data, then execute it with the configured agent. Failed tasks
go through recovery and re-enter the scheduler.`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

var resumeCmd = &cobra.Command{
	Use:   "resume [checkpoint]",
	Short: "Resume a run from its checkpoint",
	Long: `Reload a checkpoint, reset failed and cancelled tasks to pending and continue.
Completed tasks are kept. Defaults to the configured checkpoint path.`,
	Args: cobra.MaximumNArgs(1),
	RunE: resumePlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := loadConfig(runOpts.apply)
	if err != nil {
		return err
	}
	opts, err := planOptions(cfg)
	if err != nil {
		return err
	}

	tf, err := plan.LoadTaskFile(path)
	if err != nil {
		return err
	}
	p, err := tf.Build(opts...)
	if err != nil {
		return err
	}

	name := tf.Name
	if name == "" {
		name = filepath.Base(path)
	}
	return executePlan(cmd, cfg, p, nil, name, runOpts.useTUI)
}

func resumePlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(resumeOpts.apply)
	if err != nil {
		return err
	}

	path := cfg.Checkpoint.Path
	if len(args) == 1 {
		path = args[0]
		if resumeOpts.checkpoint == "" {
			cfg.Checkpoint.Path = path
		}
	}

	opts, err := planOptions(cfg)
	if err != nil {
		return err
	}
	p, state, err := plan.LoadCheckpoint(path, opts...)
	if err != nil {
		return err
	}

	reset := p.ResetFailed()
	fmt.Fprintf(cmd.OutOrStdout(), "Resuming %d task(s) from %s, %d reset for retry\n", p.Len(), path, len(reset))
	return executePlan(cmd, cfg, p, state, "", resumeOpts.useTUI)
}

// executePlan builds the runtime around p and runs it to completion. A run
// that does not succeed is reported as an error so the exit code reflects it.
func executePlan(cmd *cobra.Command, cfg *config.Config, p *plan.ExecutionPlan, state map[string]any, name string, useTUI bool) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	defer a.watchShutdown(ctx)()

	var (
		base        recovery.Approver
		tuiApprover *tui.Approver
	)
	switch {
	case cfg.Recovery.AutoApprove:
		base = recovery.StaticApprover(true)
	case useTUI:
		tuiApprover = tui.NewApprover()
		base = tuiApprover
	default:
		base = recovery.TerminalApprover{Output: cmd.ErrOrStderr()}
	}

	approvalCtx, cancelApprovals := context.WithCancel(ctx)
	approvals := orchestrator.NewApprovalChannel(cfg.Scheduler.MaxConcurrentTasks, base)
	approvals.Start(approvalCtx)
	defer func() {
		cancelApprovals()
		approvals.Stop()
	}()

	runner, err := newRunner(a, p, state, approvals, name)
	if err != nil {
		return err
	}

	var summary *orchestrator.Summary
	if useTUI {
		summary, err = runWithTUI(ctx, a, runner, tuiApprover)
	} else {
		summary, err = runner.Run(ctx)
	}

	if summary != nil {
		printSummary(cmd.OutOrStdout(), summary, cfg.Checkpoint.Path)
	}
	if err != nil {
		return err
	}
	if summary.Status != persistence.RunSucceeded {
		return fmt.Errorf("run %s finished with status %s", summary.RunID, summary.Status)
	}
	return nil
}

func newRunner(a *app, p *plan.ExecutionPlan, state map[string]any, approver recovery.Approver, name string) (*orchestrator.Runner, error) {
	cfg := a.cfg

	workDir, err := agentWorkDir(cfg)
	if err != nil {
		return nil, err
	}

	planner := recovery.NewPlanner(recovery.Config{
		WorkDir:        workDir,
		CommandTimeout: cfg.Recovery.CommandTimeout(),
		TestCommand:    cfg.Recovery.TestCommand,
		InstallCommand: cfg.Recovery.InstallCommand,
		FormatCommand:  cfg.Recovery.FormatCommand,
		Approver:       approver,
		Procs:          a.procs,
		Logger:         a.logger,
		Metrics:        a.metrics,
		Tracer:         a.provider.Tracer,
	})

	schedCfg, err := orchestrator.SchedulerConfig(cfg.Scheduler, a.logger, a.metrics, a.provider.Tracer)
	if err != nil {
		return nil, err
	}

	agent := cfg.Agent
	factory := func(*plan.Task) (backend.Backend, error) {
		return backend.New(backend.Config{
			Type:    agent.Type,
			Command: agent.Command,
			Args:    agent.Args,
			WorkDir: workDir,
			Env:     agent.Env,
			Model:   agent.Model,
			Procs:   a.procs,
		})
	}

	return orchestrator.NewRunner(p, state, orchestrator.Config{
		Scheduler:           schedCfg,
		Recovery:            planner,
		Backends:            factory,
		BackendType:         agent.Type,
		Bus:                 a.bus,
		Store:               a.store,
		CheckpointPath:      cfg.Checkpoint.Path,
		MaxAttempts:         cfg.Recovery.MaxAttempts,
		DryRun:              cfg.Recovery.DryRun,
		SnapshotBeforeRisky: cfg.Recovery.SnapshotBeforeRisky,
		Name:                name,
		Logger:              a.logger,
		Tracer:              a.provider.Tracer,
	})
}
