// Package recovery proposes and applies remediation for failed tasks.
package recovery

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/aristath/autopilot/internal/gitops"
	apotel "github.com/aristath/autopilot/internal/otel"
	"github.com/aristath/autopilot/internal/plan"
	"github.com/aristath/autopilot/internal/shell"
)

// Strategy classifies a recovery action.
type Strategy string

const (
	StrategyRollback    Strategy = "rollback"
	StrategyRetry       Strategy = "retry"
	StrategyAlternative Strategy = "alternative"
	StrategySkip        Strategy = "skip"
	StrategyManual      Strategy = "manual"
	StrategyAbort       Strategy = "abort"
)

// Action is one proposed remediation step.
type Action struct {
	TaskID               int
	Strategy             Strategy
	Description          string
	Commands             []string
	RequiresApproval     bool
	RiskLevel            plan.RiskLevel
	EstimatedSuccessRate float64
	Metadata             map[string]any // error-routed actions carry "error" and "keyword"
}

// Default commands for the error-routed actions.
const (
	DefaultTestCommand    = "pytest -v"
	DefaultInstallCommand = "pip install -r requirements.txt"
	DefaultFormatCommand  = "black ."
)

// replayPrefixes are the rollback plan lines that are safe to run verbatim.
var replayPrefixes = []string{"git ", "rm ", "mv ", "cp ", "pytest ", "npm "}

// errorRoute proposes an action when the error message mentions any keyword.
type errorRoute struct {
	keywords []string
	build    func(p *Planner, taskID int) Action
}

var errorRoutes = []errorRoute{
	{
		keywords: []string{"test", "pytest"},
		build: func(p *Planner, taskID int) Action {
			return Action{
				TaskID:               taskID,
				Strategy:             StrategyRetry,
				Description:          "Re-run the tests verbosely to isolate the failure",
				Commands:             []string{p.cfg.TestCommand},
				RiskLevel:            plan.RiskLow,
				EstimatedSuccessRate: 0.3,
			}
		},
	},
	{
		keywords: []string{"import", "module"},
		build: func(p *Planner, taskID int) Action {
			return Action{
				TaskID:               taskID,
				Strategy:             StrategyAlternative,
				Description:          "Install missing dependencies",
				Commands:             []string{p.cfg.InstallCommand},
				RiskLevel:            plan.RiskLow,
				EstimatedSuccessRate: 0.6,
			}
		},
	},
	{
		keywords: []string{"syntax"},
		build: func(p *Planner, taskID int) Action {
			return Action{
				TaskID:               taskID,
				Strategy:             StrategyAlternative,
				Description:          "Auto-format the code to fix syntax issues",
				Commands:             []string{p.cfg.FormatCommand},
				RiskLevel:            plan.RiskLow,
				EstimatedSuccessRate: 0.4,
			}
		},
	},
}

// Config configures a Planner.
type Config struct {
	WorkDir        string        // directory commands run in
	CommandTimeout time.Duration // per-command bound, default shell.DefaultTimeout
	TestCommand    string
	InstallCommand string
	FormatCommand  string

	Approver Approver // nil rejects every action that needs approval
	Procs    *shell.ProcessManager
	Logger   *slog.Logger
	Metrics  *apotel.Metrics
	Tracer   trace.Tracer
}

// Planner builds and applies recovery actions.
type Planner struct {
	cfg    Config
	repo   *gitops.Repo
	logger *slog.Logger
}

// NewPlanner creates a planner, filling unset fields with defaults.
func NewPlanner(cfg Config) *Planner {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = shell.DefaultTimeout
	}
	if cfg.TestCommand == "" {
		cfg.TestCommand = DefaultTestCommand
	}
	if cfg.InstallCommand == "" {
		cfg.InstallCommand = DefaultInstallCommand
	}
	if cfg.FormatCommand == "" {
		cfg.FormatCommand = DefaultFormatCommand
	}
	if cfg.Approver == nil {
		cfg.Approver = StaticApprover(false)
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
	return &Planner{
		cfg:    cfg,
		repo:   gitops.New(cfg.WorkDir),
		logger: cfg.Logger.With("component", "recovery"),
	}
}

// BuildActions returns the recovery actions for a failed task in priority
// order. errMsg may be empty; when set it routes to error-specific actions.
// Manual intervention is always the last action.
func (p *Planner) BuildActions(task *plan.Task, errMsg string) []Action {
	var actions []Action

	if task.RollbackPlan != "" {
		actions = append(actions, Action{
			TaskID:               task.ID,
			Strategy:             StrategyRollback,
			Description:          "Execute the task's rollback plan",
			Commands:             ReplayableCommands(task.RollbackPlan),
			RequiresApproval:     true,
			RiskLevel:            plan.RiskHigh,
			EstimatedSuccessRate: 0.8,
		})
	}

	actions = append(actions, gitActions(task)...)

	if errMsg != "" {
		lower := strings.ToLower(errMsg)
		for _, route := range errorRoutes {
			for _, kw := range route.keywords {
				if strings.Contains(lower, kw) {
					action := route.build(p, task.ID)
					action.Metadata = map[string]any{"error": errMsg, "keyword": kw}
					actions = append(actions, action)
					break
				}
			}
		}
	}

	if task.RiskLevel <= plan.RiskMedium {
		actions = append(actions, Action{
			TaskID:               task.ID,
			Strategy:             StrategySkip,
			Description:          "Skip this task and continue with the rest of the plan",
			RiskLevel:            plan.RiskLow,
			EstimatedSuccessRate: 1.0,
		})
	}

	actions = append(actions, Action{
		TaskID:               task.ID,
		Strategy:             StrategyManual,
		Description:          fmt.Sprintf("Manual intervention required for task %d: %s", task.ID, task.Description),
		RequiresApproval:     true,
		RiskLevel:            task.RiskLevel,
		EstimatedSuccessRate: 0.9,
	})

	p.logger.Debug("recovery actions built", "task_id", task.ID, "count", len(actions))
	return actions
}

func gitActions(task *plan.Task) []Action {
	var actions []Action

	switch task.ActionType {
	case plan.ActionEdit, plan.ActionDelete:
		actions = append(actions, Action{
			TaskID:               task.ID,
			Strategy:             StrategyRollback,
			Description:          "Discard all uncommitted changes with git reset --hard",
			Commands:             []string{"git status", "git diff --stat", "git reset --hard HEAD"},
			RequiresApproval:     true,
			RiskLevel:            plan.RiskHigh,
			EstimatedSuccessRate: 0.95,
		})
	case plan.ActionAdd:
		actions = append(actions, Action{
			TaskID:               task.ID,
			Strategy:             StrategyRollback,
			Description:          "Remove untracked files with git clean",
			Commands:             []string{"git clean -n", "git clean -fd"},
			RequiresApproval:     true,
			RiskLevel:            plan.RiskMedium,
			EstimatedSuccessRate: 0.9,
		})
	}

	return append(actions, Action{
		TaskID:               task.ID,
		Strategy:             StrategyRollback,
		Description:          "Stash uncommitted changes so they can be restored later",
		Commands:             []string{fmt.Sprintf("git stash push --include-untracked -m 'autopilot: task %d'", task.ID)},
		RiskLevel:            plan.RiskLow,
		EstimatedSuccessRate: 1.0,
	})
}

// ReplayableCommands returns the rollback plan lines that begin with a
// recognized command prefix, in order.
func ReplayableCommands(rollbackPlan string) []string {
	var cmds []string
	for _, line := range strings.Split(rollbackPlan, "\n") {
		line = strings.TrimSpace(line)
		for _, prefix := range replayPrefixes {
			if strings.HasPrefix(line, prefix) {
				cmds = append(cmds, line)
				break
			}
		}
	}
	return cmds
}
