package recovery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.opentelemetry.io/otel/metric"

	apotel "github.com/aristath/autopilot/internal/otel"
	"github.com/aristath/autopilot/internal/shell"
)

// placeholderPattern matches unresolved tokens such as <commit-hash>.
var placeholderPattern = regexp.MustCompile(`<[^<>\s]+>`)

// Result is the outcome of applying an action.
type Result struct {
	Success          bool
	Rejected         bool
	CommandsExecuted []string
	Outputs          []string
	Errors           []string
	Duration         time.Duration
}

// HasPlaceholder reports whether a command still contains a token the
// operator was meant to fill in.
func HasPlaceholder(command string) bool {
	return placeholderPattern.MatchString(command)
}

// Apply runs an action. In dry-run mode nothing is executed and the result
// is successful. Actions that require approval are rejected unless the
// approver agrees. Commands run in order; placeholder commands are skipped
// and the first failing command stops the sequence.
func (p *Planner) Apply(ctx context.Context, action Action, dryRun bool) *Result {
	start := time.Now()
	res := &Result{}

	ctx, span := apotel.StartSpan(ctx, p.cfg.Tracer, "recovery.apply",
		apotel.AttrTaskID.Int(action.TaskID),
		apotel.AttrStrategy.String(string(action.Strategy)),
	)
	defer func() {
		res.Duration = time.Since(start)
		outcome := "failed"
		switch {
		case res.Success:
			outcome = "succeeded"
		case res.Rejected:
			outcome = "rejected"
		}
		span.SetAttributes(apotel.AttrStatus.String(outcome))
		span.End()
		p.cfg.Metrics.RecoveryActions.Add(context.Background(), 1, metric.WithAttributes(
			apotel.AttrStrategy.String(string(action.Strategy)),
			apotel.AttrStatus.String(outcome),
		))
	}()

	logger := p.logger.With("task_id", action.TaskID, "strategy", action.Strategy)

	if dryRun {
		logger.Info("dry run, recovery action not executed", "commands", action.Commands)
		res.Success = true
		return res
	}

	if action.RequiresApproval {
		approved, err := p.cfg.Approver.Approve(ctx, newRequest(action))
		if err != nil {
			logger.Warn("approval failed", "error", err)
			res.Errors = append(res.Errors, fmt.Sprintf("approval failed, action rejected: %v", err))
			res.Rejected = true
			return res
		}
		if !approved {
			logger.Info("recovery action rejected")
			res.Errors = append(res.Errors, "action rejected by operator")
			res.Rejected = true
			return res
		}
	}

	success := true
	for _, command := range action.Commands {
		if HasPlaceholder(command) {
			logger.Warn("placeholder command skipped", "command", command)
			res.Errors = append(res.Errors, fmt.Sprintf("Placeholder command skipped: %s", command))
			success = false
			continue
		}

		logger.Info("running recovery command", "command", command)
		out, err := shell.Run(ctx, command, shell.Options{
			Dir:     p.cfg.WorkDir,
			Timeout: p.cfg.CommandTimeout,
			Procs:   p.cfg.Procs,
		})
		p.cfg.Metrics.RecoveryCommands.Add(context.Background(), 1)
		res.CommandsExecuted = append(res.CommandsExecuted, command)
		if out != nil {
			res.Outputs = append(res.Outputs, out.Output())
		}

		if err != nil {
			if errors.Is(err, shell.ErrTimeout) {
				res.Errors = append(res.Errors, fmt.Sprintf("command timed out after %s: %s", p.cfg.CommandTimeout, command))
			} else {
				res.Errors = append(res.Errors, fmt.Sprintf("command failed (exit %d): %s: %v", exitCodeOf(out), command, err))
			}
			logger.Warn("recovery command failed", "command", command, "error", err)
			success = false
			break
		}
	}

	res.Success = success
	return res
}

func exitCodeOf(r *shell.Result) int {
	if r == nil {
		return -1
	}
	return r.ExitCode
}
