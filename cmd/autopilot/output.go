package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/autopilot/internal/orchestrator"
	"github.com/aristath/autopilot/internal/persistence"
	"github.com/aristath/autopilot/internal/plan"
	"github.com/aristath/autopilot/internal/tui"
)

var (
	styleHeading = lipgloss.NewStyle().Bold(true).Underline(true)
	styleLabel   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
)

// taskReport is everything analyze shows for one task.
type taskReport struct {
	task   *plan.Task
	risk   *plan.RiskAssessment
	impact *plan.ImpactAssessment
}

func renderAnalysis(w io.Writer, analysis *plan.DependencyAnalysis, reports []taskReport) {
	fmt.Fprintln(w, styleHeading.Render("Dependency analysis"))
	fmt.Fprintf(w, "%s %d\n", styleLabel.Render("Tasks:"), analysis.TotalTasks)
	fmt.Fprintf(w, "%s %s\n", styleLabel.Render("Roots:"), joinInts(analysis.RootTasks))
	fmt.Fprintf(w, "%s %s\n", styleLabel.Render("Order:"), joinInts(analysis.Order))
	fmt.Fprintf(w, "%s %d\n", styleLabel.Render("Critical path:"), analysis.CriticalPathLength)
	fmt.Fprintf(w, "%s %d\n", styleLabel.Render("Parallelization:"), analysis.ParallelizationPotential)

	for _, r := range reports {
		t := r.task
		fmt.Fprintln(w)
		fmt.Fprintln(w, styleHeading.Render(fmt.Sprintf("Task %d: %s", t.ID, t.Description)))
		fmt.Fprintf(w, "%s %s\n", styleLabel.Render("Action:"), t.ActionType)
		if len(t.Dependencies) > 0 {
			fmt.Fprintf(w, "%s %s\n", styleLabel.Render("Depends on:"), joinInts(t.Dependencies))
		}

		fmt.Fprintf(w, "%s %s\n", styleLabel.Render("Risk:"), renderRisk(r.risk.Level))
		for _, reason := range t.RiskReasons {
			fmt.Fprintf(w, "  - %s\n", reason)
		}
		if r.risk.BreakingChange {
			fmt.Fprintln(w, styleWarning.Render("  Breaking change"))
		}

		fmt.Fprintf(w, "%s %s\n", styleLabel.Render("Impact:"), r.impact.EstimatedScope)
		if len(r.impact.AffectedFiles) > 0 {
			fmt.Fprintf(w, "  files: %s\n", strings.Join(r.impact.AffectedFiles, ", "))
		}
		if len(r.impact.AffectedModules) > 0 {
			fmt.Fprintf(w, "  modules: %s\n", strings.Join(r.impact.AffectedModules, ", "))
		}
		for _, dep := range r.impact.DependentTasks {
			fmt.Fprintf(w, "  dependent: task %d (%s)\n", dep.ID, dep.Description)
		}
		if r.impact.Warning != "" {
			fmt.Fprintf(w, "  %s\n", styleWarning.Render(r.impact.Warning))
		}

		fmt.Fprintln(w, styleLabel.Render("Rollback:"))
		for _, line := range strings.Split(t.RollbackPlan, "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}

		fmt.Fprintln(w, styleLabel.Render("Validation:"))
		for _, step := range t.ValidationSteps {
			fmt.Fprintf(w, "  [ ] %s\n", step)
		}
	}
}

func renderRisk(level plan.RiskLevel) string {
	name := level.String()
	return tui.RiskStyle(name).Render(name)
}

func printSummary(w io.Writer, s *orchestrator.Summary, checkpointPath string) {
	fmt.Fprintf(w, "Run %s %s\n", s.RunID, tui.StatusStyle(s.Status).Render(s.Status))
	fmt.Fprintf(w, "  completed %d, failed %d, cancelled %d, pending %d\n",
		s.Counts[plan.StatusCompleted], s.Counts[plan.StatusFailed],
		s.Counts[plan.StatusCancelled], s.Counts[plan.StatusPending])
	fmt.Fprintf(w, "  rounds %d, recovery attempts %d, peak concurrency %d\n",
		s.Rounds, s.RecoveryAttempts, s.Statistics.PeakRunning)
	if len(s.Skipped) > 0 {
		fmt.Fprintf(w, "  skipped after failure: %s\n", joinInts(s.Skipped))
	}
	for _, ref := range s.Snapshots {
		fmt.Fprintf(w, "  snapshot: %s\n", ref)
	}
	if checkpointPath != "" && s.Status != persistence.RunSucceeded {
		fmt.Fprintf(w, "  resume with: autopilot resume %s\n", checkpointPath)
	}
}

func joinInts(ids []int) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}
