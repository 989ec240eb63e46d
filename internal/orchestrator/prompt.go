package orchestrator

import (
	"fmt"
	"strings"

	"github.com/aristath/autopilot/internal/plan"
)

// BuildPrompt renders the instructions sent to the agent for one task.
func BuildPrompt(task *plan.Task) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task %d (%s): %s\n", task.ID, task.ActionType, task.Description)
	fmt.Fprintf(&b, "\nRisk level: %s\n", task.RiskLevel)
	for _, reason := range task.RiskReasons {
		fmt.Fprintf(&b, "- %s\n", reason)
	}
	if task.BreakingChange {
		b.WriteString("This change may break existing callers; keep public interfaces compatible where possible.\n")
	}

	if len(task.AffectedFiles) > 0 {
		b.WriteString("\nFiles in scope:\n")
		for _, f := range task.AffectedFiles {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	if len(task.ValidationSteps) > 0 {
		b.WriteString("\nBefore finishing, make sure these checks pass:\n")
		for _, step := range task.ValidationSteps {
			fmt.Fprintf(&b, "- %s\n", step)
		}
	}

	b.WriteString("\nOnly make the changes this task describes.")
	return b.String()
}
