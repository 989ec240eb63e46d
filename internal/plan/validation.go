package plan

import (
	"regexp"
	"strings"
)

// validationRule adds steps when its predicate holds for a task.
type validationRule struct {
	applies func(t *Task, desc string) bool
	steps   []string
}

var codeChangingActions = map[ActionType]bool{
	ActionEdit:   true,
	ActionAdd:    true,
	ActionRename: true,
	ActionDelete: true,
}

var apiPattern = regexp.MustCompile(`\b(api|apis|endpoint|endpoints|route|routes|rest|graphql|http handler)\b`)

var validationRules = []validationRule{
	{
		applies: func(*Task, string) bool { return true },
		steps: []string{
			"Run a syntax check on all modified files",
			"Review the changes with git diff",
		},
	},
	{
		applies: func(t *Task, _ string) bool { return codeChangingActions[t.ActionType] },
		steps: []string{
			"Run the linter on affected files",
			"Run the test suite",
		},
	},
	{
		applies: func(_ *Task, desc string) bool { return apiPattern.MatchString(desc) },
		steps: []string{
			"Verify the affected API endpoints respond",
			"Check API response formats and status codes",
		},
	},
	{
		applies: func(_ *Task, desc string) bool { return containsPhrase(desc, "database") },
		steps: []string{
			"Verify the database schema matches expectations",
			"Apply and roll back the migration on a scratch database",
			"Check data integrity after the migration",
		},
	},
	{
		applies: func(_ *Task, desc string) bool { return containsPhrase(desc, "security") },
		steps: []string{
			"Run a security scanner on the changed code",
			"Check the diff for hardcoded secrets or credentials",
		},
	},
	{
		applies: func(t *Task, _ string) bool { return t.ActionType == ActionDelete },
		steps: []string{
			"Search for remaining references and import usages of the deleted code",
			"Run the full test suite to catch broken dependents",
		},
	},
}

// GenerateValidationSteps builds the ordered checks for a task and stores them on the task.
func (p *ExecutionPlan) GenerateValidationSteps(task *Task) []string {
	desc := strings.ToLower(task.Description)

	steps := []string{}
	for _, rule := range validationRules {
		if rule.applies(task, desc) {
			steps = append(steps, rule.steps...)
		}
	}

	task.ValidationSteps = steps
	return steps
}
