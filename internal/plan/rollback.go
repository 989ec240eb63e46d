package plan

import (
	"fmt"
	"strings"
)

// rollbackGuides maps an action type to its primary rollback guidance.
// Lines that are bare shell commands may be replayed by recovery; angle
// bracket tokens mark values the operator must fill in.
var rollbackGuides = map[ActionType]func(files []string) []string{
	ActionAdd: func(files []string) []string {
		return []string{
			"Remove the files created by this task:",
			"rm -f " + filesOr(files, "<created-files>"),
			"Preview leftover untracked files with git clean -n, then remove them with git clean -fd.",
		}
	},
	ActionEdit: func(files []string) []string {
		return []string{
			"Restore the modified files from version control:",
			"git checkout HEAD -- " + filesOr(files, "<modified-files>"),
			"If the edit was already committed, revert that commit instead.",
		}
	},
	ActionDelete: func(files []string) []string {
		return []string{
			"CRITICAL: deleted files that were never committed cannot be recovered from version control.",
			"Restore committed files from version control:",
			"git checkout HEAD -- " + filesOr(files, "<deleted-files>"),
			"Restore uncommitted files from the most recent backup before retrying.",
		}
	},
	ActionRename: func(files []string) []string {
		move := "git mv <new-name> <original-name>"
		if len(files) >= 2 {
			move = fmt.Sprintf("git mv %s %s", files[1], files[0])
		}
		return []string{
			"Restore the original names of renamed files:",
			move,
			"Update references that were changed to use the new names.",
		}
	},
}

var generalRollbackSteps = []string{
	"1. Inspect the working tree with git status and git diff.",
	"2. Discard uncommitted changes with git reset --hard HEAD.",
	"3. Undo a committed change with git revert <commit-hash>.",
	"4. Run the test suite to confirm the rollback.",
}

var databaseRollbackSteps = []string{
	"1. Run the down migration for this change.",
	"2. Restore the database from the backup taken before the migration.",
	"3. Verify data integrity before resuming writes.",
}

// CreateRollbackPlan generates rollback guidance for the task and stores it on the task.
func (p *ExecutionPlan) CreateRollbackPlan(task *Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rollback plan for task %d (%s): %s\n", task.ID, task.ActionType, task.Description)

	files := task.AffectedFiles
	if len(files) == 0 {
		files = ExtractFiles(task.Description)
	}

	if guide, ok := rollbackGuides[task.ActionType]; ok {
		b.WriteString("\n")
		for _, line := range guide(files) {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString("\nGeneral recovery:\n")
	for _, line := range generalRollbackSteps {
		b.WriteString(line)
		b.WriteString("\n")
	}

	if containsPhrase(strings.ToLower(task.Description), "database") {
		b.WriteString("\nDatabase rollback:\n")
		for _, line := range databaseRollbackSteps {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	task.RollbackPlan = strings.TrimRight(b.String(), "\n")
	return task.RollbackPlan
}

func filesOr(files []string, placeholder string) string {
	if len(files) == 0 {
		return placeholder
	}
	return strings.Join(files, " ")
}
