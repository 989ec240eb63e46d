package recovery

import (
	"testing"

	"github.com/aristath/autopilot/internal/plan"
)

func newTask(t *testing.T, desc string, action plan.ActionType) *plan.Task {
	t.Helper()
	p := plan.NewExecutionPlan()
	id, err := p.AddTask(desc, action, nil)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	task, err := p.Task(id)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if err := p.Annotate(); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	return task
}

func strategies(actions []Action) []Strategy {
	out := make([]Strategy, len(actions))
	for i, a := range actions {
		out[i] = a.Strategy
	}
	return out
}

func TestBuildActions_Order(t *testing.T) {
	p := NewPlanner(Config{})

	tests := []struct {
		name   string
		desc   string
		action plan.ActionType
		errMsg string
		want   []Strategy
	}{
		{
			name:   "review task",
			desc:   "review the README",
			action: plan.ActionReview,
			// rollback plan, stash, skip, manual
			want: []Strategy{StrategyRollback, StrategyRollback, StrategySkip, StrategyManual},
		},
		{
			name:   "edit task with import error",
			desc:   "edit main.py",
			action: plan.ActionEdit,
			errMsg: "ModuleNotFoundError: No module named 'requests'",
			// rollback plan, hard reset, stash, install, skip, manual
			want: []Strategy{StrategyRollback, StrategyRollback, StrategyRollback, StrategyAlternative, StrategySkip, StrategyManual},
		},
		{
			name:   "add task with test and syntax errors",
			desc:   "add util.py",
			action: plan.ActionAdd,
			errMsg: "SyntaxError while running pytest",
			// rollback plan, clean, stash, retest, format, skip, manual
			want: []Strategy{StrategyRollback, StrategyRollback, StrategyRollback, StrategyRetry, StrategyAlternative, StrategySkip, StrategyManual},
		},
		{
			name:   "breaking change gets no skip",
			desc:   "remove the public API endpoint, a breaking change",
			action: plan.ActionGeneral,
			want:   []Strategy{StrategyRollback, StrategyRollback, StrategyManual},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := strategies(p.BuildActions(newTask(t, tt.desc, tt.action), tt.errMsg))
			if len(got) != len(tt.want) {
				t.Fatalf("strategies = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("strategies = %v, want %v", got, tt.want)
					break
				}
			}
		})
	}
}

func TestBuildActions_Details(t *testing.T) {
	p := NewPlanner(Config{InstallCommand: "go mod download"})
	task := newTask(t, "delete legacy.go", plan.ActionDelete)

	actions := p.BuildActions(task, "import cycle not allowed")

	rollback := actions[0]
	if !rollback.RequiresApproval || rollback.RiskLevel != plan.RiskHigh || rollback.EstimatedSuccessRate != 0.8 {
		t.Errorf("rollback action = %+v", rollback)
	}
	for _, c := range rollback.Commands {
		if !HasPlaceholder(c) && c != "git checkout HEAD -- legacy.go" {
			t.Errorf("unexpected replayed command %q", c)
		}
	}

	reset := actions[1]
	if reset.Commands[len(reset.Commands)-1] != "git reset --hard HEAD" || reset.EstimatedSuccessRate != 0.95 {
		t.Errorf("reset action = %+v", reset)
	}

	stash := actions[2]
	if stash.RequiresApproval || stash.EstimatedSuccessRate != 1.0 {
		t.Errorf("stash action = %+v", stash)
	}

	install := actions[3]
	if install.Strategy != StrategyAlternative || install.Commands[0] != "go mod download" || install.RequiresApproval {
		t.Errorf("install action = %+v", install)
	}
	if install.Metadata["error"] != "import cycle not allowed" || install.Metadata["keyword"] != "import" {
		t.Errorf("install metadata = %v", install.Metadata)
	}

	manual := actions[len(actions)-1]
	if manual.Strategy != StrategyManual || !manual.RequiresApproval || manual.EstimatedSuccessRate != 0.9 {
		t.Errorf("manual action = %+v", manual)
	}
	if rollback.Metadata != nil || manual.Metadata != nil {
		t.Errorf("only error-routed actions carry metadata: rollback %v, manual %v", rollback.Metadata, manual.Metadata)
	}
}

func TestBuildActions_NoRollbackPlan(t *testing.T) {
	p := NewPlanner(Config{})
	task := newTask(t, "review docs", plan.ActionReview)
	task.RollbackPlan = ""

	actions := p.BuildActions(task, "")
	if actions[0].Description != "Stash uncommitted changes so they can be restored later" {
		t.Errorf("first action = %q, want stash", actions[0].Description)
	}
}

func TestReplayableCommands(t *testing.T) {
	rollback := `Rollback plan for task 0 (add): add x.py
Remove the files created by this task:
rm -f x.py
  git checkout HEAD -- y.py
1. Discard uncommitted changes with git reset --hard HEAD.
npm test
gitk is not git
cp a b
mv b a
pytest -q`

	got := ReplayableCommands(rollback)
	want := []string{"rm -f x.py", "git checkout HEAD -- y.py", "npm test", "cp a b", "mv b a", "pytest -q"}
	if len(got) != len(want) {
		t.Fatalf("ReplayableCommands = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %q, want %q", i, got[i], want[i])
		}
	}
}
