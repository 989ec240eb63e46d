package plan

import (
	"errors"
	"strings"
	"testing"
)

func TestEvaluateRisk(t *testing.T) {
	tests := []struct {
		name         string
		description  string
		action       ActionType
		deps         int
		wantLevel    RiskLevel
		wantBreaking bool
		wantReason   string
	}{
		{name: "review is low", description: "review the README", action: ActionReview, wantLevel: RiskLow},
		{name: "delete is medium", description: "delete unused helper", action: ActionDelete, wantLevel: RiskMedium, wantReason: "Destructive"},
		{name: "rename is medium", description: "rename helper", action: ActionRename, wantLevel: RiskMedium, wantReason: "Destructive"},
		{name: "database raises", description: "update database indexes", action: ActionEdit, wantLevel: RiskMedium, wantReason: "Database"},
		{name: "security raises", description: "tighten security headers", action: ActionEdit, wantLevel: RiskMedium, wantReason: "Security"},
		{name: "breaking floors high", description: "drop breaking flag parsing", action: ActionEdit, wantLevel: RiskHigh, wantBreaking: true, wantReason: "Breaking"},
		{name: "deprecation phrasing", description: "Deprecate the v1 client", action: ActionEdit, wantLevel: RiskHigh, wantBreaking: true},
		{name: "no longer supports", description: "parser no longer supports tabs", action: ActionEdit, wantLevel: RiskHigh, wantBreaking: true},
		{name: "wide scope", description: "rename every handler", action: ActionEdit, wantLevel: RiskMedium, wantReason: "Wide scope"},
		{name: "install is not wide scope", description: "install dependencies", action: ActionGeneral, wantLevel: RiskLow},
		{name: "global", description: "change global logger", action: ActionEdit, wantLevel: RiskMedium},
		{name: "dependency threshold", description: "merge results", action: ActionGeneral, deps: 3, wantLevel: RiskMedium, wantReason: "dependency count"},
		{name: "delete breaking database is critical", description: "remove support for legacy database driver", action: ActionDelete, wantLevel: RiskCritical, wantBreaking: true},
		{name: "capped at critical", description: "breaking change to all database security settings", action: ActionDelete, deps: 3, wantLevel: RiskCritical, wantBreaking: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewExecutionPlan()
			var deps []int
			for i := 0; i < tt.deps; i++ {
				deps = append(deps, mustAdd(t, p, "setup", ActionGeneral))
			}
			task := taskAt(t, p, mustAdd(t, p, tt.description, tt.action, deps...))

			got, err := p.EvaluateRisk(task)
			if err != nil {
				t.Fatalf("EvaluateRisk: %v", err)
			}
			if got.Level != tt.wantLevel || task.RiskLevel != tt.wantLevel {
				t.Errorf("level = %s (task %s), want %s; reasons %v", got.Level, task.RiskLevel, tt.wantLevel, task.RiskReasons)
			}
			if task.BreakingChange != tt.wantBreaking {
				t.Errorf("BreakingChange = %v, want %v", task.BreakingChange, tt.wantBreaking)
			}
			if tt.wantReason != "" && !anyContains(task.RiskReasons, tt.wantReason) {
				t.Errorf("reasons %v missing %q", task.RiskReasons, tt.wantReason)
			}
			if tt.wantLevel == RiskLow && len(task.RiskReasons) != 0 {
				t.Errorf("low risk task has reasons %v", task.RiskReasons)
			}
		})
	}
}

func TestEvaluateRiskReasonsAccumulate(t *testing.T) {
	p := NewExecutionPlan()
	task := taskAt(t, p, mustAdd(t, p, "delete old files", ActionDelete))

	p.EvaluateRisk(task)
	first := len(task.RiskReasons)
	p.EvaluateRisk(task)

	if len(task.RiskReasons) != 2*first {
		t.Errorf("reasons = %d after two evaluations, want %d", len(task.RiskReasons), 2*first)
	}
	if task.RiskLevel != RiskMedium {
		t.Errorf("level must be recomputed, got %s", task.RiskLevel)
	}
}

func TestEvaluateRiskConfiguredThreshold(t *testing.T) {
	p := NewExecutionPlan(WithDependencyThreshold(1))
	mustAdd(t, p, "a", ActionGeneral)
	task := taskAt(t, p, mustAdd(t, p, "b", ActionGeneral, 0))

	got, _ := p.EvaluateRisk(task)
	if got.Level != RiskMedium {
		t.Errorf("level = %s, want medium with threshold 1", got.Level)
	}
}

func TestEvaluateRiskProtectedPaths(t *testing.T) {
	paths, err := CompileProtectedPaths([]string{"migrations/*.sql", "**.pem"})
	if err != nil {
		t.Fatal(err)
	}
	p := NewExecutionPlan(WithProtectedPaths(paths))
	task := taskAt(t, p, mustAdd(t, p, "edit migrations/001_init.sql", ActionEdit))

	got, _ := p.EvaluateRisk(task)
	if got.Level != RiskMedium {
		t.Errorf("level = %s, want medium", got.Level)
	}
	if !anyContains(task.RiskReasons, "protected path") {
		t.Errorf("reasons %v missing protected path", task.RiskReasons)
	}

	other := taskAt(t, p, mustAdd(t, p, "edit cmd/main.go", ActionEdit))
	got, _ = p.EvaluateRisk(other)
	if got.Level != RiskLow {
		t.Errorf("unprotected file level = %s, want low", got.Level)
	}
}

func TestCompileProtectedPathsInvalid(t *testing.T) {
	_, err := CompileProtectedPaths([]string{"[unterminated"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestEvaluateRiskForeignTask(t *testing.T) {
	p := NewExecutionPlan()
	other := NewExecutionPlan()
	task := taskAt(t, other, mustAdd(t, other, "x", ActionGeneral))

	if _, err := p.EvaluateRisk(task); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound, got %v", err)
	}
}

func anyContains(items []string, substr string) bool {
	for _, item := range items {
		if strings.Contains(strings.ToLower(item), strings.ToLower(substr)) {
			return true
		}
	}
	return false
}
