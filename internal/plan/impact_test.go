package plan

import (
	"reflect"
	"strings"
	"testing"
)

func TestAssessImpact(t *testing.T) {
	tests := []struct {
		name        string
		description string
		action      ActionType
		wantScope   string
		wantFiles   []string
		wantWarning bool
	}{
		{name: "delete", description: "delete pkg/legacy.go", action: ActionDelete, wantScope: ScopeHigh, wantFiles: []string{"pkg/legacy.go"}, wantWarning: true},
		{name: "rename", description: "rename a.py to b.py", action: ActionRename, wantScope: ScopeHigh, wantFiles: []string{"a.py", "b.py"}, wantWarning: true},
		{name: "edit", description: "edit config.yaml and config.yaml again", action: ActionEdit, wantScope: ScopeMedium, wantFiles: []string{"config.yaml"}},
		{name: "review", description: "review the code, e.g. formatting", action: ActionReview, wantScope: ScopeLow, wantFiles: []string{}},
		{name: "unknown type", description: "migrate", action: ActionType("deploy"), wantScope: ScopeLow, wantFiles: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewExecutionPlan()
			task := taskAt(t, p, mustAdd(t, p, tt.description, tt.action))

			got, err := p.AssessImpact(task)
			if err != nil {
				t.Fatal(err)
			}
			if got.EstimatedScope != tt.wantScope || task.ImpactScope != tt.wantScope {
				t.Errorf("scope = %s, want %s", got.EstimatedScope, tt.wantScope)
			}
			if !reflect.DeepEqual(got.AffectedFiles, tt.wantFiles) {
				t.Errorf("files = %v, want %v", got.AffectedFiles, tt.wantFiles)
			}
			if (got.Warning != "") != tt.wantWarning {
				t.Errorf("warning = %q, want present=%v", got.Warning, tt.wantWarning)
			}
		})
	}
}

func TestAssessImpactDependents(t *testing.T) {
	p := NewExecutionPlan()
	root := taskAt(t, p, mustAdd(t, p, "delete models.py", ActionDelete))
	mustAdd(t, p, "update views", ActionEdit, 0)
	mustAdd(t, p, "unrelated", ActionReview)
	mustAdd(t, p, "update tests", ActionTest, 0, 1)

	got, err := p.AssessImpact(root)
	if err != nil {
		t.Fatal(err)
	}
	want := []DependentTask{{ID: 1, Description: "update views"}, {ID: 3, Description: "update tests"}}
	if !reflect.DeepEqual(got.DependentTasks, want) {
		t.Errorf("dependents = %v, want %v", got.DependentTasks, want)
	}
	if !strings.Contains(got.Warning, "2 dependent") {
		t.Errorf("warning = %q", got.Warning)
	}
}

func TestExtractModules(t *testing.T) {
	got := extractModules("refactor `pkg/auth` and UserService in user_repo.go, touching load_config")
	for _, want := range []string{"pkg/auth", "UserService", "load_config"} {
		found := false
		for _, m := range got {
			if m == want {
				found = true
			}
		}
		if !found {
			t.Errorf("modules %v missing %q", got, want)
		}
	}
	for _, m := range got {
		if m == "user_repo.go" {
			t.Errorf("file leaked into modules: %v", got)
		}
	}
}

func TestExtractFiles(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{text: "Edit handler.go to wrap errors with fmt.Errorf and call os.Exit", want: []string{"handler.go"}},
		{text: "port utils.py away from os.path", want: []string{"utils.py"}},
		{text: "update cmd/app/main.go and docs/README.md", want: []string{"cmd/app/main.go", "docs/README.md"}},
		{text: "bump deps in go.mod and package.json", want: []string{"go.mod", "package.json"}},
		{text: "call strings.Builder, e.g. in a loop", want: []string{}},
		{text: "release v1.2 notes", want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := ExtractFiles(tt.text); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ExtractFiles(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestDottedIdentifiersAreModules(t *testing.T) {
	got := extractModules("Edit handler.go to wrap errors with fmt.Errorf and call os.Exit")
	for _, want := range []string{"fmt.Errorf", "os.Exit"} {
		found := false
		for _, m := range got {
			if m == want {
				found = true
			}
		}
		if !found {
			t.Errorf("modules %v missing %q", got, want)
		}
	}
	for _, m := range got {
		if m == "handler.go" {
			t.Errorf("file leaked into modules: %v", got)
		}
	}
}
