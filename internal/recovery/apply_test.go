package recovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/autopilot/internal/plan"
)

func errorsContain(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(strings.ToLower(e), strings.ToLower(substr)) {
			return true
		}
	}
	return false
}

func TestApply(t *testing.T) {
	tests := []struct {
		name         string
		commands     []string
		approval     bool
		approver     Approver
		dryRun       bool
		wantSuccess  bool
		wantExecuted int
		wantError    string
	}{
		{name: "no commands", wantSuccess: true},
		{name: "all succeed", commands: []string{"true", "echo hello"}, wantSuccess: true, wantExecuted: 2},
		{name: "first failure halts", commands: []string{"true", "false", "echo never"}, wantExecuted: 2, wantError: "exit 1"},
		{name: "placeholder skipped", commands: []string{"git revert <commit-hash>"}, wantError: "Placeholder command skipped"},
		{name: "placeholder among real commands", commands: []string{"<fill-me-in>", "true"}, wantExecuted: 1, wantError: "Placeholder command skipped"},
		{name: "dry run", commands: []string{"false"}, dryRun: true, wantSuccess: true},
		{name: "dry run skips approval", commands: []string{"false"}, approval: true, approver: StaticApprover(false), dryRun: true, wantSuccess: true},
		{name: "approval denied", commands: []string{"true"}, approval: true, approver: StaticApprover(false), wantError: "rejected"},
		{name: "approval granted", commands: []string{"true"}, approval: true, approver: StaticApprover(true), wantSuccess: true, wantExecuted: 1},
		{
			name:     "approver error",
			commands: []string{"true"},
			approval: true,
			approver: ApproverFunc(func(context.Context, Request) (bool, error) {
				return true, errors.New("no terminal")
			}),
			wantError: "rejected",
		},
		{name: "nil approver rejects", commands: []string{"true"}, approval: true, wantError: "rejected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPlanner(Config{WorkDir: t.TempDir(), Approver: tt.approver})
			res := p.Apply(context.Background(), Action{
				Strategy:         StrategyRollback,
				Commands:         tt.commands,
				RequiresApproval: tt.approval,
			}, tt.dryRun)

			if res.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v (errors %v)", res.Success, tt.wantSuccess, res.Errors)
			}
			if len(res.CommandsExecuted) != tt.wantExecuted {
				t.Errorf("executed %v, want %d commands", res.CommandsExecuted, tt.wantExecuted)
			}
			if tt.wantError != "" && !errorsContain(res.Errors, tt.wantError) {
				t.Errorf("errors %v do not mention %q", res.Errors, tt.wantError)
			}
			if tt.wantError == "" && len(res.Errors) > 0 {
				t.Errorf("unexpected errors %v", res.Errors)
			}
		})
	}
}

func TestApply_RunsInWorkDir(t *testing.T) {
	dir := t.TempDir()
	p := NewPlanner(Config{WorkDir: dir})

	res := p.Apply(context.Background(), Action{Commands: []string{"touch marker", "echo done"}}, false)
	if !res.Success {
		t.Fatalf("apply failed: %v", res.Errors)
	}
	if _, err := os.Stat(filepath.Join(dir, "marker")); err != nil {
		t.Errorf("command did not run in work dir: %v", err)
	}
	if len(res.Outputs) != 2 || res.Outputs[1] != "done" {
		t.Errorf("outputs = %q", res.Outputs)
	}
}

func TestApply_Timeout(t *testing.T) {
	p := NewPlanner(Config{WorkDir: t.TempDir(), CommandTimeout: 50 * time.Millisecond})

	start := time.Now()
	res := p.Apply(context.Background(), Action{Commands: []string{"sleep 5", "echo never"}}, false)
	if res.Success {
		t.Error("timed out command should fail the action")
	}
	if len(res.CommandsExecuted) != 1 {
		t.Errorf("executed %v, want only the timed out command", res.CommandsExecuted)
	}
	if !errorsContain(res.Errors, "timed out") {
		t.Errorf("errors %v do not mention the timeout", res.Errors)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("timeout not enforced, took %s", elapsed)
	}
}

func TestApply_ApproverSeesAction(t *testing.T) {
	var seen atomic.Value
	approver := ApproverFunc(func(_ context.Context, req Request) (bool, error) {
		seen.Store(req)
		return false, nil
	})
	p := NewPlanner(Config{WorkDir: t.TempDir(), Approver: approver})

	action := Action{
		TaskID:           7,
		Strategy:         StrategyRollback,
		Description:      "reset",
		Commands:         []string{"git reset --hard HEAD"},
		RequiresApproval: true,
		RiskLevel:        plan.RiskHigh,
	}
	res := p.Apply(context.Background(), action, false)
	if !res.Rejected {
		t.Error("expected the result to be marked rejected")
	}

	req, ok := seen.Load().(Request)
	if !ok {
		t.Fatal("approver was not consulted")
	}
	if req.TaskID != 7 || req.RiskLevel != "high" || len(req.Commands) != 1 {
		t.Errorf("request = %+v", req)
	}
}

func TestHasPlaceholder(t *testing.T) {
	tests := []struct {
		command string
		want    bool
	}{
		{"git revert <commit-hash>", true},
		{"rm -f <created-files>", true},
		{"git reset --hard HEAD", false},
		{"sort < input.txt > output.txt", false},
		{"echo a<b", false},
	}
	for _, tt := range tests {
		if got := HasPlaceholder(tt.command); got != tt.want {
			t.Errorf("HasPlaceholder(%q) = %v, want %v", tt.command, got, tt.want)
		}
	}
}

func TestDescribeCommands(t *testing.T) {
	if got := describeCommands(nil); got != "No commands will be run." {
		t.Errorf("describeCommands(nil) = %q", got)
	}
	got := describeCommands([]string{"git status", "git reset --hard HEAD"})
	if !strings.Contains(got, "$ git status") || !strings.Contains(got, "$ git reset --hard HEAD") {
		t.Errorf("describeCommands = %q", got)
	}
}
