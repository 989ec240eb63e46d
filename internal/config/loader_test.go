package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name          string
		global        string
		project       string
		wantMax       int
		wantStrategy  string
		wantAttempts  int
		wantTest      string
		wantProtected int
		wantErr       bool
	}{
		{
			name:         "no config files returns defaults",
			wantMax:      4,
			wantStrategy: "sync",
			wantAttempts: 2,
			wantTest:     "pytest -v",
		},
		{
			name:         "global overrides one field",
			global:       `{"scheduler": {"max_concurrent_tasks": 8}}`,
			wantMax:      8,
			wantStrategy: "sync",
			wantAttempts: 2,
			wantTest:     "pytest -v",
		},
		{
			name:         "project wins over global",
			global:       `{"scheduler": {"max_concurrent_tasks": 8, "strategy": "retry"}}`,
			project:      `{"scheduler": {"max_concurrent_tasks": 2}, "recovery": {"test_command": "go test ./..."}}`,
			wantMax:      2,
			wantStrategy: "retry",
			wantAttempts: 2,
			wantTest:     "go test ./...",
		},
		{
			name:          "lists are replaced",
			global:        `{"risk": {"protected_paths": ["a/**", "b/**"]}}`,
			project:       `{"risk": {"protected_paths": ["migrations/**"]}}`,
			wantMax:       4,
			wantStrategy:  "sync",
			wantAttempts:  2,
			wantTest:      "pytest -v",
			wantProtected: 1,
		},
		{
			name:    "malformed project config",
			project: `{"scheduler": `,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			globalPath := filepath.Join(dir, "global", "config.json")
			projectPath := filepath.Join(dir, "project", "config.json")
			if tt.global != "" {
				writeFile(t, globalPath, tt.global)
			}
			if tt.project != "" {
				writeFile(t, projectPath, tt.project)
			}

			cfg, err := Load(globalPath, projectPath)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}

			if cfg.Scheduler.MaxConcurrentTasks != tt.wantMax {
				t.Errorf("max_concurrent_tasks = %d, want %d", cfg.Scheduler.MaxConcurrentTasks, tt.wantMax)
			}
			if cfg.Scheduler.Strategy != tt.wantStrategy {
				t.Errorf("strategy = %q, want %q", cfg.Scheduler.Strategy, tt.wantStrategy)
			}
			if cfg.Recovery.MaxAttempts != tt.wantAttempts {
				t.Errorf("max_attempts = %d, want %d", cfg.Recovery.MaxAttempts, tt.wantAttempts)
			}
			if cfg.Recovery.TestCommand != tt.wantTest {
				t.Errorf("test_command = %q, want %q", cfg.Recovery.TestCommand, tt.wantTest)
			}
			if len(cfg.Risk.ProtectedPaths) != tt.wantProtected {
				t.Errorf("protected_paths = %v", cfg.Risk.ProtectedPaths)
			}
			// Untouched sections keep their defaults
			if !cfg.Recovery.SnapshotBeforeRisky || cfg.Recovery.CommandTimeoutSeconds != 60 {
				t.Errorf("recovery defaults lost: %+v", cfg.Recovery)
			}
		})
	}
}

func TestLoad_EmptyPaths(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.Command != "claude" || cfg.Checkpoint.Path == "" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Scheduler.TaskTimeout() != 0 {
		t.Errorf("default task timeout = %s, want 0", cfg.Scheduler.TaskTimeout())
	}
	if got := cfg.Recovery.CommandTimeout().Seconds(); got != 60 {
		t.Errorf("command timeout = %vs, want 60s", got)
	}
}
