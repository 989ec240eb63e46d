package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deep", "config.json")

	cfg := DefaultConfig()
	cfg.Scheduler.Strategy = "async"
	cfg.Risk.ProtectedPaths = []string{"migrations/**"}
	cfg.Agent = AgentConfig{Type: "cli", Command: "aider", Args: []string{"--yes", "--message", "{prompt}"}}
	cfg.Telemetry.OTel.Enabled = true

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Scheduler.Strategy != "async" {
		t.Errorf("strategy = %q", loaded.Scheduler.Strategy)
	}
	if len(loaded.Agent.Args) != 3 || loaded.Agent.Args[2] != "{prompt}" {
		t.Errorf("agent args = %v", loaded.Agent.Args)
	}
	if len(loaded.Risk.ProtectedPaths) != 1 || !loaded.Telemetry.OTel.Enabled {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestSaveInvalidPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := Save(DefaultConfig(), blocker); err != nil {
		t.Fatal(err)
	}
	// A regular file cannot be used as a parent directory
	if err := Save(DefaultConfig(), filepath.Join(blocker, "config.json")); err == nil {
		t.Error("expected error saving under a file")
	}
}

func TestSaveOverwritesWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	for _, n := range []int{2, 6} {
		cfg := DefaultConfig()
		cfg.Scheduler.MaxConcurrentTasks = n
		if err := Save(cfg, path); err != nil {
			t.Fatalf("Save(%d): %v", n, err)
		}
	}

	loaded, err := Load("", path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Scheduler.MaxConcurrentTasks != 6 {
		t.Errorf("max_concurrent_tasks = %d, want 6", loaded.Scheduler.MaxConcurrentTasks)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want only config.json", len(entries))
	}
}
