package config

import (
	"time"

	apotel "github.com/aristath/autopilot/internal/otel"
)

// SchedulerConfig bounds task execution.
type SchedulerConfig struct {
	MaxConcurrentTasks int         `json:"max_concurrent_tasks"`
	MaxQueuedTasks     int         `json:"max_queued_tasks"`     // 0 means unlimited
	TaskTimeoutSeconds int         `json:"task_timeout_seconds"` // 0 means no per-task bound
	Strategy           string      `json:"strategy"`             // "sync", "async" or "retry"
	Retry              RetryConfig `json:"retry"`
}

// RetryConfig tunes the retry strategy's exponential backoff.
type RetryConfig struct {
	MaxRetries        int `json:"max_retries"`
	InitialIntervalMS int `json:"initial_interval_ms"`
	MaxIntervalMS     int `json:"max_interval_ms"`
	MaxElapsedSeconds int `json:"max_elapsed_seconds"`
}

// RiskConfig adjusts risk scoring.
type RiskConfig struct {
	DependencyThreshold int      `json:"dependency_threshold"`
	ProtectedPaths      []string `json:"protected_paths,omitempty"` // glob patterns, '/' separated
}

// RecoveryConfig controls failure recovery.
type RecoveryConfig struct {
	CommandTimeoutSeconds int    `json:"command_timeout_seconds"`
	MaxAttempts           int    `json:"max_attempts"` // recovery rounds per task
	AutoApprove           bool   `json:"auto_approve"`
	DryRun                bool   `json:"dry_run"`
	TestCommand           string `json:"test_command"`
	InstallCommand        string `json:"install_command"`
	FormatCommand         string `json:"format_command"`
	SnapshotBeforeRisky   bool   `json:"snapshot_before_risky"`
}

// AgentConfig is the command that performs each task.
type AgentConfig struct {
	Type    string   `json:"type"` // "cli" or "claude"
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Model   string   `json:"model,omitempty"`
	WorkDir string   `json:"work_dir,omitempty"`
	Env     []string `json:"env,omitempty"`
}

// PersistenceConfig locates the run history database.
type PersistenceConfig struct {
	DBPath string `json:"db_path"`
}

// CheckpointConfig locates the checkpoint file.
type CheckpointConfig struct {
	Path string `json:"path"`
}

// TelemetryConfig configures logging and tracing.
type TelemetryConfig struct {
	LogLevel string        `json:"log_level"`
	Quiet    bool          `json:"quiet"`
	HomeDir  string        `json:"home_dir,omitempty"` // logs go to <home_dir>/logs; default ~/.autopilot
	OTel     apotel.Config `json:"otel"`
}

// Config is the top-level configuration.
type Config struct {
	Scheduler   SchedulerConfig   `json:"scheduler"`
	Risk        RiskConfig        `json:"risk"`
	Recovery    RecoveryConfig    `json:"recovery"`
	Agent       AgentConfig       `json:"agent"`
	Persistence PersistenceConfig `json:"persistence"`
	Checkpoint  CheckpointConfig  `json:"checkpoint"`
	Telemetry   TelemetryConfig   `json:"telemetry"`
}

// TaskTimeout returns the per-task bound, zero when disabled.
func (c SchedulerConfig) TaskTimeout() time.Duration {
	return time.Duration(c.TaskTimeoutSeconds) * time.Second
}

// CommandTimeout returns the per-command bound for recovery commands.
func (c RecoveryConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}
