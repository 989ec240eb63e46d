package config

import (
	apotel "github.com/aristath/autopilot/internal/otel"
	"github.com/aristath/autopilot/internal/recovery"
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			MaxConcurrentTasks: 4,
			Strategy:           "sync",
			Retry: RetryConfig{
				MaxRetries:        3,
				InitialIntervalMS: 100,
				MaxIntervalMS:     10_000,
				MaxElapsedSeconds: 120,
			},
		},
		Risk: RiskConfig{
			DependencyThreshold: 3,
		},
		Recovery: RecoveryConfig{
			CommandTimeoutSeconds: 60,
			MaxAttempts:           2,
			TestCommand:           recovery.DefaultTestCommand,
			InstallCommand:        recovery.DefaultInstallCommand,
			FormatCommand:         recovery.DefaultFormatCommand,
			SnapshotBeforeRisky:   true,
		},
		Agent: AgentConfig{
			Type:    "claude",
			Command: "claude",
		},
		Persistence: PersistenceConfig{
			DBPath: ".autopilot/autopilot.db",
		},
		Checkpoint: CheckpointConfig{
			Path: ".autopilot/checkpoint.json",
		},
		Telemetry: TelemetryConfig{
			LogLevel: "info",
			OTel: apotel.Config{
				Exporter:    "none",
				ServiceName: "autopilot",
				SampleRate:  1.0,
			},
		},
	}
}
