package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/aristath/autopilot/internal/config"
	"github.com/aristath/autopilot/internal/events"
	apotel "github.com/aristath/autopilot/internal/otel"
	"github.com/aristath/autopilot/internal/persistence"
	"github.com/aristath/autopilot/internal/plan"
	"github.com/aristath/autopilot/internal/shell"
	"github.com/aristath/autopilot/internal/telemetry"
)

// loadConfig reads --config when given, otherwise the global and project
// files, applies the flag overrides and validates the result.
func loadConfig(overrides ...func(*config.Config)) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load("", configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// agentWorkDir is where the agent, recovery commands and git snapshots run.
func agentWorkDir(cfg *config.Config) (string, error) {
	if cfg.Agent.WorkDir != "" {
		return cfg.Agent.WorkDir, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	return wd, nil
}

// planOptions turns the risk section into plan options.
func planOptions(cfg *config.Config) ([]plan.Option, error) {
	protected, err := plan.CompileProtectedPaths(cfg.Risk.ProtectedPaths)
	if err != nil {
		return nil, err
	}
	return []plan.Option{
		plan.WithDependencyThreshold(cfg.Risk.DependencyThreshold),
		plan.WithProtectedPaths(protected),
	}, nil
}

// app holds the long-lived components shared by run and resume.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	logFile  io.Closer
	provider *apotel.Provider
	metrics  *apotel.Metrics
	store    *persistence.SQLiteStore
	bus      *events.Bus
	procs    *shell.ProcessManager
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	homeDir := cfg.Telemetry.HomeDir
	if homeDir == "" {
		userHome, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		homeDir = filepath.Join(userHome, config.DirName)
	}

	logger, logFile, err := telemetry.NewLogger(homeDir, cfg.Telemetry.LogLevel, cfg.Telemetry.Quiet)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		logFile: logFile,
		bus:     events.NewBus(0),
		procs:   shell.NewProcessManager(),
	}

	a.provider, err = apotel.Init(ctx, cfg.Telemetry.OTel)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	a.metrics, err = apotel.NewMetrics(a.provider.Meter)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating metrics: %w", err)
	}

	a.store, err = persistence.NewSQLiteStore(ctx, cfg.Persistence.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening run history: %w", err)
	}

	return a, nil
}

// watchShutdown kills every tracked subprocess once ctx is cancelled. The
// returned func stops the watcher.
func (a *app) watchShutdown(ctx context.Context) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			a.logger.Info("shutdown signal received, cleaning up", "processes", a.procs.Count())
			if err := a.procs.KillAll(); err != nil {
				a.logger.Warn("killing subprocesses", "error", err)
			}
		case <-done:
		}
	}()
	return func() { close(done) }
}

// Close releases every component in reverse order of creation.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("closing run history", "error", err)
		}
	}
	if a.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.provider.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown", "error", err)
		}
		cancel()
	}
	a.bus.Close()
	if a.logFile != nil {
		a.logFile.Close()
	}
}
