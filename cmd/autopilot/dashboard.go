package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/autopilot/internal/orchestrator"
	"github.com/aristath/autopilot/internal/tui"
)

// runWithTUI runs the plan behind the dashboard. The dashboard stays open
// after the run finishes until the operator quits; quitting early cancels
// the run.
func runWithTUI(ctx context.Context, a *app, runner *orchestrator.Runner, approver *tui.Approver) (*orchestrator.Summary, error) {
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	// The model subscribes to the bus on creation, before the first event
	model := tui.New(a.bus, approver)
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	type outcome struct {
		summary *orchestrator.Summary
		err     error
	}
	runDone := make(chan outcome, 1)
	go func() {
		summary, err := runner.Run(runCtx)
		runDone <- outcome{summary, err}
	}()

	select {
	case err := <-errChan:
		cancelRun()
		out := <-runDone
		if err != nil {
			return out.summary, fmt.Errorf("dashboard: %w", err)
		}
		return out.summary, out.err

	case <-ctx.Done():
		a.logger.Info("shutdown signal received, closing dashboard")
		if err := a.procs.KillAll(); err != nil {
			a.logger.Warn("killing subprocesses", "error", err)
		}
		p.Quit()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		select {
		case err := <-errChan:
			if err != nil {
				a.logger.Warn("dashboard exit", "error", err)
			}
		case <-shutdownCtx.Done():
			a.logger.Warn("dashboard shutdown timeout exceeded")
		}

		out := <-runDone
		return out.summary, out.err
	}
}
