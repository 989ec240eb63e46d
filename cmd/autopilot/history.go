package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/autopilot/internal/config"
	"github.com/aristath/autopilot/internal/persistence"
	"github.com/aristath/autopilot/internal/recovery"
)

var (
	historyLimit     int
	historySnapshots bool
)

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to list (0 for all)")
	historyCmd.Flags().BoolVar(&historySnapshots, "snapshots", false, "List the git snapshot tags in the agent work directory")
}

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past runs or show one run in detail",
	Long: `Without arguments, list recent runs from the run history database. With a
run id, show that run's tasks and every recovery attempt made during it.
With --snapshots, list the git tags taken before high-risk tasks.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if historySnapshots {
		return listSnapshots(ctx, cmd, cfg)
	}

	store, err := persistence.NewSQLiteStore(ctx, cfg.Persistence.DBPath)
	if err != nil {
		return fmt.Errorf("opening run history: %w", err)
	}
	defer store.Close()

	if len(args) == 0 {
		return listRuns(ctx, cmd, store)
	}
	return showRun(ctx, cmd, store, args[0])
}

func listRuns(ctx context.Context, cmd *cobra.Command, store persistence.Store) error {
	runs, err := store.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, run := range runs {
		fmt.Fprintf(w, "%s  %-9s  %s  %s\n", run.ID, run.Status, run.StartedAt.Local().Format(time.DateTime), run.Name)
	}
	return nil
}

func listSnapshots(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	workDir, err := agentWorkDir(cfg)
	if err != nil {
		return err
	}
	tags, err := recovery.NewPlanner(recovery.Config{WorkDir: workDir}).Snapshots(ctx)
	if err != nil {
		return fmt.Errorf("listing snapshots in %s: %w", workDir, err)
	}

	w := cmd.OutOrStdout()
	if len(tags) == 0 {
		fmt.Fprintln(w, "No snapshots found.")
		return nil
	}
	for _, tag := range tags {
		fmt.Fprintln(w, tag)
	}
	return nil
}

func showRun(ctx context.Context, cmd *cobra.Command, store persistence.Store, runID string) error {
	run, err := store.GetRun(ctx, runID)
	if errors.Is(err, persistence.ErrNotFound) {
		return fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w, styleHeading.Render(fmt.Sprintf("Run %s", run.ID)))
	fmt.Fprintf(w, "%s %s\n", styleLabel.Render("Name:"), run.Name)
	fmt.Fprintf(w, "%s %s\n", styleLabel.Render("Status:"), run.Status)
	fmt.Fprintf(w, "%s %s\n", styleLabel.Render("Started:"), run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt != nil {
		fmt.Fprintf(w, "%s %s\n", styleLabel.Render("Finished:"), run.FinishedAt.Local().Format(time.DateTime))
	}
	if run.Snapshot != "" {
		fmt.Fprintf(w, "%s %s\n", styleLabel.Render("Snapshot:"), run.Snapshot)
	}

	tasks, err := store.ListTasks(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, styleHeading.Render("Tasks"))
	for _, t := range tasks {
		fmt.Fprintf(w, "%3d  %-9s  %-8s  %s\n", t.ID, t.Status, renderRisk(t.RiskLevel), t.Description)
		if t.Result != nil && t.Result.Error != "" {
			fmt.Fprintf(w, "     %s\n", styleWarning.Render(t.Result.Error))
		}
	}

	attempts, err := store.ListRecoveries(ctx, runID)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, styleHeading.Render("Recovery attempts"))
	for _, a := range attempts {
		outcome := "failed"
		switch {
		case a.Success:
			outcome = "succeeded"
		case a.Rejected:
			outcome = "rejected"
		}
		fmt.Fprintf(w, "task %d #%d  %-11s  %-9s  %s\n", a.TaskID, a.Attempt, a.Strategy, outcome, a.Description)
		for _, e := range a.Errors {
			fmt.Fprintf(w, "     %s\n", e)
		}
	}
	return nil
}
