package main

import (
	"github.com/spf13/cobra"

	"github.com/aristath/autopilot/internal/plan"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <taskfile>",
	Short: "Show risk, impact and rollback data for a task file",
	Long: `Load a task file and print its dependency analysis along with every task's
risk level, estimated impact, rollback plan and validation checklist. Nothing
is executed.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts, err := planOptions(cfg)
	if err != nil {
		return err
	}

	tf, err := plan.LoadTaskFile(args[0])
	if err != nil {
		return err
	}
	p, err := tf.Build(opts...)
	if err != nil {
		return err
	}

	analysis, err := p.AnalyzeDependencies()
	if err != nil {
		return err
	}

	reports := make([]taskReport, 0, p.Len())
	for _, task := range p.Tasks() {
		risk, err := p.EvaluateRisk(task)
		if err != nil {
			return err
		}
		impact, err := p.AssessImpact(task)
		if err != nil {
			return err
		}
		p.CreateRollbackPlan(task)
		p.GenerateValidationSteps(task)
		reports = append(reports, taskReport{task: task, risk: risk, impact: impact})
	}

	renderAnalysis(cmd.OutOrStdout(), analysis, reports)
	return nil
}
