package plan

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// ProtectedPath is a compiled glob whose matching files raise a task's risk.
type ProtectedPath struct {
	Pattern string
	glob    glob.Glob
}

// CompileProtectedPaths compiles glob patterns such as "migrations/**" or "*.sql".
func CompileProtectedPaths(patterns []string) ([]ProtectedPath, error) {
	paths := make([]ProtectedPath, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, &ValidationError{Field: "protected_paths", Value: pattern, Reason: err.Error()}
		}
		paths = append(paths, ProtectedPath{Pattern: pattern, glob: g})
	}
	return paths, nil
}

// Match reports whether the file matches the pattern.
func (pp ProtectedPath) Match(file string) bool {
	return pp.glob != nil && pp.glob.Match(file)
}

// keywordRule raises risk when any phrase occurs in the lowercased description.
// A phrase must start at a word boundary so "all " does not match "install ".
type keywordRule struct {
	phrases  []string
	floor    RiskLevel // minimum level once triggered
	delta    int       // levels added once triggered
	breaking bool
	reason   string
}

var destructiveActions = map[ActionType]bool{
	ActionDelete: true,
	ActionRename: true,
}

var keywordRules = []keywordRule{
	{
		phrases: []string{"database"},
		delta:   1,
		reason:  "Database changes can affect persisted data",
	},
	{
		phrases: []string{"security"},
		delta:   1,
		reason:  "Security-sensitive change",
	},
	{
		phrases:  []string{"remove support", "breaking", "deprecat", "no longer support"},
		floor:    RiskHigh,
		breaking: true,
		reason:   "Breaking change: existing callers may stop working",
	},
	{
		phrases: []string{"all ", "every ", "entire ", "global"},
		delta:   1,
		reason:  "Wide scope change affecting many locations",
	},
}

// RiskAssessment is the outcome of one EvaluateRisk call.
type RiskAssessment struct {
	Level          RiskLevel
	Reasons        []string // reasons added by this evaluation
	BreakingChange bool
}

// EvaluateRisk scores a task from low to critical. Floors from destructive
// actions and breaking phrasing are applied first, then every additive
// trigger raises the level by one, capped at critical. Each triggered rule
// appends its reason to the task.
func (p *ExecutionPlan) EvaluateRisk(task *Task) (*RiskAssessment, error) {
	if !p.owns(task) {
		return nil, taskNotInPlan(task)
	}

	p.mu.RLock()
	threshold := p.dependencyThreshold
	protected := p.protected
	p.mu.RUnlock()

	floor := RiskLow
	delta := 0
	var reasons []string
	breaking := false

	if destructiveActions[task.ActionType] {
		floor = maxRisk(floor, RiskMedium)
		reasons = append(reasons, fmt.Sprintf("Destructive action: %s", task.ActionType))
	}

	desc := strings.ToLower(task.Description)
	for _, rule := range keywordRules {
		if !containsAnyPhrase(desc, rule.phrases) {
			continue
		}
		floor = maxRisk(floor, rule.floor)
		delta += rule.delta
		if rule.breaking {
			breaking = true
		}
		reasons = append(reasons, rule.reason)
	}

	if len(task.Dependencies) >= threshold {
		delta++
		reasons = append(reasons, fmt.Sprintf("High dependency count: %d (threshold %d)", len(task.Dependencies), threshold))
	}

	for _, pp := range protected {
		for _, file := range ExtractFiles(task.Description) {
			if pp.Match(file) {
				delta++
				reasons = append(reasons, fmt.Sprintf("Touches protected path %s (%s)", file, pp.Pattern))
			}
		}
	}

	level := floor.raise(delta)

	task.RiskLevel = level
	task.RiskReasons = append(task.RiskReasons, reasons...)
	if breaking {
		task.BreakingChange = true
	}

	return &RiskAssessment{Level: level, Reasons: reasons, BreakingChange: task.BreakingChange}, nil
}

func maxRisk(a, b RiskLevel) RiskLevel {
	if a > b {
		return a
	}
	return b
}
