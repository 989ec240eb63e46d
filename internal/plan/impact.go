package plan

import (
	"fmt"
	"regexp"
	"strings"
)

// Impact scopes reported by AssessImpact.
const (
	ScopeLow    = "low"
	ScopeMedium = "medium"
	ScopeHigh   = "high"
)

var scopeByAction = map[ActionType]string{
	ActionDelete:  ScopeHigh,
	ActionRename:  ScopeHigh,
	ActionEdit:    ScopeMedium,
	ActionAdd:     ScopeLow,
	ActionReview:  ScopeLow,
	ActionTest:    ScopeLow,
	ActionGeneral: ScopeLow,
}

var (
	// path/to/name.ext, or a dotted identifier such as fmt.Errorf
	dottedPattern = regexp.MustCompile(`(?:[\w.-]+/)*[\w-]+(?:\.[A-Za-z_][\w]*)+\b`)

	notFiles = map[string]bool{"e.g": true, "i.e": true}

	// fileExtensions lists the extensions that make a dotted token a file.
	fileExtensions = map[string]bool{
		"go": true, "mod": true, "sum": true,
		"py": true, "pyi": true, "ipynb": true,
		"js": true, "jsx": true, "mjs": true, "cjs": true, "ts": true, "tsx": true,
		"rb": true, "rs": true, "java": true, "kt": true, "kts": true, "scala": true, "swift": true,
		"c": true, "h": true, "cc": true, "cpp": true, "hpp": true, "cs": true,
		"php": true, "lua": true, "pl": true, "r": true, "dart": true, "ex": true, "exs": true,
		"sh": true, "bash": true, "zsh": true, "ps1": true,
		"json": true, "yaml": true, "yml": true, "toml": true, "ini": true, "cfg": true, "conf": true, "env": true,
		"xml": true, "proto": true, "graphql": true, "sql": true, "csv": true, "lock": true,
		"md": true, "rst": true, "txt": true, "html": true, "css": true, "scss": true, "vue": true, "svelte": true,
		"tf": true, "hcl": true, "dockerfile": true, "gradle": true, "make": true, "mk": true,
		"pem": true, "crt": true, "db": true, "sqlite": true,
	}

	modulePatterns = []*regexp.Regexp{
		regexp.MustCompile("`([A-Za-z_][\\w./]*)`"),                   // `backticked`
		regexp.MustCompile(`\b([A-Z][a-z0-9]+(?:[A-Z][a-z0-9]*)+)\b`), // CamelCase
		regexp.MustCompile(`\b([a-z][a-z0-9]*(?:_[a-z0-9]+)+)\b`),     // snake_case
	}
)

// DependentTask identifies a task that directly depends on another.
type DependentTask struct {
	ID          int
	Description string
}

// ImpactAssessment describes how far a task's change may reach.
type ImpactAssessment struct {
	TaskID          int
	EstimatedScope  string
	DependentTasks  []DependentTask
	AffectedFiles   []string
	AffectedModules []string
	Warning         string // set only for high scope
}

// AssessImpact estimates a task's scope and extracts the files and modules
// its description refers to. The scope and files are recorded on the task.
func (p *ExecutionPlan) AssessImpact(task *Task) (*ImpactAssessment, error) {
	if !p.owns(task) {
		return nil, taskNotInPlan(task)
	}

	scope, ok := scopeByAction[task.ActionType]
	if !ok {
		scope = ScopeLow
	}

	assessment := &ImpactAssessment{
		TaskID:          task.ID,
		EstimatedScope:  scope,
		DependentTasks:  []DependentTask{},
		AffectedFiles:   ExtractFiles(task.Description),
		AffectedModules: extractModules(task.Description),
	}

	for _, other := range p.Tasks() {
		for _, dep := range other.Dependencies {
			if dep == task.ID {
				assessment.DependentTasks = append(assessment.DependentTasks, DependentTask{ID: other.ID, Description: other.Description})
				break
			}
		}
	}

	if scope == ScopeHigh {
		assessment.Warning = fmt.Sprintf("High impact: %s action may break %d dependent task(s) and any code referencing the affected files",
			task.ActionType, len(assessment.DependentTasks))
	}

	task.ImpactScope = scope
	task.AffectedFiles = assessment.AffectedFiles
	return assessment, nil
}

// ExtractFiles returns the file names in text, deduplicated in order of
// appearance. A token counts as a file only when its extension is a known
// source, config or document extension, so fmt.Errorf is not a file.
func ExtractFiles(text string) []string {
	files, _ := splitDotted(text)
	return files
}

// splitDotted sorts dotted tokens into file names and dotted identifiers.
func splitDotted(text string) (files, identifiers []string) {
	files = []string{}
	for _, m := range dottedPattern.FindAllString(text, -1) {
		if notFiles[strings.ToLower(m)] {
			continue
		}
		if isFileName(m) {
			files = append(files, m)
		} else {
			identifiers = append(identifiers, m)
		}
	}
	return dedupe(files), dedupe(identifiers)
}

func isFileName(token string) bool {
	ext := token[strings.LastIndex(token, ".")+1:]
	return fileExtensions[strings.ToLower(ext)]
}

func extractModules(text string) []string {
	fileList, found := splitDotted(text)
	files := make(map[string]bool, len(fileList))
	for _, f := range fileList {
		files[f] = true
	}

	for _, re := range modulePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			name := m[1]
			if files[name] || strings.HasSuffix(name, ".") {
				continue
			}
			found = append(found, name)
		}
	}
	return dedupe(found)
}

func dedupe(items []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}

func taskNotInPlan(task *Task) error {
	if task == nil {
		return &InvalidTaskError{TaskID: -1, Reason: "task is nil"}
	}
	return &TaskNotFoundError{TaskID: task.ID}
}
