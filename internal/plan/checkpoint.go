package plan

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CheckpointStateKeys lists the agent_state keys that survive a checkpoint.
// Every other key is dropped on save.
var CheckpointStateKeys = []string{
	"total_recovery_attempts",
	"recovery_attempts",
	"run_id",
	"snapshots",
	"completed_rounds",
}

// TaskRecord is the serialized form of a task.
type TaskRecord struct {
	ID              int           `json:"id"`
	Description     string        `json:"description"`
	ActionType      ActionType    `json:"action_type"`
	Dependencies    []int         `json:"dependencies"`
	Status          TaskStatus    `json:"status"`
	RiskLevel       RiskLevel     `json:"risk_level"`
	RiskReasons     []string      `json:"risk_reasons"`
	ImpactScope     string        `json:"impact_scope"`
	BreakingChange  bool          `json:"breaking_change"`
	RollbackPlan    string        `json:"rollback_plan"`
	ValidationSteps []string      `json:"validation_steps"`
	AffectedFiles   []string      `json:"affected_files,omitempty"`
	Result          *ResultRecord `json:"result"`
	CreatedAt       time.Time     `json:"created_at"`
	StartedAt       *time.Time    `json:"started_at"`
	CompletedAt     *time.Time    `json:"completed_at"`
}

// ResultRecord is the serialized form of a task result. Duration is in seconds.
type ResultRecord struct {
	Success  bool           `json:"success"`
	Value    any            `json:"value"`
	Error    string         `json:"error,omitempty"`
	Duration float64        `json:"duration"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type checkpointDocument struct {
	Tasks      []TaskRecord   `json:"tasks"`
	AgentState map[string]any `json:"agent_state"`
}

// Record serializes every field of the task.
func (t *Task) Record() TaskRecord {
	t.mu.RLock()
	status, result, started, completed := t.status, t.result.clone(), t.startedAt, t.completedAt
	t.mu.RUnlock()

	rec := TaskRecord{
		ID:              t.ID,
		Description:     t.Description,
		ActionType:      t.ActionType,
		Dependencies:    append([]int{}, t.Dependencies...),
		Status:          status,
		RiskLevel:       t.RiskLevel,
		RiskReasons:     append([]string{}, t.RiskReasons...),
		ImpactScope:     t.ImpactScope,
		BreakingChange:  t.BreakingChange,
		RollbackPlan:    t.RollbackPlan,
		ValidationSteps: append([]string{}, t.ValidationSteps...),
		AffectedFiles:   t.AffectedFiles,
		CreatedAt:       t.CreatedAt,
	}
	if !started.IsZero() {
		rec.StartedAt = &started
	}
	if !completed.IsZero() {
		rec.CompletedAt = &completed
	}
	if result != nil {
		rec.Result = &ResultRecord{
			Success:  result.Success,
			Value:    result.Value,
			Error:    result.Error,
			Duration: result.Duration.Seconds(),
			Metadata: result.Metadata,
		}
	}
	return rec
}

// Records serializes every task in id order.
func (p *ExecutionPlan) Records() []TaskRecord {
	tasks := p.Tasks()
	out := make([]TaskRecord, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.Record())
	}
	return out
}

// MarshalJSON encodes the plan as {"tasks": [...]}.
func (p *ExecutionPlan) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Tasks []TaskRecord `json:"tasks"`
	}{Tasks: p.Records()})
}

// SaveCheckpoint atomically writes the plan and the allowlisted subset of
// agentState to path. A nil agentState is saved as an empty map.
func (p *ExecutionPlan) SaveCheckpoint(path string, agentState map[string]any) error {
	doc := checkpointDocument{
		Tasks:      p.Records(),
		AgentState: filterAgentState(agentState),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to marshal checkpoint: %w", err)}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	// Write to a temp file in the same directory, then rename over the target
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to create temp file: %w", err)}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to write temp file: %w", err)}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to sync temp file: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to close temp file: %w", err)}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &CheckpointError{Path: path, Err: fmt.Errorf("failed to rename temp file: %w", err)}
	}
	return nil
}

// LoadCheckpoint reads a checkpoint written by SaveCheckpoint. The returned
// state map is never nil. Integral JSON numbers are decoded as int.
func LoadCheckpoint(path string, opts ...Option) (*ExecutionPlan, map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, &CheckpointError{Path: path, Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc checkpointDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, &CheckpointError{Path: path, Err: fmt.Errorf("corrupt checkpoint: %w", err)}
	}
	if doc.Tasks == nil {
		return nil, nil, &CheckpointError{Path: path, Err: errors.New("corrupt checkpoint: missing tasks")}
	}

	p := NewExecutionPlan(opts...)
	for i, rec := range doc.Tasks {
		task, err := restoreTask(i, rec)
		if err != nil {
			return nil, nil, &CheckpointError{Path: path, Err: err}
		}
		p.tasks = append(p.tasks, task)
	}

	state, _ := normalizeNumbers(filterAgentState(doc.AgentState)).(map[string]any)
	return p, state, nil
}

func restoreTask(index int, rec TaskRecord) (*Task, error) {
	if rec.ID != index {
		return nil, fmt.Errorf("task at position %d has id %d", index, rec.ID)
	}
	deps, err := normalizeDependencies(rec.ID, rec.Dependencies)
	if err != nil {
		return nil, err
	}
	status, err := parseStatus(string(rec.Status))
	if err != nil {
		return nil, fmt.Errorf("task %d: %w", rec.ID, err)
	}
	actionType := rec.ActionType
	if actionType == "" {
		actionType = ActionGeneral
	}

	task := newTask(rec.ID, rec.Description, actionType, deps)
	if !rec.CreatedAt.IsZero() {
		task.CreatedAt = rec.CreatedAt
	}
	task.RiskLevel = rec.RiskLevel
	task.RiskReasons = rec.RiskReasons
	task.ImpactScope = rec.ImpactScope
	task.BreakingChange = rec.BreakingChange
	task.RollbackPlan = rec.RollbackPlan
	task.ValidationSteps = rec.ValidationSteps
	task.AffectedFiles = rec.AffectedFiles

	var result *TaskResult
	if rec.Result != nil {
		meta, _ := normalizeNumbers(rec.Result.Metadata).(map[string]any)
		result = &TaskResult{
			Success:  rec.Result.Success,
			Value:    normalizeNumbers(rec.Result.Value),
			Error:    rec.Result.Error,
			Duration: time.Duration(rec.Result.Duration * float64(time.Second)),
			Metadata: meta,
		}
	}
	var started, completed time.Time
	if rec.StartedAt != nil {
		started = *rec.StartedAt
	}
	if rec.CompletedAt != nil {
		completed = *rec.CompletedAt
	}
	task.restoreState(status, result, started, completed)
	return task, nil
}

func filterAgentState(state map[string]any) map[string]any {
	out := make(map[string]any)
	for _, key := range CheckpointStateKeys {
		if v, ok := state[key]; ok {
			out[key] = v
		}
	}
	return out
}

// normalizeNumbers converts json.Number values to int when integral and
// float64 otherwise, recursing into maps and slices.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		if val == nil {
			return map[string]any{}
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeNumbers(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeNumbers(item)
		}
		return out
	default:
		return v
	}
}
