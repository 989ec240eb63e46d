package orchestrator

import (
	"fmt"
	"maps"
)

// agent_state keys persisted in checkpoints.
const (
	stateTotalRecovery    = "total_recovery_attempts"
	stateRecoveryAttempts = "recovery_attempts"
	stateRunID            = "run_id"
	stateSnapshots        = "snapshots"
	stateCompletedRounds  = "completed_rounds"
)

func attemptKey(taskID int) string {
	return fmt.Sprintf("task_%d", taskID)
}

// runState wraps the agent_state map. Values loaded from a checkpoint are
// ints, []any and map[string]any; values written here use the same shapes.
// Callers hold Runner.mu.
type runState map[string]any

func (s runState) runID() string {
	id, _ := s[stateRunID].(string)
	return id
}

func (s runState) attempts(taskID int) int {
	m, _ := s[stateRecoveryAttempts].(map[string]any)
	return toInt(m[attemptKey(taskID)])
}

// addAttempt bumps the per-task and total recovery counters and returns the
// task's new count.
func (s runState) addAttempt(taskID int) int {
	m, _ := s[stateRecoveryAttempts].(map[string]any)
	if m == nil {
		m = make(map[string]any)
		s[stateRecoveryAttempts] = m
	}
	n := toInt(m[attemptKey(taskID)]) + 1
	m[attemptKey(taskID)] = n
	s[stateTotalRecovery] = toInt(s[stateTotalRecovery]) + 1
	return n
}

func (s runState) totalAttempts() int {
	return toInt(s[stateTotalRecovery])
}

func (s runState) completedRounds() int {
	return toInt(s[stateCompletedRounds])
}

func (s runState) addRound() {
	s[stateCompletedRounds] = s.completedRounds() + 1
}

func (s runState) snapshots() []string {
	raw, _ := s[stateSnapshots].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			out = append(out, str)
		}
	}
	return out
}

func (s runState) addSnapshot(ref string) {
	raw, _ := s[stateSnapshots].([]any)
	s[stateSnapshots] = append(raw, ref)
}

// clone deep-copies the nested recovery map so checkpoints never alias live state.
func (s runState) clone() map[string]any {
	out := maps.Clone(map[string]any(s))
	if m, ok := s[stateRecoveryAttempts].(map[string]any); ok {
		out[stateRecoveryAttempts] = maps.Clone(m)
	}
	if raw, ok := s[stateSnapshots].([]any); ok {
		out[stateSnapshots] = append([]any(nil), raw...)
	}
	return out
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
