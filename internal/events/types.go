package events

import (
	"fmt"
	"time"
)

// MessageType classifies a bus message.
type MessageType string

const (
	TypeContext    MessageType = "context"
	TypeWarning    MessageType = "warning"
	TypeSuggestion MessageType = "suggestion"
	TypeMetric     MessageType = "metric"
	TypeError      MessageType = "error"
	TypeInfo       MessageType = "info"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case TypeContext, TypeWarning, TypeSuggestion, TypeMetric, TypeError, TypeInfo:
		return true
	}
	return false
}

// Priority orders messages by urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Broadcast is the receiver that addresses every agent.
const Broadcast = "*"

// Message is a single bus entry. ID is assigned on publish when empty.
type Message struct {
	ID        string
	Sender    string
	Receiver  string
	Type      MessageType
	Payload   map[string]any
	Priority  Priority
	Timestamp time.Time
}

// String renders a one-line summary, used by the dashboard log.
func (m Message) String() string {
	summary, _ := m.Payload["summary"].(string)
	if summary == "" {
		summary = fmt.Sprint(m.Payload)
	}
	return fmt.Sprintf("[%s] %s -> %s: %s", m.Type, m.Sender, m.Receiver, summary)
}

// Event names carried in the "event" payload key by the orchestrator.
const (
	EventTaskStarted      = "task.started"
	EventTaskHighRisk     = "task.high_risk"
	EventTaskCompleted    = "task.completed"
	EventTaskFailed       = "task.failed"
	EventTaskCancelled    = "task.cancelled"
	EventRecoveryProposed = "recovery.proposed"
	EventRecoveryApplied  = "recovery.applied"
	EventRunProgress      = "run.progress"
	EventRunFinished      = "run.finished"
	EventSnapshotCreated  = "snapshot.created"
)
