package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/autopilot/internal/events"
	"github.com/aristath/autopilot/internal/recovery"
)

func busMessage(typ events.MessageType, payload map[string]any) events.Message {
	return events.Message{
		Sender:    "orchestrator",
		Receiver:  events.Broadcast,
		Type:      typ,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	model, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return model
}

func TestModel_TracksTaskEvents(t *testing.T) {
	bus := events.NewBus(0)
	defer bus.Close()
	m := New(bus, nil)
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	m = update(t, m, busMessage(events.TypeWarning, map[string]any{
		"event": events.EventTaskHighRisk, "task_id": 0, "description": "Delete legacy API", "risk_level": "high", "summary": "Task 0 is high risk",
	}))
	m = update(t, m, busMessage(events.TypeInfo, map[string]any{
		"event": events.EventTaskStarted, "task_id": 0, "summary": "Task 0 started",
	}))
	m = update(t, m, busMessage(events.TypeInfo, map[string]any{
		"event": events.EventTaskStarted, "task_id": 1, "description": "Run tests", "summary": "Task 1 started",
	}))
	m = update(t, m, busMessage(events.TypeError, map[string]any{
		"event": events.EventTaskFailed, "task_id": 1, "summary": "Task 1 failed: boom",
	}))

	task0, ok := m.taskPane.Task(0)
	if !ok {
		t.Fatal("task 0 not tracked")
	}
	if task0.Status != "running" || task0.Risk != "high" || task0.Description != "Delete legacy API" {
		t.Errorf("task 0 = %+v", task0)
	}
	if len(task0.Log) != 2 {
		t.Errorf("task 0 log = %v", task0.Log)
	}

	task1, _ := m.taskPane.Task(1)
	if task1.Status != "failed" {
		t.Errorf("task 1 status = %q, want failed", task1.Status)
	}

	counts := m.progressPane.Counts()
	if counts["running"] != 1 || counts["failed"] != 1 {
		t.Errorf("progress counts = %v", counts)
	}

	m = update(t, m, busMessage(events.TypeInfo, map[string]any{
		"event": events.EventRunFinished, "status": "failed", "summary": "Run failed",
	}))
	if m.progressPane.Finished() != "failed" {
		t.Errorf("Finished() = %q", m.progressPane.Finished())
	}

	view := m.View()
	for _, want := range []string{"Tasks", "Plan Progress", "Run failed"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_FocusCycles(t *testing.T) {
	bus := events.NewBus(0)
	defer bus.Close()
	m := New(bus, nil)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedPane != PaneProgress {
		t.Errorf("focus = %d, want progress", m.focusedPane)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedPane != PaneTasks {
		t.Errorf("focus = %d, want tasks", m.focusedPane)
	}
	m = update(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.focusedPane != PaneProgress {
		t.Errorf("focus = %d, want progress", m.focusedPane)
	}
}

func TestModel_ApprovalRejectedWithEsc(t *testing.T) {
	bus := events.NewBus(0)
	defer bus.Close()
	approver := NewApprover()
	m := New(bus, approver)
	m = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})

	type answer struct {
		ok  bool
		err error
	}
	done := make(chan answer, 1)
	go func() {
		ok, err := approver.Approve(context.Background(), recovery.Request{
			TaskID: 3, Strategy: "rollback", Description: "Reset the tree", Commands: []string{"git reset --hard HEAD"}, RiskLevel: "high",
		})
		done <- answer{ok, err}
	}()

	req := waitForApproval(approver.requests)()
	m = update(t, m, req)
	if !m.approvalPane.IsVisible() {
		t.Fatal("approval pane should be visible")
	}
	if view := m.View(); !strings.Contains(view, "Approval required") {
		t.Errorf("view = %q", view)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.approvalPane.IsVisible() {
		t.Error("approval pane should be hidden after esc")
	}

	select {
	case a := <-done:
		if a.ok || a.err != nil {
			t.Errorf("answer = %+v, want rejection", a)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("approver never answered")
	}
}

func TestApprover_ContextCancelled(t *testing.T) {
	approver := NewApprover()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := approver.Approve(ctx, recovery.Request{}); err != context.DeadlineExceeded {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}
}

func TestActionFor(t *testing.T) {
	tests := []struct {
		msg  tea.KeyMsg
		want keyAction
	}{
		{tea.KeyMsg{Type: tea.KeyTab}, actionNextPane},
		{tea.KeyMsg{Type: tea.KeyShiftTab}, actionPrevPane},
		{tea.KeyMsg{Type: tea.KeyCtrlC}, actionInterrupt},
		{tea.KeyMsg{Type: tea.KeyEsc}, actionDeny},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("j")}, actionCursorDown},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")}, actionQuit},
		{tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}, actionNone},
	}
	for _, tt := range tests {
		if got := actionFor(tt.msg); got != tt.want {
			t.Errorf("actionFor(%q) = %v, want %v", tt.msg.String(), got, tt.want)
		}
	}
	if help := HelpView(); !strings.Contains(help, "q: quit") {
		t.Errorf("HelpView() = %q, missing quit hint", help)
	}
}
