package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveSession stores the agent session used for a task.
// Uses ON CONFLICT to upsert, so a resumed run overwrites the old session.
func (s *SQLiteStore) SaveSession(ctx context.Context, runID string, taskID int, sessionID, backendType string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agent_sessions (run_id, task_id, session_id, backend_type)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(run_id, task_id) DO UPDATE SET
				session_id = excluded.session_id,
				backend_type = excluded.backend_type
		`, runID, taskID, sessionID, backendType)
		if err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	})
}

// GetSession returns the agent session for a task.
func (s *SQLiteStore) GetSession(ctx context.Context, runID string, taskID int) (string, string, error) {
	var sessionID, backendType string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, backend_type
		FROM agent_sessions
		WHERE run_id = ? AND task_id = ?
	`, runID, taskID).Scan(&sessionID, &backendType)

	if errors.Is(err, sql.ErrNoRows) {
		return "", "", fmt.Errorf("session for task %d: %w", taskID, ErrNotFound)
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to query session: %w", err)
	}
	return sessionID, backendType, nil
}

// SaveMessage appends one prompt or reply to a task's history.
func (s *SQLiteStore) SaveMessage(ctx context.Context, runID string, taskID int, role, content string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO agent_messages (run_id, task_id, role, content)
			VALUES (?, ?, ?, ?)
		`, runID, taskID, role, content)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
		return nil
	})
}

// GetHistory returns a task's messages in the order they were saved.
// Returns an empty slice (not nil) if there is no history.
func (s *SQLiteStore) GetHistory(ctx context.Context, runID string, taskID int) ([]ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, timestamp
		FROM agent_messages
		WHERE run_id = ? AND task_id = ?
		ORDER BY id
	`, runID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	history := []ConversationTurn{}
	for rows.Next() {
		var turn ConversationTurn
		if err := rows.Scan(&turn.Role, &turn.Content, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		history = append(history, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}
	return history, nil
}
