package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// RecordRecovery appends one recovery attempt. Attempts are never updated.
func (s *SQLiteStore) RecordRecovery(ctx context.Context, a RecoveryAttempt) error {
	commands, err := json.Marshal(nonNil(a.Commands))
	if err != nil {
		return fmt.Errorf("failed to encode commands: %w", err)
	}
	errs, err := json.Marshal(nonNil(a.Errors))
	if err != nil {
		return fmt.Errorf("failed to encode errors: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO recovery_attempts (run_id, task_id, attempt, strategy, description, success, rejected, commands, errors)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.RunID, a.TaskID, a.Attempt, a.Strategy, a.Description, a.Success, a.Rejected, string(commands), string(errs))
		if err != nil {
			return fmt.Errorf("failed to record recovery attempt: %w", err)
		}
		return nil
	})
}

// ListRecoveries returns a run's recovery attempts in the order they were made.
func (s *SQLiteStore) ListRecoveries(ctx context.Context, runID string) ([]RecoveryAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_id, attempt, strategy, description, success, rejected, commands, errors, created_at
		FROM recovery_attempts
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recovery attempts: %w", err)
	}
	defer rows.Close()

	attempts := []RecoveryAttempt{}
	for rows.Next() {
		var a RecoveryAttempt
		var commands, errs string
		if err := rows.Scan(&a.RunID, &a.TaskID, &a.Attempt, &a.Strategy, &a.Description, &a.Success, &a.Rejected, &commands, &errs, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recovery attempt: %w", err)
		}
		if err := json.Unmarshal([]byte(commands), &a.Commands); err != nil {
			return nil, fmt.Errorf("failed to decode commands: %w", err)
		}
		if err := json.Unmarshal([]byte(errs), &a.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode errors: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recovery attempts: %w", err)
	}
	return attempts, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
