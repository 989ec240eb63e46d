package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aristath/autopilot/internal/plan"
)

// SaveTask upserts a task record for a run. The full record is stored as
// JSON next to the columns used for filtering.
func (s *SQLiteStore) SaveTask(ctx context.Context, runID string, rec plan.TaskRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode task %d: %w", rec.ID, err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO task_records (run_id, task_id, description, action_type, status, risk_level, record, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(run_id, task_id) DO UPDATE SET
				description = excluded.description,
				action_type = excluded.action_type,
				status = excluded.status,
				risk_level = excluded.risk_level,
				record = excluded.record,
				updated_at = CURRENT_TIMESTAMP
		`, runID, rec.ID, rec.Description, string(rec.ActionType), string(rec.Status), rec.RiskLevel.String(), string(data))
		if err != nil {
			return fmt.Errorf("failed to upsert task %d: %w", rec.ID, err)
		}
		return nil
	})
}

// ListTasks returns a run's task records in id order.
func (s *SQLiteStore) ListTasks(ctx context.Context, runID string) ([]plan.TaskRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record
		FROM task_records
		WHERE run_id = ?
		ORDER BY task_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	records := []plan.TaskRecord{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		var rec plan.TaskRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode task record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return records, nil
}
