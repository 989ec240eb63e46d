package persistence

import (
	"context"
)

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		checkpoint_path TEXT NOT NULL DEFAULT '',
		snapshot TEXT NOT NULL DEFAULT '',
		started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS task_records (
		run_id TEXT NOT NULL,
		task_id INTEGER NOT NULL,
		description TEXT NOT NULL,
		action_type TEXT NOT NULL,
		status TEXT NOT NULL,
		risk_level TEXT NOT NULL,
		record TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, task_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_task_records_status ON task_records(run_id, status);

	CREATE TABLE IF NOT EXISTS recovery_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		task_id INTEGER NOT NULL,
		attempt INTEGER NOT NULL,
		strategy TEXT NOT NULL,
		description TEXT NOT NULL,
		success INTEGER NOT NULL,
		rejected INTEGER NOT NULL,
		commands TEXT NOT NULL,
		errors TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_recovery_attempts_task ON recovery_attempts(run_id, task_id, id);

	CREATE TABLE IF NOT EXISTS agent_sessions (
		run_id TEXT NOT NULL,
		task_id INTEGER NOT NULL,
		session_id TEXT NOT NULL,
		backend_type TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (run_id, task_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS agent_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		task_id INTEGER NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_agent_messages_task ON agent_messages(run_id, task_id, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
