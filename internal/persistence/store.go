// Package persistence keeps an auditable SQLite history of runs, task
// outcomes, recovery attempts and agent exchanges.
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/aristath/autopilot/internal/plan"
)

// ErrNotFound is returned when a run or session does not exist.
var ErrNotFound = errors.New("not found")

// Run statuses.
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunAborted   = "aborted"
)

// Run is one execution of a plan.
type Run struct {
	ID             string
	Name           string
	Status         string
	CheckpointPath string
	Snapshot       string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// RecoveryAttempt is one applied recovery action.
type RecoveryAttempt struct {
	RunID       string
	TaskID      int
	Attempt     int
	Strategy    string
	Description string
	Success     bool
	Rejected    bool
	Commands    []string
	Errors      []string
	CreatedAt   time.Time
}

// ConversationTurn is one prompt or reply exchanged with the agent.
type ConversationTurn struct {
	Role      string // "user" or "assistant"
	Content   string
	Timestamp time.Time
}

// Store defines the persistence interface for run history.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run Run) (string, error)
	FinishRun(ctx context.Context, runID, status, snapshot string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	// Task outcomes
	SaveTask(ctx context.Context, runID string, rec plan.TaskRecord) error
	ListTasks(ctx context.Context, runID string) ([]plan.TaskRecord, error)

	// Recovery audit trail
	RecordRecovery(ctx context.Context, attempt RecoveryAttempt) error
	ListRecoveries(ctx context.Context, runID string) ([]RecoveryAttempt, error)

	// Agent sessions and conversation history
	SaveSession(ctx context.Context, runID string, taskID int, sessionID, backendType string) error
	GetSession(ctx context.Context, runID string, taskID int) (sessionID string, backendType string, err error)
	SaveMessage(ctx context.Context, runID string, taskID int, role, content string) error
	GetHistory(ctx context.Context, runID string, taskID int) ([]ConversationTurn, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)", dbPath)
	return open(ctx, connStr)
}

// NewMemoryStore creates an in-memory store for tests. Each call gets its
// own database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	return open(ctx, connStr)
}

func open(ctx context.Context, connStr string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// _pragma covers every pooled connection; this checks the first one
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Allow 2 connections: one for primary queries, one for nested lookups
	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn in a serializable transaction bounded to five seconds.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
