// Package state provides SQLite-based checkpoint persistence for
// workflow instances. Checkpoints are keyed by thread id and written
// after every node, so a crash between steps loses at most the
// in-flight node's work.
package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// ErrNotFound indicates no checkpoint exists for the given thread id.
var ErrNotFound = errors.New("checkpoint not found")

// DB wraps an SQLite database connection with checkpoint operations.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// DefaultDBPath returns the path to the default Conductor database.
func DefaultDBPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "conductor", "conductor.db")
}

// Open opens an SQLite database at the given path, creating parent
// directories if needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// OpenDefault opens the default Conductor database.
func OpenDefault() (*DB, error) {
	return Open(DefaultDBPath())
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the path to the database file.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Checkpoints},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Checkpoints = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id TEXT PRIMARY KEY,
	workflow_id TEXT NOT NULL,
	user_id TEXT NOT NULL DEFAULT '',
	workflow_type TEXT NOT NULL,
	status TEXT NOT NULL,
	current_step TEXT NOT NULL DEFAULT '',
	completed_steps TEXT NOT NULL DEFAULT '[]',
	error_count INTEGER NOT NULL DEFAULT 0,
	max_iterations INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	data TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_user_id ON checkpoints(user_id);
CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON checkpoints(status);
`

// Checkpoint is a durable snapshot of one workflow instance plus its
// type-specific state payload.
type Checkpoint struct {
	Instance models.WorkflowInstance
	// Data is the JSON-encoded workflow state payload.
	Data json.RawMessage
}

// SaveCheckpoint writes the checkpoint for its thread id. The write is
// a single upsert inside a transaction, so concurrent readers see
// either the prior or the new checkpoint, never a partial one.
//
// A stored cancelled status wins over the incoming row: cancellation
// arrives through UpdateStatus while the engine may be mid-node, and a
// post-node save must not resurrect the run. The engine observes the
// preserved status before its next node and stops there.
func (db *DB) SaveCheckpoint(cp *Checkpoint) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	steps, err := json.Marshal(cp.Instance.CompletedSteps)
	if err != nil {
		return fmt.Errorf("marshal completed steps: %w", err)
	}
	data := cp.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO checkpoints
			(thread_id, workflow_id, user_id, workflow_type, status, current_step,
			 completed_steps, error_count, max_iterations, last_error, data,
			 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			status = excluded.status,
			current_step = excluded.current_step,
			completed_steps = excluded.completed_steps,
			error_count = excluded.error_count,
			max_iterations = excluded.max_iterations,
			last_error = excluded.last_error,
			data = excluded.data,
			updated_at = excluded.updated_at
		WHERE checkpoints.status != 'cancelled'
	`,
		cp.Instance.ThreadID,
		cp.Instance.WorkflowID,
		cp.Instance.UserID,
		string(cp.Instance.Type),
		string(cp.Instance.Status),
		cp.Instance.CurrentStep,
		string(steps),
		cp.Instance.ErrorCount,
		cp.Instance.MaxIterations,
		cp.Instance.LastError,
		string(data),
		formatTime(cp.Instance.CreatedAt),
		formatTime(time.Now()),
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("upsert checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// GetCheckpoint loads the checkpoint for a thread id.
// Returns ErrNotFound when no checkpoint exists.
func (db *DB) GetCheckpoint(threadID string) (*Checkpoint, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRow(`
		SELECT thread_id, workflow_id, user_id, workflow_type, status,
		       current_step, completed_steps, error_count, max_iterations,
		       last_error, data, created_at, updated_at
		FROM checkpoints WHERE thread_id = ?
	`, threadID)

	cp, err := scanCheckpoint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get checkpoint %s: %w", threadID, err)
	}
	return cp, nil
}

// UpdateStatus sets the status (and optional error message) for a
// thread id without touching the state payload. Used for cancellation.
// Returns ErrNotFound when no checkpoint exists.
func (db *DB) UpdateStatus(threadID string, status models.WorkflowStatus, lastError string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec(`
		UPDATE checkpoints
		SET status = ?, last_error = ?, updated_at = ?
		WHERE thread_id = ?
	`, string(status), lastError, formatTime(time.Now()), threadID)
	if err != nil {
		return fmt.Errorf("update status %s: %w", threadID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByUser returns all checkpoints for a user, newest first.
func (db *DB) ListByUser(userID string) ([]*Checkpoint, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT thread_id, workflow_id, user_id, workflow_type, status,
		       current_step, completed_steps, error_count, max_iterations,
		       last_error, data, created_at, updated_at
		FROM checkpoints WHERE user_id = ?
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes terminal checkpoints last updated before the
// cutoff. Running and paused instances are never purged.
// Returns the number of checkpoints deleted.
func (db *DB) PurgeOlderThan(olderThan time.Duration) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	cutoff := formatTime(time.Now().Add(-olderThan))
	res, err := db.conn.Exec(`
		DELETE FROM checkpoints
		WHERE updated_at < ? AND status IN ('completed', 'failed', 'cancelled')
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge old checkpoints: %w", err)
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(s scanner) (*Checkpoint, error) {
	var cp Checkpoint
	var typ, status, steps, data, createdAt, updatedAt string

	err := s.Scan(
		&cp.Instance.ThreadID,
		&cp.Instance.WorkflowID,
		&cp.Instance.UserID,
		&typ,
		&status,
		&cp.Instance.CurrentStep,
		&steps,
		&cp.Instance.ErrorCount,
		&cp.Instance.MaxIterations,
		&cp.Instance.LastError,
		&data,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	cp.Instance.Type = models.WorkflowType(typ)
	cp.Instance.Status = models.WorkflowStatus(status)
	if err := json.Unmarshal([]byte(steps), &cp.Instance.CompletedSteps); err != nil {
		return nil, fmt.Errorf("unmarshal completed steps: %w", err)
	}
	cp.Data = json.RawMessage(data)

	if t, err := parseTime(createdAt); err == nil {
		cp.Instance.CreatedAt = t
	}
	if t, err := parseTime(updatedAt); err == nil {
		cp.Instance.UpdatedAt = t
	}
	return &cp, nil
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
