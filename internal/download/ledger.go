package download

import (
	"database/sql"
	"fmt"
	"time"

	dbutil "github.com/lcourbon/cadence/internal/db"
)

// Ledger persists download tasks so queued and finished work survives a
// restart.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates the ledger, initializing its schema.
func NewLedger(conn *sql.DB) (*Ledger, error) {
	_, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS download_tasks (
			track_id TEXT PRIMARY KEY,
			source_uri TEXT NOT NULL,
			quality TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'pending',
			progress REAL NOT NULL DEFAULT 0,
			attempt INTEGER NOT NULL DEFAULT 0,
			priority INTEGER NOT NULL DEFAULT 0,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_download_tasks_state ON download_tasks(state);
	`)
	if err != nil {
		return nil, fmt.Errorf("init download schema: %w", err)
	}
	return &Ledger{db: conn}, nil
}

// Save inserts or replaces the task row.
func (l *Ledger) Save(task Task) error {
	now := time.Now().Unix()
	_, err := l.db.Exec(`
		INSERT INTO download_tasks
			(track_id, source_uri, quality, state, progress, attempt, priority, size_bytes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(track_id) DO UPDATE SET
			source_uri = excluded.source_uri,
			quality = excluded.quality,
			state = excluded.state,
			progress = excluded.progress,
			attempt = excluded.attempt,
			priority = excluded.priority,
			size_bytes = excluded.size_bytes,
			updated_at = excluded.updated_at
	`, task.TrackID, task.SourceURI, task.Quality, task.State, task.ProgressPercent,
		task.Attempt, task.Priority, task.SizeBytes, task.EnqueuedAt.Unix(), now)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.TrackID, err)
	}
	return nil
}

// Get returns the task for a track id, or nil when absent.
func (l *Ledger) Get(trackID string) (*Task, error) {
	row := l.db.QueryRow(`
		SELECT track_id, source_uri, quality, state, progress, attempt, priority, size_bytes, created_at
		FROM download_tasks WHERE track_id = ?
	`, trackID)

	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", trackID, err)
	}
	return &task, nil
}

// List returns all tasks, newest first.
func (l *Ledger) List() ([]Task, error) {
	rows, err := l.db.Query(`
		SELECT track_id, source_uri, quality, state, progress, attempt, priority, size_bytes, created_at
		FROM download_tasks ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// Delete removes the task row. Missing rows are a no-op.
func (l *Ledger) Delete(trackID string) error {
	_, err := l.db.Exec(`DELETE FROM download_tasks WHERE track_id = ?`, trackID)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", trackID, err)
	}
	return nil
}

// ClearCompleted removes all tasks in the Downloaded state.
func (l *Ledger) ClearCompleted() error {
	_, err := l.db.Exec(`DELETE FROM download_tasks WHERE state = ?`, StateDownloaded)
	if err != nil {
		return fmt.Errorf("clear completed: %w", err)
	}
	return nil
}

// ResetInterrupted demotes tasks left in Downloading by a crash back to
// Pending so a restart can pick them up.
func (l *Ledger) ResetInterrupted() error {
	return dbutil.WithTx(l.db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE download_tasks SET state = ?, progress = 0, updated_at = ?
			WHERE state = ?
		`, StatePending, time.Now().Unix(), StateDownloading)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (Task, error) {
	var task Task
	var created int64
	err := row.Scan(&task.TrackID, &task.SourceURI, &task.Quality, &task.State,
		&task.ProgressPercent, &task.Attempt, &task.Priority, &task.SizeBytes, &created)
	if err != nil {
		return Task{}, err
	}
	task.EnqueuedAt = time.Unix(created, 0)
	return task, nil
}
