package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode and a busy
// timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return newStore(ctx, db)
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Uses a shared cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", "file::memory:?mode=memory&cache=shared")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	return newStore(ctx, db)
}

func newStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// One writer at a time keeps modernc.org/sqlite happy.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		status TEXT NOT NULL,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS steps (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		task TEXT NOT NULL,
		step INTEGER NOT NULL,
		at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_steps_run_seq ON steps(run_id, seq);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// BeginRun opens a new run row.
func (s *SQLiteStore) BeginRun(ctx context.Context) (string, error) {
	id := uuid.NewString()
	err := s.execRetry(ctx, `
		INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)
	`, id, time.Now().UTC(), RunStatusRunning)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// AppendStep records one task step under an open run.
func (s *SQLiteStore) AppendStep(ctx context.Context, runID string, rec StepRecord) error {
	err := s.execRetry(ctx, `
		INSERT INTO steps (run_id, seq, task, step, at) VALUES (?, ?, ?, ?, ?)
	`, runID, rec.Seq, rec.Task, rec.Step, rec.At.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert step: %w", err)
	}
	return nil
}

// FinishRun closes a run with a final status.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status string, runErr error) error {
	errorStr := ""
	if runErr != nil {
		errorStr = runErr.Error()
	}

	err := s.execRetry(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, error = ? WHERE id = ?
	`, time.Now().UTC(), status, errorStr, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// ListRuns returns all runs, most recent first.
func (s *SQLiteStore) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, status, error
		FROM runs ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		var errorStr sql.NullString
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Status, &errorStr); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		if errorStr.Valid {
			r.Error = errorStr.String
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunSteps returns the step records of a run in sequence order.
func (s *SQLiteStore) RunSteps(ctx context.Context, runID string) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, task, step, at FROM steps WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	var recs []StepRecord
	for rows.Next() {
		var rec StepRecord
		if err := rows.Scan(&rec.Seq, &rec.Task, &rec.Step, &rec.At); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// execRetry runs a write with exponential backoff while the database
// reports itself busy or locked. Other errors are permanent.
func (s *SQLiteStore) execRetry(ctx context.Context, query string, args ...any) error {
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			if isBusy(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 5 * time.Millisecond
	policy.MaxInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second

	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
