// Package journal persists run history: one row per run, one row per
// observed task step. It is fed from the event bus, so a journaled run
// is an ordered replay of what the scheduler actually did.
package journal

import (
	"context"
	"time"
)

// Run statuses stored in the runs table.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one journaled scheduler run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is still open
	Status     string
	Error      string // first task failure, empty on success
}

// StepRecord is one observed task step. Seq is the run-wide sequence
// number assigned in delivery order; Step is the task's own 1-indexed
// step counter.
type StepRecord struct {
	Seq  int
	Task string
	Step int
	At   time.Time
}

// Store defines the persistence interface for run history.
type Store interface {
	// BeginRun opens a new run and returns its ID.
	BeginRun(ctx context.Context) (string, error)

	// AppendStep records one task step under an open run.
	AppendStep(ctx context.Context, runID string, rec StepRecord) error

	// FinishRun closes a run with a final status. runErr may be nil.
	FinishRun(ctx context.Context, runID, status string, runErr error) error

	// ListRuns returns all runs, most recent first.
	ListRuns(ctx context.Context) ([]Run, error)

	// RunSteps returns the step records of a run in sequence order.
	RunSteps(ctx context.Context, runID string) ([]StepRecord, error)

	// Close releases the underlying database.
	Close() error
}
