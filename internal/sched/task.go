package sched

import (
	"time"
)

// Status represents the current state of a task.
type Status int

const (
	StatusPending   Status = iota // Submitted, waiting for dependencies or first resumption
	StatusRunning                 // Currently executing a step
	StatusSuspended               // Parked until its wake time
	StatusCompleted               // Finished successfully
	StatusFailed                  // Terminated by a step failure
	StatusSkipped                 // Abandoned after a sibling in the group failed
)

// String returns a human-readable status name.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSuspended:
		return "suspended"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	}
	return "unknown"
}

// Terminal reports whether a task in this status will never run again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// Step is one resumption of a task. The scheduler calls it each time the
// task is resumed; it performs the task's next unit of work and directs
// the scheduler through the returned Result. Between two invocations the
// scheduler is free to run any other ready task; within one invocation
// nothing can interrupt it.
type Step func(t *Task) Result

// Spec describes one task submitted to a gather group.
type Spec struct {
	Name  string
	Step  Step
	After []string // names of group members that must complete before the first step
}

// Task is a named unit of work owned by a Scheduler. A task never runs
// concurrently with itself: its steps are strictly ordered.
type Task struct {
	name       string
	step       Step
	status     Status
	err        error
	seq        int // submission order, breaks wake-time ties
	wakeAt     time.Time
	started    bool
	startedAt  time.Time
	waitingOn  int // unfinished dependencies
	dependents []*Task
}

// Name returns the task's name.
func (t *Task) Name() string { return t.name }

// Status returns the task's current state.
func (t *Task) Status() Status { return t.status }

// Err returns the step failure that terminated the task, if any.
func (t *Task) Err() error { return t.err }

// less orders the run-set: earlier wake time first, submission order
// breaking ties. The tie-break determines output interleaving and is part
// of the scheduler's contract.
func (t *Task) less(other *Task) bool {
	if t.wakeAt.Before(other.wakeAt) {
		return true
	}
	if other.wakeAt.Before(t.wakeAt) {
		return false
	}
	return t.seq < other.seq
}

type action int

const (
	_ action = iota
	doSuspend
	doComplete
	doFail
)

// Result determines what the scheduler does with a task after a step.
// Valid Results come from Suspend, Complete or Fail; a step that returns
// the zero value fails its task.
type Result struct {
	action action
	delay  time.Duration
	err    error
}

// Suspend returns a Result that parks t for at least d before its next
// step. The scheduler may resume other ready tasks in the meantime; t is
// never resumed before d has elapsed.
func (t *Task) Suspend(d time.Duration) Result {
	return Result{action: doSuspend, delay: d}
}

// Complete returns a Result that marks t completed. No further steps run.
func (t *Task) Complete() Result {
	return Result{action: doComplete}
}

// Fail returns a Result that terminates t with err. No further steps run;
// the error is surfaced to the Gather caller.
func (t *Task) Fail(err error) Result {
	return Result{action: doFail, err: err}
}
