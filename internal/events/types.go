package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	TaskName() string
}

// Topic constants
const (
	TopicTask  = "task"
	TopicGroup = "group"
)

// Event type constants
const (
	EventTypeTaskStarted   = "task.started"
	EventTypeTaskStep      = "task.step"
	EventTypeTaskCompleted = "task.completed"
	EventTypeTaskFailed    = "task.failed"
	EventTypeTaskSkipped   = "task.skipped"
	EventTypeGroupFinished = "group.finished"
)

// TaskStartedEvent is published the first time a task is resumed.
type TaskStartedEvent struct {
	Name      string
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) TaskName() string  { return e.Name }

// TaskStepEvent is published by a task's workload each time it performs
// one observable step. Step is 1-indexed.
type TaskStepEvent struct {
	Name      string
	Step      int
	Timestamp time.Time
}

func (e TaskStepEvent) EventType() string { return EventTypeTaskStep }
func (e TaskStepEvent) TaskName() string  { return e.Name }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	Name      string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) TaskName() string  { return e.Name }

// TaskFailedEvent is published when a task's step fails.
type TaskFailedEvent struct {
	Name      string
	Err       error
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) TaskName() string  { return e.Name }

// TaskSkippedEvent is published for group members abandoned after a
// sibling task failed.
type TaskSkippedEvent struct {
	Name      string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) TaskName() string  { return e.Name }

// GroupFinishedEvent is published once per gather group, after every
// member has reached a terminal state.
type GroupFinishedEvent struct {
	Total     int
	Completed int
	Failed    int
	Skipped   int
	Timestamp time.Time
}

func (e GroupFinishedEvent) EventType() string { return EventTypeGroupFinished }
func (e GroupFinishedEvent) TaskName() string  { return "" }
