package sched

import (
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gammazero/toposort"

	"github.com/loopkit/loopkit/internal/events"
)

// Submission errors returned by Gather before any task runs.
var (
	ErrNilStep           = errors.New("sched: task has nil step")
	ErrDuplicateName     = errors.New("sched: duplicate task name")
	ErrUnknownDependency = errors.New("sched: unknown dependency")
)

// Scheduler interleaves the execution of cooperative tasks. At most one
// task executes at any instant: Gather runs the loop on the calling
// goroutine, picks the ready task with the earliest wake time (submission
// order among ties) and runs it until it suspends, completes or fails.
//
// A Scheduler holds no global state; independent Schedulers never
// interfere. It is confined to one goroutine and is not safe for
// concurrent use.
type Scheduler struct {
	clock clock.Clock
	bus   *events.EventBus
	queue runqueue
	seq   int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock. Tests pass a mock clock to control
// wake times deterministically.
func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithBus attaches an event bus. The scheduler publishes task lifecycle
// events (started, completed, failed, skipped) and one group.finished
// event per Gather call.
func WithBus(bus *events.EventBus) Option {
	return func(s *Scheduler) { s.bus = bus }
}

// New creates a Scheduler.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{clock: clock.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time {
	return s.clock.Now()
}

// Gather submits a group of tasks and runs them to completion, blocking
// the caller until every member has reached a terminal state. It returns
// nil once all tasks have completed, or the first task failure. An empty
// group returns immediately with no side effects.
//
// Failure policy: the first failing step abandons the group. Steps that
// ran before the failure keep their observable effects; every sibling
// that has not completed is marked Skipped and runs no further steps.
func (s *Scheduler) Gather(specs ...Spec) error {
	if len(specs) == 0 {
		return nil
	}

	group, err := s.admit(specs)
	if err != nil {
		return err
	}

	return s.run(group)
}

// admit validates a group and enqueues its dependency-free members. All
// initially ready tasks share one wake time, so ordering among them falls
// to the submission-order tie-break.
func (s *Scheduler) admit(specs []Spec) ([]*Task, error) {
	byName := make(map[string]*Task, len(specs))
	group := make([]*Task, 0, len(specs))

	for _, spec := range specs {
		if spec.Step == nil {
			return nil, fmt.Errorf("%w: %q", ErrNilStep, spec.Name)
		}
		if _, exists := byName[spec.Name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, spec.Name)
		}
		t := &Task{
			name:   spec.Name,
			step:   spec.Step,
			status: StatusPending,
			seq:    s.seq,
		}
		s.seq++
		byName[spec.Name] = t
		group = append(group, t)
	}

	// Wire dependencies and reject cycles and unknown references.
	var edges []toposort.Edge
	for i, spec := range specs {
		t := group[i]
		if len(spec.After) == 0 {
			edges = append(edges, toposort.Edge{nil, spec.Name})
			continue
		}
		for _, depName := range spec.After {
			dep, ok := byName[depName]
			if !ok {
				return nil, fmt.Errorf("%w: task %q waits for %q", ErrUnknownDependency, spec.Name, depName)
			}
			t.waitingOn++
			dep.dependents = append(dep.dependents, t)
			edges = append(edges, toposort.Edge{depName, spec.Name})
		}
	}
	if _, err := toposort.Toposort(edges); err != nil {
		return nil, fmt.Errorf("sched: invalid task group: %w", err)
	}

	now := s.clock.Now()
	for _, t := range group {
		if t.waitingOn == 0 {
			t.wakeAt = now
			s.queue.Push(t)
		}
	}

	return group, nil
}

// run is the scheduler loop. It terminates when the run-set is empty,
// either because every task finished or because a failure abandoned the
// group.
func (s *Scheduler) run(group []*Task) error {
	var firstErr error

	for !s.queue.Empty() {
		t := s.queue.Pop()

		if wait := t.wakeAt.Sub(s.clock.Now()); wait > 0 {
			s.clock.Sleep(wait)
		}
		if s.clock.Now().Before(t.wakeAt) {
			panic("sched: internal error: task resumed before its wake time")
		}

		if !t.started {
			t.started = true
			t.startedAt = s.clock.Now()
			s.publish(events.TopicTask, events.TaskStartedEvent{
				Name:      t.name,
				Timestamp: t.startedAt,
			})
		}

		t.status = StatusRunning
		res := t.step(t)

		// The zero Result did not come from Suspend, Complete or Fail;
		// treat it as the step failing rather than crashing the loop.
		if res.action == 0 {
			res = t.Fail(errors.New("step returned an invalid result"))
		}

		switch res.action {
		case doSuspend:
			t.status = StatusSuspended
			t.wakeAt = s.clock.Now().Add(res.delay)
			s.queue.Push(t)
		case doComplete:
			t.status = StatusCompleted
			s.publish(events.TopicTask, events.TaskCompletedEvent{
				Name:      t.name,
				Duration:  s.clock.Now().Sub(t.startedAt),
				Timestamp: s.clock.Now(),
			})
			s.release(t)
		case doFail:
			t.status = StatusFailed
			t.err = res.err
			s.publish(events.TopicTask, events.TaskFailedEvent{
				Name:      t.name,
				Err:       res.err,
				Timestamp: s.clock.Now(),
			})
			firstErr = fmt.Errorf("task %q: %w", t.name, res.err)
			s.abandon(group)
		default:
			panic("sched: internal error: unknown step result")
		}
	}

	s.finish(group)
	return firstErr
}

// release makes dependents of a completed task eligible. Dependents
// released together wake at the same instant, so they resume in
// submission order.
func (s *Scheduler) release(t *Task) {
	now := s.clock.Now()
	for _, dep := range t.dependents {
		dep.waitingOn--
		if dep.waitingOn == 0 {
			dep.wakeAt = now
			s.queue.Push(dep)
		}
	}
	t.dependents = nil
}

// abandon implements the pinned failure policy: drain the run-set and mark
// every unfinished group member Skipped. Nothing runs after the failing
// step returns.
func (s *Scheduler) abandon(group []*Task) {
	for !s.queue.Empty() {
		s.queue.Pop()
	}
	now := s.clock.Now()
	for _, t := range group {
		if t.status.Terminal() {
			continue
		}
		t.status = StatusSkipped
		s.publish(events.TopicTask, events.TaskSkippedEvent{
			Name:      t.name,
			Timestamp: now,
		})
	}
}

func (s *Scheduler) finish(group []*Task) {
	ev := events.GroupFinishedEvent{
		Total:     len(group),
		Timestamp: s.clock.Now(),
	}
	for _, t := range group {
		switch t.status {
		case StatusCompleted:
			ev.Completed++
		case StatusFailed:
			ev.Failed++
		case StatusSkipped:
			ev.Skipped++
		}
	}
	s.publish(events.TopicGroup, ev)
}

func (s *Scheduler) publish(topic string, ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(topic, ev)
	}
}
