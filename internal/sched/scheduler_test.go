package sched

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/loopkit/loopkit/internal/events"
)

// recorder builds printer-like specs whose steps append the task name to a
// shared slice. The scheduler is single-threaded, so no locking is needed;
// tests that run Gather on another goroutine read the slice only after
// Gather returns.
type recorder struct {
	records []string
}

func (r *recorder) spec(name string, steps int, interval time.Duration) Spec {
	i := 0
	return Spec{
		Name: name,
		Step: func(t *Task) Result {
			if i >= steps {
				return t.Complete()
			}
			i++
			r.records = append(r.records, name)
			if i == steps {
				return t.Complete()
			}
			return t.Suspend(interval)
		},
	}
}

// gatherWithMock runs Gather on a goroutine and advances the mock clock
// until it returns.
func gatherWithMock(t *testing.T, mock *clock.Mock, s *Scheduler, specs ...Spec) error {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- s.Gather(specs...) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		select {
		case err := <-done:
			return err
		default:
			if time.Now().After(deadline) {
				t.Fatal("gather did not finish")
			}
			mock.Add(100 * time.Millisecond)
		}
	}
}

func TestGatherInterleavesBySubmissionOrder(t *testing.T) {
	rec := &recorder{}
	s := New()

	err := s.Gather(
		rec.spec("A", 5, 5*time.Millisecond),
		rec.spec("B", 2, 5*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	want := []string{"A", "B", "A", "B", "A", "A", "A"}
	if len(rec.records) != len(want) {
		t.Fatalf("expected %d records, got %d: %v", len(want), len(rec.records), rec.records)
	}
	for i, name := range want {
		if rec.records[i] != name {
			t.Errorf("record %d: expected %q, got %q (full: %v)", i, name, rec.records[i], rec.records)
		}
	}
}

func TestGatherInterleavingReproducible(t *testing.T) {
	var first []string
	for run := 0; run < 5; run++ {
		rec := &recorder{}
		s := New()
		if err := s.Gather(
			rec.spec("A", 5, time.Millisecond),
			rec.spec("B", 2, time.Millisecond),
		); err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if run == 0 {
			first = rec.records
			continue
		}
		if len(rec.records) != len(first) {
			t.Fatalf("run %d: got %v, want %v", run, rec.records, first)
		}
		for i := range first {
			if rec.records[i] != first[i] {
				t.Fatalf("run %d: got %v, want %v", run, rec.records, first)
			}
		}
	}
}

func TestGatherVirtualTime(t *testing.T) {
	mock := clock.NewMock()
	rec := &recorder{}
	s := New(WithClock(mock))

	err := gatherWithMock(t, mock, s,
		rec.spec("A", 5, time.Second),
		rec.spec("B", 2, time.Second),
	)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	want := []string{"A", "B", "A", "B", "A", "A", "A"}
	for i, name := range want {
		if i >= len(rec.records) || rec.records[i] != name {
			t.Fatalf("expected %v, got %v", want, rec.records)
		}
	}
}

func TestTaskStepCounts(t *testing.T) {
	for _, steps := range []int{0, 1, 3, 10} {
		rec := &recorder{}
		s := New()
		if err := s.Gather(rec.spec("only", steps, time.Millisecond)); err != nil {
			t.Fatalf("steps=%d: %v", steps, err)
		}
		if len(rec.records) != steps {
			t.Errorf("steps=%d: expected %d records, got %d", steps, steps, len(rec.records))
		}
	}
}

func TestGatherEmptyGroup(t *testing.T) {
	s := New()
	start := time.Now()
	if err := s.Gather(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("empty gather took %v, expected immediate return", elapsed)
	}
}

func TestSuspendNeverResumesEarly(t *testing.T) {
	mock := clock.NewMock()
	s := New(WithClock(mock))

	const interval = 250 * time.Millisecond

	var resumedAt []time.Time
	i := 0
	spec := Spec{
		Name: "timed",
		Step: func(t *Task) Result {
			resumedAt = append(resumedAt, mock.Now())
			i++
			if i == 4 {
				return t.Complete()
			}
			return t.Suspend(interval)
		},
	}

	if err := gatherWithMock(t, mock, s, spec); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if len(resumedAt) != 4 {
		t.Fatalf("expected 4 resumptions, got %d", len(resumedAt))
	}
	for i := 1; i < len(resumedAt); i++ {
		if gap := resumedAt[i].Sub(resumedAt[i-1]); gap < interval {
			t.Errorf("resumption %d came %v after the previous one, want >= %v", i, gap, interval)
		}
	}
}

func TestGatherFailureAbandonsSiblings(t *testing.T) {
	errBoom := errors.New("boom")

	bus := events.NewEventBus()
	defer bus.Close()
	ch := bus.SubscribeAll(64)

	rec := &recorder{}
	s := New(WithBus(bus))

	failing := Spec{
		Name: "B",
		Step: func(t *Task) Result {
			return t.Fail(errBoom)
		},
	}

	err := s.Gather(rec.spec("A", 5, time.Millisecond), failing)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, errBoom) {
		t.Errorf("expected error to wrap %v, got: %v", errBoom, err)
	}

	// A is submitted first, so its first step runs before B fails. After
	// the failure nothing else runs.
	if len(rec.records) != 1 || rec.records[0] != "A" {
		t.Errorf("expected records [A], got %v", rec.records)
	}

	var skipped, failed int
	var finished *events.GroupFinishedEvent
drain:
	for {
		select {
		case ev := <-ch:
			switch ev := ev.(type) {
			case events.TaskSkippedEvent:
				if ev.Name != "A" {
					t.Errorf("expected A to be skipped, got %q", ev.Name)
				}
				skipped++
			case events.TaskFailedEvent:
				if ev.Name != "B" {
					t.Errorf("expected B to fail, got %q", ev.Name)
				}
				failed++
			case events.GroupFinishedEvent:
				finished = &ev
			}
		default:
			break drain
		}
	}

	if skipped != 1 {
		t.Errorf("expected 1 skipped event, got %d", skipped)
	}
	if failed != 1 {
		t.Errorf("expected 1 failed event, got %d", failed)
	}
	if finished == nil {
		t.Fatal("expected a group.finished event")
	}
	if finished.Failed != 1 || finished.Skipped != 1 || finished.Completed != 0 {
		t.Errorf("unexpected group summary: %+v", finished)
	}
}

func TestGatherFailureMidRun(t *testing.T) {
	errStep := errors.New("step 2 broke")

	rec := &recorder{}
	s := New()

	i := 0
	flaky := Spec{
		Name: "B",
		Step: func(t *Task) Result {
			i++
			if i == 2 {
				return t.Fail(errStep)
			}
			rec.records = append(rec.records, "B")
			return t.Suspend(time.Millisecond)
		},
	}

	err := s.Gather(rec.spec("A", 5, time.Millisecond), flaky)
	if !errors.Is(err, errStep) {
		t.Fatalf("expected error to wrap %v, got: %v", errStep, err)
	}

	// Step order until the failure: A1 B1 A2, then B's second resumption
	// fails and A is abandoned.
	want := []string{"A", "B", "A"}
	if len(rec.records) != len(want) {
		t.Fatalf("expected records %v, got %v", want, rec.records)
	}
	for i := range want {
		if rec.records[i] != want[i] {
			t.Fatalf("expected records %v, got %v", want, rec.records)
		}
	}
}

func TestGatherDependencies(t *testing.T) {
	rec := &recorder{}
	s := New()

	a := rec.spec("A", 2, time.Millisecond)
	b := rec.spec("B", 2, time.Millisecond)
	c := rec.spec("C", 1, time.Millisecond)
	c.After = []string{"A", "B"}

	if err := s.Gather(a, b, c); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	want := []string{"A", "B", "A", "B", "C"}
	if len(rec.records) != len(want) {
		t.Fatalf("expected records %v, got %v", want, rec.records)
	}
	for i := range want {
		if rec.records[i] != want[i] {
			t.Fatalf("expected records %v, got %v", want, rec.records)
		}
	}
}

func TestGatherRejectsInvalidGroups(t *testing.T) {
	noop := func(t *Task) Result { return t.Complete() }

	tests := []struct {
		name    string
		specs   []Spec
		wantErr error
	}{
		{
			name:    "nil step",
			specs:   []Spec{{Name: "A"}},
			wantErr: ErrNilStep,
		},
		{
			name: "duplicate name",
			specs: []Spec{
				{Name: "A", Step: noop},
				{Name: "A", Step: noop},
			},
			wantErr: ErrDuplicateName,
		},
		{
			name: "unknown dependency",
			specs: []Spec{
				{Name: "A", Step: noop, After: []string{"missing"}},
			},
			wantErr: ErrUnknownDependency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			err := s.Gather(tt.specs...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestStepReturningZeroResultFails(t *testing.T) {
	s := New()

	err := s.Gather(Spec{
		Name: "broken",
		Step: func(t *Task) Result { return Result{} },
	})
	if err == nil {
		t.Fatal("expected an error for a zero-value result")
	}
	if !strings.Contains(err.Error(), "invalid result") {
		t.Errorf("expected an invalid result error, got: %v", err)
	}
}

func TestGatherRejectsCycles(t *testing.T) {
	noop := func(t *Task) Result { return t.Complete() }

	s := New()
	err := s.Gather(
		Spec{Name: "A", Step: noop, After: []string{"B"}},
		Spec{Name: "B", Step: noop, After: []string{"A"}},
	)
	if err == nil {
		t.Fatal("expected cycle to be rejected")
	}
}

func TestSchedulersAreIndependent(t *testing.T) {
	recA := &recorder{}
	recB := &recorder{}

	s1 := New()
	s2 := New()

	if err := s1.Gather(recA.spec("one", 3, time.Millisecond)); err != nil {
		t.Fatal(err)
	}
	if err := s2.Gather(recB.spec("two", 2, time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	if len(recA.records) != 3 || len(recB.records) != 2 {
		t.Errorf("schedulers interfered: %v / %v", recA.records, recB.records)
	}
}

func TestTaskStatusTransitions(t *testing.T) {
	s := New()

	var observed []Status
	i := 0
	spec := Spec{
		Name: "watched",
		Step: func(t *Task) Result {
			observed = append(observed, t.Status())
			i++
			if i == 2 {
				return t.Complete()
			}
			return t.Suspend(time.Millisecond)
		},
	}

	if err := s.Gather(spec); err != nil {
		t.Fatal(err)
	}

	for i, st := range observed {
		if st != StatusRunning {
			t.Errorf("resumption %d: expected running, got %v", i, st)
		}
	}
}
