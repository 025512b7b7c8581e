// Package run executes a configured task group: it wires the scheduler to
// the event bus and fans events out to the journal and the structured log
// while the group runs.
package run

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/loopkit/loopkit/internal/config"
	"github.com/loopkit/loopkit/internal/events"
	"github.com/loopkit/loopkit/internal/journal"
	"github.com/loopkit/loopkit/internal/logging"
	"github.com/loopkit/loopkit/internal/sched"
)

// Options configures a run.
type Options struct {
	Out   io.Writer       // step output; defaults to os.Stdout
	Store journal.Store   // optional run journal
	Log   *logging.Logger // defaults to a discarding logger
	Clock clock.Clock     // optional; tests inject a mock
}

// Report summarizes one run.
type Report struct {
	RunID     string         // empty when journaling is disabled
	Steps     int            // total observed steps, all tasks
	PerTask   map[string]int // steps per task name
	Completed int
	Failed    int
	Skipped   int
	Duration  time.Duration
	Dropped   int64 // events lost to slow observers
}

// Execute runs the configured group. See ExecuteSpecs.
func Execute(ctx context.Context, cfg *config.RunnerConfig, opts Options) (*Report, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	bus := events.NewEventBus()
	specs := FromConfig(opts.Out, bus, cfg.Group)
	return executeOn(ctx, bus, specs, opts)
}

// ExecuteSpecs runs an explicit task group to completion, blocking until
// every task has finished. Specs that publish step events must share the
// given bus; the run closes it. The returned error is the first task
// failure; the Report is valid either way.
func ExecuteSpecs(ctx context.Context, bus *events.EventBus, specs []sched.Spec, opts Options) (*Report, error) {
	if bus == nil {
		bus = events.NewEventBus()
	}
	return executeOn(ctx, bus, specs, opts)
}

func executeOn(ctx context.Context, bus *events.EventBus, specs []sched.Spec, opts Options) (*Report, error) {
	log := opts.Log
	if log == nil {
		log = logging.Discard()
	}

	schedOpts := []sched.Option{sched.WithBus(bus)}
	if opts.Clock != nil {
		schedOpts = append(schedOpts, sched.WithClock(opts.Clock))
	}
	s := sched.New(schedOpts...)

	runID := ""
	if opts.Store != nil {
		id, err := opts.Store.BeginRun(ctx)
		if err != nil {
			return nil, err
		}
		runID = id
		log = log.WithRun(runID)
	}

	col := &collector{
		ctx:     ctx,
		runID:   runID,
		store:   opts.Store,
		log:     log,
		perTask: make(map[string]int),
	}

	ch := bus.SubscribeAll(1024)
	g := new(errgroup.Group)
	g.Go(func() error {
		col.consume(ch)
		return nil
	})

	log.Info("run started", "tasks", len(specs))
	start := time.Now()
	gatherErr := s.Gather(specs...)
	duration := time.Since(start)

	// Closing the bus ends the consumer once it has drained the channel.
	bus.Close()
	_ = g.Wait()

	if opts.Store != nil {
		status := journal.RunStatusCompleted
		if gatherErr != nil {
			status = journal.RunStatusFailed
		}
		// The run row must close even when ctx was canceled mid-run.
		if err := opts.Store.FinishRun(context.WithoutCancel(ctx), runID, status, gatherErr); err != nil {
			log.Warn("failed to close journal run", "error", err)
		}
	}

	if gatherErr != nil {
		log.Error("run failed", "error", gatherErr, "duration", duration)
	} else {
		log.Info("run finished", "steps", col.steps, "duration", duration)
	}

	report := &Report{
		RunID:     runID,
		Steps:     col.steps,
		PerTask:   col.perTask,
		Completed: col.completed,
		Failed:    col.failed,
		Skipped:   col.skipped,
		Duration:  duration,
		Dropped:   bus.Dropped(),
	}
	return report, gatherErr
}

// collector consumes bus events on a side goroutine, feeding the journal
// and the log. Journal write failures are logged and skipped; losing a
// history row must not disturb the run itself.
type collector struct {
	ctx       context.Context
	runID     string
	store     journal.Store
	log       *logging.Logger
	steps     int
	perTask   map[string]int
	completed int
	failed    int
	skipped   int
}

func (c *collector) consume(ch <-chan events.Event) {
	for ev := range ch {
		switch ev := ev.(type) {
		case events.TaskStartedEvent:
			c.log.Debug("task started", "task", ev.Name)
		case events.TaskStepEvent:
			c.steps++
			c.perTask[ev.Name]++
			c.log.Debug("task step", "task", ev.Name, "step", ev.Step)
			if c.store != nil {
				rec := journal.StepRecord{
					Seq:  c.steps,
					Task: ev.Name,
					Step: ev.Step,
					At:   ev.Timestamp,
				}
				if err := c.store.AppendStep(c.ctx, c.runID, rec); err != nil {
					c.log.Warn("failed to journal step", "task", ev.Name, "step", ev.Step, "error", err)
				}
			}
		case events.TaskCompletedEvent:
			c.completed++
			c.log.Info("task completed", "task", ev.Name, "duration", ev.Duration)
		case events.TaskFailedEvent:
			c.failed++
			c.log.Error("task failed", "task", ev.Name, "error", ev.Err)
		case events.TaskSkippedEvent:
			c.skipped++
			c.log.Warn("task skipped", "task", ev.Name)
		case events.GroupFinishedEvent:
			c.log.Debug("group finished",
				"total", ev.Total,
				"completed", ev.Completed,
				"failed", ev.Failed,
				"skipped", ev.Skipped,
			)
		}
	}
}
