package run

import (
	"fmt"
	"io"
	"time"

	"github.com/loopkit/loopkit/internal/config"
	"github.com/loopkit/loopkit/internal/events"
	"github.com/loopkit/loopkit/internal/sched"
)

// Printer returns a task spec that writes name to w once per step,
// suspending for interval between consecutive steps (and not after the
// last one). Each step also publishes a TaskStepEvent when bus is
// non-nil, which is how the journal and the log observe the run.
func Printer(w io.Writer, bus *events.EventBus, name string, steps int, interval time.Duration) sched.Spec {
	i := 0
	return sched.Spec{
		Name: name,
		Step: func(t *sched.Task) sched.Result {
			if i >= steps {
				return t.Complete()
			}
			i++
			if _, err := fmt.Fprintln(w, name); err != nil {
				return t.Fail(fmt.Errorf("writing step output: %w", err))
			}
			if bus != nil {
				bus.Publish(events.TopicTask, events.TaskStepEvent{
					Name:      name,
					Step:      i,
					Timestamp: time.Now(),
				})
			}
			if i == steps {
				return t.Complete()
			}
			return t.Suspend(interval)
		},
	}
}

// FromConfig builds printer specs for a configured group.
func FromConfig(w io.Writer, bus *events.EventBus, group []config.TaskConfig) []sched.Spec {
	specs := make([]sched.Spec, len(group))
	for i, tc := range group {
		spec := Printer(w, bus, tc.Name, tc.Steps, tc.Interval.Std())
		spec.After = append([]string(nil), tc.After...)
		specs[i] = spec
	}
	return specs
}
