package sched

import "sort"

// runqueue is the scheduler's run-set, kept ordered by (wakeAt, seq).
// Push inserts with a binary search; Pop removes the first task, i.e. the
// one that wakes earliest, earliest-submitted among equals.
type runqueue struct {
	items []*Task
}

func (q *runqueue) Empty() bool {
	return len(q.items) == 0
}

func (q *runqueue) Len() int {
	return len(q.items)
}

func (q *runqueue) Push(t *Task) {
	i := sort.Search(len(q.items), func(i int) bool {
		return t.less(q.items[i])
	})
	q.items = append(q.items, nil)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = t
}

func (q *runqueue) Pop() *Task {
	t := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return t
}
