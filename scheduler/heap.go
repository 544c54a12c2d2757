// Package scheduler implements deadline-ordered dispatch of jobs onto a
// target (a runloop.RunLoop or a jobqueue.JobQueue) via a single min-heap
// and a single timer.
package scheduler

import (
	"time"

	"github.com/kogansys/substrate/job"
)

// Target is whatever a scheduled job is ultimately enqueued onto.
type Target interface {
	EnqJob(j *job.Job, wait bool, timeout time.Duration) error
}

// entry is one heap element: a job due at deadline on target.
type entry struct {
	target   Target
	j        *job.Job
	deadline time.Time
	seq      uint64 // insertion order, breaks deadline ties
	index    int    // heap.Interface bookkeeping
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, k int) bool {
	if h[i].deadline.Equal(h[k].deadline) {
		return h[i].seq < h[k].seq
	}
	return h[i].deadline.Before(h[k].deadline)
}

func (h entryHeap) Swap(i, k int) {
	h[i], h[k] = h[k], h[i]
	h[i].index = i
	h[k].index = k
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
