package scheduler

import (
	"container/heap"
	"sync/atomic"
	"time"

	"github.com/kogansys/substrate/job"
	"github.com/kogansys/substrate/timeutil"
)

// Scheduler holds a single deadline min-heap, protected by a spin-lock
// (the heap is touched only briefly - push, pop-while-due, re-arm), and a
// single time.Timer. Run-loop and job-queue scheduling differ only in the
// type satisfying Target, not in the scheduling logic, so one Scheduler
// serves both.
type Scheduler struct {
	lock timeutil.SpinLock
	heap entryHeap
	seq  atomic.Uint64

	timer *time.Timer
}

// New constructs an idle Scheduler; no timer is armed until the first
// Schedule call.
func New() *Scheduler {
	return &Scheduler{}
}

// Schedule inserts j, to be enqueued onto target no earlier than
// now+relativeDelay, and returns j's id. If the new entry becomes the
// earliest deadline, the single timer is re-armed.
func (s *Scheduler) Schedule(target Target, j *job.Job, relativeDelay time.Duration) string {
	s.lock.Lock()
	defer s.lock.Unlock()

	e := &entry{
		target:   target,
		j:        j,
		deadline: timeutil.Now().Add(relativeDelay),
		seq:      s.seq.Add(1),
	}
	wasEarliest := s.heap.Len() == 0 || e.deadline.Before(s.heap[0].deadline)
	heap.Push(&s.heap, e)
	if wasEarliest {
		s.rearm(relativeDelay)
	}
	return j.ID()
}

// CancelJob removes the pending entry for the given job id, if any,
// re-arming the timer if this removed the head.
func (s *Scheduler) CancelJob(id string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.removeWhere(func(e *entry) bool { return e.j.ID() == id })
}

// CancelAllFor removes every pending entry targeting target, re-arming the
// timer if this removed the head.
func (s *Scheduler) CancelAllFor(target Target) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.removeWhere(func(e *entry) bool { return e.target == target })
}

func (s *Scheduler) removeWhere(match func(*entry) bool) {
	if s.heap.Len() == 0 {
		return
	}
	for i := 0; i < s.heap.Len(); {
		if match(s.heap[i]) {
			heap.Remove(&s.heap, i)
			continue
		}
		i++
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.heap.Len() > 0 {
		s.rearm(s.heap[0].deadline.Sub(timeutil.Now()))
	}
}

// Clear stops the timer and drops every pending entry.
func (s *Scheduler) Clear() {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.heap = nil
}

func (s *Scheduler) rearm(delay time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	if delay < 0 {
		delay = 0
	}
	s.timer = time.AfterFunc(delay, s.fire)
}

// fire is the timer callback: take the lock, pop and dispatch every entry
// whose deadline has arrived, then re-arm for the new head if any remains.
func (s *Scheduler) fire() {
	s.lock.Lock()
	now := timeutil.Now()
	var due []*entry
	for s.heap.Len() > 0 && !s.heap[0].deadline.After(now) {
		due = append(due, heap.Pop(&s.heap).(*entry))
	}
	if s.heap.Len() > 0 {
		s.rearm(s.heap[0].deadline.Sub(now))
	}
	s.lock.Unlock()

	for _, e := range due {
		_ = e.target.EnqJob(e.j, false, 0)
	}
}

// Len reports the number of pending (not-yet-due) entries.
func (s *Scheduler) Len() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.heap.Len()
}
