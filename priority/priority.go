// Package priority implements the priority scheduler: many logical queues
// multiplexed over a bounded worker pool with O(1) priority-band
// round-robin dispatch.
package priority

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/kogansys/substrate/corelog"
	"github.com/kogansys/substrate/job"
	"github.com/kogansys/substrate/runloop"
)

// Priority is one of the three dispatch bands. High strictly preempts
// Normal, which strictly preempts Low; there is intentionally no fairness
// guarantee between bands. Priority inversion is the caller's
// responsibility.
type Priority int

const (
	Low Priority = iota
	Normal
	High
)

// Queue is one logical FIFO/LIFO job queue belonging to a Scheduler. Queues
// are only ever drained by the scheduler's own worker pool; Enq/EnqFront
// may be called from anywhere.
type Queue struct {
	priority Priority
	order    runloop.Ordering
	sched    *Scheduler

	mu       sync.Mutex
	jobs     *list.List // of *job.Job
	inActive bool       // linked into its priority band list
	inFlight bool       // a worker currently owns exactly one job from this queue
	elem     *list.Element
}

// NewQueue constructs a logical queue of the given priority, owned by
// sched. The queue does nothing until Enq/EnqFront is called.
func (s *Scheduler) NewQueue(priority Priority, order runloop.Ordering) *Queue {
	return &Queue{
		priority: priority,
		order:    order,
		sched:    s,
		jobs:     list.New(),
	}
}

// Enq adds j in the queue's own ordering (back for FIFO, front for LIFO);
// if the queue isn't already linked into its band (and
// isn't currently being drained), it is added and a worker is woken.
func (q *Queue) Enq(j *job.Job) {
	q.enq(j, false)
}

// EnqFront pushes j to the front of the queue's own ordering.
func (q *Queue) EnqFront(j *job.Job) {
	q.enq(j, true)
}

func (q *Queue) enq(j *job.Job, front bool) {
	q.mu.Lock()
	if front || q.order == runloop.LIFO {
		q.jobs.PushFront(j)
	} else {
		q.jobs.PushBack(j)
	}
	q.mu.Unlock()

	if q.sched.addQueueIfNeeded(q) {
		q.sched.spawnWorker()
	}
}

// Deq removes and returns the next job from the queue, or nil if empty.
func (q *Queue) Deq() *job.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.jobs.Len() == 0 {
		return nil
	}
	front := q.jobs.Front()
	q.jobs.Remove(front)
	return front.Value.(*job.Job)
}

// Flush deletes all pending jobs and removes the queue from whichever band
// it's linked to.
func (q *Queue) Flush() {
	q.mu.Lock()
	q.jobs.Init()
	q.mu.Unlock()
	q.sched.removeQueue(q)
}

func (q *Queue) hasPending() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.jobs.Len() > 0
}

// Scheduler multiplexes many Queues over a bounded worker pool using a
// priority-based, O(1), round-robin-within-band policy.
type Scheduler struct {
	mu         sync.Mutex
	bands      [3]*list.List // Low, Normal, High
	workers    int           // Scheduler.mu-protected, not atomic.Int32 - see addQueueIfNeeded/getNextQueue
	maxWorkers int

	done atomic.Bool
	wg   sync.WaitGroup
}

// NewScheduler constructs a Scheduler backed by up to maxWorkers
// concurrent worker goroutines, spun up on demand as queues need draining.
func NewScheduler(maxWorkers int) *Scheduler {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	s := &Scheduler{maxWorkers: maxWorkers}
	for i := range s.bands {
		s.bands[i] = list.New()
	}
	return s
}

func (s *Scheduler) band(p Priority) *list.List { return s.bands[p] }

// addQueueIfNeeded links q into its priority band's back unless it's already
// linked or being drained, and reports whether a new worker should be spun
// up to service it. The inActive/inFlight check, the link, and the
// spawn-or-not decision against workers/maxWorkers all happen under one
// lock acquisition - shared with getNextQueue's matching decision to retire
// a worker when it finds nothing left to drain - so a queue enqueued in the
// gap between a worker finding no work and that worker actually retiring can
// never be stranded without a worker to pick it up (see getNextQueue).
func (s *Scheduler) addQueueIfNeeded(q *Queue) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q.inActive || q.inFlight {
		return false
	}
	q.inActive = true
	q.elem = s.band(q.priority).PushBack(q)
	if s.workers >= s.maxWorkers {
		return false
	}
	s.workers++
	return true
}

func (s *Scheduler) removeQueue(q *Queue) {
	s.mu.Lock()
	if q.inActive && q.elem != nil {
		s.band(q.priority).Remove(q.elem)
		q.inActive = false
		q.elem = nil
	}
	s.mu.Unlock()
}

// getNextQueue is the O(1) decision procedure: pop from high if non-empty,
// else normal, else low; mark the popped queue in-flight. If every band is
// empty, it retires the calling worker (decrementing workers) in the same
// critical section - see addQueueIfNeeded.
func (s *Scheduler) getNextQueue() *Queue {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p := High; p >= Low; p-- {
		band := s.band(p)
		if front := band.Front(); front != nil {
			q := front.Value.(*Queue)
			band.Remove(front)
			q.inActive = false
			q.elem = nil
			q.inFlight = true
			return q
		}
	}
	s.workers--
	return nil
}

func (s *Scheduler) spawnWorker() {
	s.wg.Add(1)
	go s.runWorker()
}

func (s *Scheduler) runWorker() {
	defer s.wg.Done()
	for {
		if s.done.Load() {
			s.mu.Lock()
			s.workers--
			s.mu.Unlock()
			return
		}
		q := s.getNextQueue()
		if q == nil {
			return
		}
		if j := q.Deq(); j != nil {
			j.Execute(&s.done)
			if j.IsFailed() {
				corelog.Default().WarnfLimited("priority scheduler: job %s failed: %v", j.ID(), j.Err())
			}
		}

		s.finishQueue(q)
	}
}

// finishQueue clears q's in-flight flag and, if it still has pending jobs,
// re-links it at its band's back (round-robin) without spinning up another
// worker - this worker continues draining. inFlight, inActive and elem are
// all Scheduler.mu-protected state, so the clear-and-maybe-relink happens
// under one acquisition rather than racing with addQueueIfNeeded/getNextQueue.
func (s *Scheduler) finishQueue(q *Queue) {
	s.mu.Lock()
	q.inFlight = false
	stillPending := q.hasPending()
	if stillPending {
		q.inActive = true
		q.elem = s.band(q.priority).PushBack(q)
	}
	s.mu.Unlock()
}

// Stop marks every worker done; workers exit once their current job (if
// any) and priority-band scan complete. It does not flush queues.
func (s *Scheduler) Stop() {
	s.done.Store(true)
	s.wg.Wait()
}
