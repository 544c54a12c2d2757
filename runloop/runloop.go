package runloop

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kogansys/substrate/job"
	"github.com/kogansys/substrate/timeutil"
)

// Ordering selects FIFO or LIFO dispatch of pending jobs.
type Ordering int

const (
	// FIFO dispatches jobs in the order they were enqueued.
	FIFO Ordering = iota
	// LIFO dispatches the most recently enqueued job first.
	LIFO
)

// Stats is a snapshot of a run loop's lifetime job accounting.
type Stats struct {
	JobCount     uint64
	TotalJobTime time.Duration
	LastJobID    string
	LastJobTime  time.Duration
}

// Config configures a RunLoop at construction.
type Config struct {
	Name  string
	Order Ordering
	// MaxPending bounds the pending queue; zero means unbounded.
	MaxPending int
	// DeadlockDetection enables the same-goroutine assertion on EnqJob*
	// (Start is not checked); off by default since it costs a runtime.Stack
	// call per enqueue.
	DeadlockDetection bool
}

// RunLoop is a FIFO or LIFO queue of pending jobs drained by a single
// worker goroutine started by Start. jobqueue.JobQueue builds N-worker
// queues out of it, SystemRunLoop hosts it alongside a native event
// source, and priority.Scheduler builds per-priority-band logical queues
// using the same enqueue contract.
type RunLoop struct {
	id         string
	name       string
	order      Ordering
	maxPending int

	deadlockDetection bool
	hostGoroutine     atomic.Uint64 // 0 == not started

	mu       sync.Mutex
	pending  *list.List // of *job.Job
	running  map[string]*job.Job
	notEmpty *sync.Cond
	idleCond *sync.Cond

	done    atomic.Bool
	started atomic.Bool

	// onWake, when set, is invoked (outside the lock) after every enqueue
	// and on Stop, so a select-based host like SystemRunLoop can wake from
	// waiting on its native event source. Nil for the cond-based worker.
	onWake func()

	stats Stats
}

// New constructs a RunLoop. id identifies the loop for Job.RunLoopID.
func New(id string, cfg Config) *RunLoop {
	rl := &RunLoop{
		id:                id,
		name:              cfg.Name,
		order:             cfg.Order,
		maxPending:        cfg.MaxPending,
		deadlockDetection: cfg.DeadlockDetection,
		pending:           list.New(),
		running:           make(map[string]*job.Job),
	}
	rl.notEmpty = sync.NewCond(&rl.mu)
	rl.idleCond = sync.NewCond(&rl.mu)
	return rl
}

func (rl *RunLoop) ID() string   { return rl.id }
func (rl *RunLoop) Name() string { return rl.name }

// Start drains pending jobs on the calling goroutine until Stop is called.
// Must be called on the goroutine that will host work. Calling it from
// several goroutines at once makes each of them a worker draining the same
// pending queue (jobqueue.JobQueue does this); the same-goroutine checks in
// EnqJob* and Stop then recognize only the goroutine that called Start last.
func (rl *RunLoop) Start() {
	rl.hostGoroutine.Store(goroutineID())
	rl.started.Store(true)

	rl.mu.Lock()
	for {
		for rl.pending.Len() == 0 && !rl.done.Load() {
			rl.notEmpty.Wait()
		}
		if rl.pending.Len() == 0 && rl.done.Load() {
			rl.mu.Unlock()
			return
		}
		j := rl.popLocked()
		rl.mu.Unlock()

		rl.runJob(j)

		rl.mu.Lock()
	}
}

// popLocked removes the next job from the pending queue and moves it to the
// running set. Caller holds rl.mu and has checked pending is non-empty.
func (rl *RunLoop) popLocked() *job.Job {
	front := rl.pending.Front()
	rl.pending.Remove(front)
	j := front.Value.(*job.Job)
	rl.running[j.ID()] = j
	return j
}

// runJob executes j on the calling goroutine and settles the run loop's
// accounting afterward, broadcasting idleCond if the loop became idle.
func (rl *RunLoop) runJob(j *job.Job) {
	start := timeutil.Now()
	if j.IsCancelled() {
		// Cancelled while still pending: owed Completed, not an execution.
		j.Skip()
	} else {
		j.Execute(&rl.done)
	}
	elapsed := timeutil.Now().Sub(start)

	rl.mu.Lock()
	delete(rl.running, j.ID())
	rl.stats.JobCount++
	rl.stats.TotalJobTime += elapsed
	rl.stats.LastJobID = j.ID()
	rl.stats.LastJobTime = elapsed
	if rl.pending.Len() == 0 && len(rl.running) == 0 {
		rl.idleCond.Broadcast()
	}
	rl.mu.Unlock()
}

// dispatchNext pops and executes one pending job on the calling goroutine.
// Returns false, without blocking, when the pending queue is empty. This is
// the narrow dispatch contract the system-hosted variant builds on.
func (rl *RunLoop) dispatchNext() bool {
	rl.mu.Lock()
	if rl.pending.Len() == 0 {
		rl.mu.Unlock()
		return false
	}
	j := rl.popLocked()
	rl.mu.Unlock()

	rl.runJob(j)
	return true
}

// Stop sets the done flag and wakes the worker. If cancelPending, every
// currently pending job is marked Cancelled (and reaches Completed without
// ever executing); otherwise pending jobs are still drained to Completed
// by the worker, observing the done flag via ShouldStop. Either way, once
// Start has been called, Stop blocks until the currently-running job (if
// any) and every previously-enqueued job has reached Completed before
// returning - the universal invariant that after R.Stop(true) returns,
// every such job's state is Completed. The wait is skipped when Start has
// never been called (jobs left pending by Stop(false) then stay Pending) and
// when Stop is called from the goroutine hosting the loop.
func (rl *RunLoop) Stop(cancelPending bool) {
	rl.mu.Lock()
	rl.done.Store(true)
	var drained []*job.Job
	if cancelPending {
		for e := rl.pending.Front(); e != nil; e = e.Next() {
			drained = append(drained, e.Value.(*job.Job))
		}
		rl.pending.Init()
	}
	rl.notEmpty.Broadcast()
	// Draining pending here (rather than through the worker loop) can itself
	// bring the loop to idle - e.g. the worker is parked in notEmpty.Wait()
	// with an empty running set. Broadcast unconditionally so any
	// WaitForIdle caller already blocked re-checks its predicate; a spurious
	// wakeup on a cond with no waiters is free.
	rl.idleCond.Broadcast()
	rl.mu.Unlock()
	if rl.onWake != nil {
		rl.onWake()
	}

	for _, j := range drained {
		j.Cancel()
		j.Skip()
	}

	// Skip the wait if called from the worker goroutine itself (e.g. a job
	// stopping its own loop): the worker can't reach idle while blocked here.
	if rl.started.Load() && goroutineID() != rl.hostGoroutine.Load() {
		rl.mu.Lock()
		for rl.pending.Len() != 0 || len(rl.running) != 0 {
			rl.idleCond.Wait()
		}
		rl.mu.Unlock()
	}
}

// Reset clears the done flag so the loop can be started again.
func (rl *RunLoop) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.done.Store(false)
	rl.started.Store(false)
	rl.hostGoroutine.Store(0)
}

func (rl *RunLoop) assertNotHostGoroutine() error {
	if !rl.deadlockDetection || !rl.started.Load() {
		return nil
	}
	if goroutineID() == rl.hostGoroutine.Load() {
		return ErrSameThread
	}
	return nil
}

// EnqJob adds j to the pending queue in the loop's ordering: at the back
// for FIFO, at the front for LIFO. If wait, blocks on j's completion up to
// timeout (timeutil.Infinite for no limit) after enqueueing.
func (rl *RunLoop) EnqJob(j *job.Job, wait bool, timeout time.Duration) error {
	return rl.enq(j, false, wait, timeout)
}

// EnqJobFront pushes j to the front of the pending queue, so it is the
// very next job dispatched regardless of ordering.
func (rl *RunLoop) EnqJobFront(j *job.Job, wait bool, timeout time.Duration) error {
	return rl.enq(j, true, wait, timeout)
}

func (rl *RunLoop) enq(j *job.Job, front bool, wait bool, timeout time.Duration) error {
	if err := rl.assertNotHostGoroutine(); err != nil {
		return err
	}

	rl.mu.Lock()
	if rl.done.Load() {
		rl.mu.Unlock()
		return ErrShuttingDown
	}
	if rl.maxPending > 0 && rl.pending.Len() >= rl.maxPending {
		rl.mu.Unlock()
		return ErrCapacity
	}
	j.Reset(rl.id)
	if front || rl.order == LIFO {
		rl.pending.PushFront(j)
	} else {
		rl.pending.PushBack(j)
	}
	rl.notEmpty.Signal()
	rl.mu.Unlock()
	if rl.onWake != nil {
		rl.onWake()
	}

	if wait {
		j.WaitCompleted(timeout)
	}
	return nil
}

// GetJobWithID returns the pending or running job with the given id, or
// nil.
func (rl *RunLoop) GetJobWithID(id string) *job.Job {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if j, ok := rl.running[id]; ok {
		return j
	}
	for e := rl.pending.Front(); e != nil; e = e.Next() {
		if j := e.Value.(*job.Job); j.ID() == id {
			return j
		}
	}
	return nil
}

// WaitForJob blocks until the job with id completes or timeout elapses.
// Returns false if no such job is known and not completed.
func (rl *RunLoop) WaitForJob(id string, timeout time.Duration) bool {
	j := rl.GetJobWithID(id)
	if j == nil {
		return false
	}
	return j.WaitCompleted(timeout)
}

// WaitForJobs blocks until every job matching predicate (among pending and
// running jobs at call time) completes, or timeout elapses overall.
func (rl *RunLoop) WaitForJobs(predicate func(*job.Job) bool, timeout time.Duration) bool {
	matches := rl.snapshotMatching(predicate)
	deadline := deadlineFor(timeout)
	for _, j := range matches {
		if !j.WaitCompleted(remaining(deadline, timeout)) {
			return false
		}
	}
	return true
}

// WaitForIdle blocks until the run loop has no pending and no running
// jobs, or timeout elapses.
func (rl *RunLoop) WaitForIdle(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		rl.mu.Lock()
		for rl.pending.Len() != 0 || len(rl.running) != 0 {
			rl.idleCond.Wait()
		}
		rl.mu.Unlock()
		close(done)
	}()
	if timeout == timeutil.Infinite {
		<-done
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// CancelJob cancels the pending or running job with the given id, if any.
func (rl *RunLoop) CancelJob(id string) {
	if j := rl.GetJobWithID(id); j != nil {
		j.Cancel()
	}
}

// CancelJobs cancels every pending or running job matching predicate.
func (rl *RunLoop) CancelJobs(predicate func(*job.Job) bool) {
	for _, j := range rl.snapshotMatching(predicate) {
		j.Cancel()
	}
}

// CancelAllJobs cancels every pending and running job.
func (rl *RunLoop) CancelAllJobs() {
	rl.CancelJobs(func(*job.Job) bool { return true })
}

// GetStats returns a snapshot of lifetime job accounting.
func (rl *RunLoop) GetStats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.stats
}

// IsIdle reports whether there are no pending and no running jobs.
func (rl *RunLoop) IsIdle() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.pending.Len() == 0 && len(rl.running) == 0
}

func (rl *RunLoop) snapshotMatching(predicate func(*job.Job) bool) []*job.Job {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	var out []*job.Job
	for _, j := range rl.running {
		if predicate(j) {
			out = append(out, j)
		}
	}
	for e := rl.pending.Front(); e != nil; e = e.Next() {
		if j := e.Value.(*job.Job); predicate(j) {
			out = append(out, j)
		}
	}
	return out
}

func deadlineFor(timeout time.Duration) time.Time {
	if timeout == timeutil.Infinite {
		return time.Time{}
	}
	return timeutil.Now().Add(timeout)
}

func remaining(deadline time.Time, original time.Duration) time.Duration {
	if original == timeutil.Infinite {
		return timeutil.Infinite
	}
	d := deadline.Sub(timeutil.Now())
	if d < 0 {
		return 0
	}
	return d
}
