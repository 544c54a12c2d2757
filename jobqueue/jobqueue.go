// Package jobqueue builds multi-worker job queues on top of
// runloop.RunLoop, and a pool that lends queues out on demand with a
// min/max/idle-reap policy.
package jobqueue

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/kogansys/substrate/runloop"
)

// WorkerLifecycle holds optional per-worker init/teardown hooks, run on the
// worker goroutine immediately after it starts and immediately before it
// exits, respectively - e.g. for thread-local setup or metrics.
type WorkerLifecycle struct {
	OnStart func(workerIndex int)
	OnStop  func(workerIndex int)
}

// Config configures a JobQueue.
type Config struct {
	Name       string
	Order      runloop.Ordering
	MaxPending int
	// Workers is the number of concurrent worker goroutines; at least 1.
	Workers int
	// CPUAffinity, if non-empty, is passed to the OS scheduler for every
	// worker via runtime.LockOSThread + (on Linux) unix.SchedSetaffinity.
	CPUAffinity []int
	// WorkerPriority adjusts each worker thread's scheduling priority (a
	// nice value: negative is higher priority), applied best-effort on
	// Linux. Zero leaves the OS default.
	WorkerPriority int
	Lifecycle      WorkerLifecycle
}

// JobQueue is a RunLoop drained by N >= 1 worker goroutines instead of
// one.
type JobQueue struct {
	*runloop.RunLoop

	cfg     Config
	wg      sync.WaitGroup
	started atomic.Bool
}

// New constructs a JobQueue. id identifies the underlying run loop.
func New(id string, cfg Config) *JobQueue {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &JobQueue{
		RunLoop: runloop.New(id, runloop.Config{
			Name:       cfg.Name,
			Order:      cfg.Order,
			MaxPending: cfg.MaxPending,
		}),
		cfg: cfg,
	}
}

// Start launches cfg.Workers worker goroutines, each draining the shared
// pending queue, and returns immediately (unlike runloop.RunLoop.Start,
// which blocks the calling goroutine).
func (q *JobQueue) Start() {
	if !q.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.runWorker(i)
	}
}

func (q *JobQueue) runWorker(index int) {
	defer q.wg.Done()
	if len(q.cfg.CPUAffinity) > 0 || q.cfg.WorkerPriority != 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		if len(q.cfg.CPUAffinity) > 0 {
			applyAffinity(q.cfg.CPUAffinity)
		}
		if q.cfg.WorkerPriority != 0 {
			applyPriority(q.cfg.WorkerPriority)
		}
	}
	if q.cfg.Lifecycle.OnStart != nil {
		q.cfg.Lifecycle.OnStart(index)
	}
	defer func() {
		if q.cfg.Lifecycle.OnStop != nil {
			q.cfg.Lifecycle.OnStop(index)
		}
	}()
	q.RunLoop.Start()
}

// StopAndWait stops the underlying run loop and waits for every worker
// goroutine to exit.
func (q *JobQueue) StopAndWait(cancelPending bool) {
	q.RunLoop.Stop(cancelPending)
	q.wg.Wait()
	q.started.Store(false)
}

// queueSeq is a monotonically increasing counter used to name queues created
// on demand by a Pool.
var queueSeq atomic.Uint64

func nextQueueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, queueSeq.Add(1))
}
