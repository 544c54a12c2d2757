// Package substrate provides the process-wide singleton accessors:
// MainRunLoop, GlobalPriorityScheduler, and TimerJobQueuePool. Each
// follows a "parameterize before first use" pattern - a once-guarded
// static configuration struct, consulted the first time the corresponding
// accessor is called, and inert afterward.
package substrate

import (
	"sync"

	"github.com/kogansys/substrate/jobqueue"
	"github.com/kogansys/substrate/priority"
	"github.com/kogansys/substrate/runloop"
)

var (
	mainRunLoopOnce   sync.Once
	mainRunLoop       *runloop.RunLoop
	mainSystemRunLoop *runloop.SystemRunLoop
	mainRunLoopParams = runloop.SystemConfig{
		Config: runloop.Config{
			Name:       "MainRunLoop",
			Order:      runloop.FIFO,
			MaxPending: 0,
		},
	}
)

// ParameterizeMainRunLoop configures the MainRunLoop singleton's
// construction arguments. Must be called before the first call to
// MainRunLoop; calls after that have no effect.
func ParameterizeMainRunLoop(cfg runloop.Config) {
	mainRunLoopParams = runloop.SystemConfig{Config: cfg}
}

// ParameterizeMainSystemRunLoop configures the MainRunLoop singleton as the
// system-hosted variant, interleaving a native event source with pending
// jobs. Must be called before the first call to MainRunLoop or
// MainSystemRunLoop.
func ParameterizeMainSystemRunLoop(cfg runloop.SystemConfig) {
	mainRunLoopParams = cfg
}

func initMainRunLoop() {
	mainRunLoopOnce.Do(func() {
		if mainRunLoopParams.Processor != nil || mainRunLoopParams.Events != nil {
			mainSystemRunLoop = runloop.NewSystem("main", mainRunLoopParams)
			mainRunLoop = mainSystemRunLoop.RunLoop
		} else {
			mainRunLoop = runloop.New("main", mainRunLoopParams.Config)
		}
	})
}

// MainRunLoop returns the process-wide main-thread run loop, constructing
// it (from whatever ParameterizeMainRunLoop or ParameterizeMainSystemRunLoop
// configured, or the FIFO/unbounded defaults otherwise) on first call. The
// caller remains responsible for calling Start, and decides which
// goroutine blocks hosting it. When the system-hosted variant was
// parameterized, Start must be called via MainSystemRunLoop, not on the
// value returned here.
func MainRunLoop() *runloop.RunLoop {
	initMainRunLoop()
	return mainRunLoop
}

// MainSystemRunLoop returns the system-hosted main run loop, or nil when the
// singleton was not parameterized with a native event source or processor.
func MainSystemRunLoop() *runloop.SystemRunLoop {
	initMainRunLoop()
	return mainSystemRunLoop
}

var (
	priorityOnce       sync.Once
	globalPriority     *priority.Scheduler
	priorityMaxWorkers = 4
)

// ParameterizeGlobalPriorityScheduler configures the
// GlobalPriorityScheduler singleton's worker cap. Must be called before
// the first call to GlobalPriorityScheduler.
func ParameterizeGlobalPriorityScheduler(maxWorkers int) {
	priorityMaxWorkers = maxWorkers
}

// GlobalPriorityScheduler returns the process-wide Priority Scheduler,
// constructing it on first call.
func GlobalPriorityScheduler() *priority.Scheduler {
	priorityOnce.Do(func() {
		globalPriority = priority.NewScheduler(priorityMaxWorkers)
	})
	return globalPriority
}

var (
	timerPoolOnce   sync.Once
	timerPool       *jobqueue.Pool
	timerPoolParams = jobqueue.PoolConfig{
		Name:    "TimerJobQueuePool",
		MinSize: 1,
		MaxSize: 4,
		QueueConfig: jobqueue.Config{
			Order:      runloop.FIFO,
			Workers:    1,
			MaxPending: 64,
		},
	}
)

// ParameterizeTimerJobQueuePool configures the TimerJobQueuePool
// singleton's pool sizing. Must be called before the first call to
// TimerJobQueuePool.
func ParameterizeTimerJobQueuePool(cfg jobqueue.PoolConfig) {
	timerPoolParams = cfg
}

// TimerJobQueuePool returns the process-wide pool of job queues used to
// deliver Timer alarms, constructing it on first call.
func TimerJobQueuePool() *jobqueue.Pool {
	timerPoolOnce.Do(func() {
		timerPool = jobqueue.NewPool(timerPoolParams)
	})
	return timerPool
}
