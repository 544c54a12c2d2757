package substrate

import (
	"testing"

	"github.com/kogansys/substrate/jobqueue"
	"github.com/kogansys/substrate/runloop"
	"github.com/stretchr/testify/assert"
)

// These singletons are process-wide and once-guarded, so parameterization
// must happen before the very first accessor call in the whole test
// binary. Exercise that ordering explicitly in one test per singleton,
// each asserting idempotency on repeated calls.

func TestMainRunLoopParameterizeThenSingleton(t *testing.T) {
	ParameterizeMainRunLoop(runloop.Config{
		Name:       "test-main",
		Order:      runloop.LIFO,
		MaxPending: 8,
	})

	rl := MainRunLoop()
	assert.Same(t, rl, MainRunLoop())
}

func TestMainSystemRunLoopNilWithoutSystemParameterize(t *testing.T) {
	// the package-level once was consumed by the plain parameterization in
	// the test above, so the system-hosted accessor must report absence.
	MainRunLoop()
	assert.Nil(t, MainSystemRunLoop())
}

func TestGlobalPrioritySchedulerParameterizeThenSingleton(t *testing.T) {
	ParameterizeGlobalPriorityScheduler(2)

	s := GlobalPriorityScheduler()
	assert.Same(t, s, GlobalPriorityScheduler())
}

func TestTimerJobQueuePoolParameterizeThenSingleton(t *testing.T) {
	ParameterizeTimerJobQueuePool(jobqueue.PoolConfig{
		Name:    "test-timer-pool",
		MinSize: 1,
		MaxSize: 2,
		QueueConfig: jobqueue.Config{
			Order:      runloop.FIFO,
			Workers:    1,
			MaxPending: 4,
		},
	})

	p := TimerJobQueuePool()
	assert.Same(t, p, TimerJobQueuePool())
	assert.LessOrEqual(t, p.Size(), 2)
}
