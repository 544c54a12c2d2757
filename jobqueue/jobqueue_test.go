package jobqueue

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/kogansys/substrate/job"
	"github.com/kogansys/substrate/runloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runnableFunc func(done *atomic.Bool)

func (f runnableFunc) Execute(done *atomic.Bool) { f(done) }

func TestJobQueueRunsAcrossWorkers(t *testing.T) {
	q := New("q", Config{Order: runloop.FIFO, Workers: 4, MaxPending: 100})
	q.Start()
	defer q.StopAndWait(true)

	var count atomic.Int32
	const n = 20
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		j := job.New("", runnableFunc(func(*atomic.Bool) {
			count.Add(1)
			done <- struct{}{}
		}))
		require.NoError(t, q.EnqJob(j, false, 0))
	}
	for i := 0; i < n; i++ {
		<-done
	}
	assert.EqualValues(t, n, count.Load())
}

func TestJobQueueLifecycleHooks(t *testing.T) {
	var starts, stops atomic.Int32
	q := New("q", Config{
		Order:   runloop.FIFO,
		Workers: 3,
		Lifecycle: WorkerLifecycle{
			OnStart: func(int) { starts.Add(1) },
			OnStop:  func(int) { stops.Add(1) },
		},
	})
	q.Start()
	q.StopAndWait(true)

	assert.EqualValues(t, 3, starts.Load())
	assert.EqualValues(t, 3, stops.Load())
}

func TestPoolReusesReleasedQueue(t *testing.T) {
	pool := NewPool(PoolConfig{
		Name:    "pool",
		MinSize: 1,
		MaxSize: 2,
		QueueConfig: Config{
			Order:      runloop.FIFO,
			Workers:    1,
			MaxPending: 10,
		},
	})
	defer pool.Close()

	q1 := pool.GetQueue(0, 0)
	require.NotNil(t, q1)
	assert.Equal(t, 1, pool.Size())
	pool.ReleaseQueue(q1)

	q2 := pool.GetQueue(0, 0)
	require.NotNil(t, q2)
	assert.Same(t, q1, q2)
	assert.Equal(t, 1, pool.Size())
	pool.ReleaseQueue(q2)
}

func TestPoolNeverExceedsMaxSize(t *testing.T) {
	pool := NewPool(PoolConfig{
		Name:    "pool",
		MinSize: 0,
		MaxSize: 1,
		QueueConfig: Config{
			Order:      runloop.FIFO,
			Workers:    1,
			MaxPending: 10,
		},
	})
	defer pool.Close()

	q1 := pool.GetQueue(0, 0)
	require.NotNil(t, q1)

	q2 := pool.GetQueue(2, 5*time.Millisecond)
	assert.Nil(t, q2)

	pool.ReleaseQueue(q1)
	q3 := pool.GetQueue(0, 0)
	assert.NotNil(t, q3)
}

func TestPoolIdleReapRespectsMinSize(t *testing.T) {
	pool := NewPool(PoolConfig{
		Name:        "pool",
		MinSize:     0,
		MaxSize:     2,
		IdleTimeout: 20 * time.Millisecond,
		QueueConfig: Config{
			Order:      runloop.FIFO,
			Workers:    1,
			MaxPending: 10,
		},
	})
	defer pool.Close()

	q1 := pool.GetQueue(0, 0)
	require.NotNil(t, q1)
	pool.ReleaseQueue(q1)
	require.Equal(t, 1, pool.Size())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, pool.Size())
}
