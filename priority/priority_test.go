package priority

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

func TestHighPreemptsNormalAndLow(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop()

	low := s.NewQueue(Low, runloop.FIFO)
	normal := s.NewQueue(Normal, runloop.FIFO)
	high := s.NewQueue(High, runloop.FIFO)

	var order []string
	done := make(chan struct{}, 3)
	mk := func(name string) *job.Job {
		return job.New("", runnableFunc(func(*atomic.Bool) {
			order = append(order, name)
			done <- struct{}{}
		}))
	}

	// Enqueue low and normal first, to occupy the bands before the single
	// worker starts draining, then high - high must still come first.
	block := make(chan struct{})
	blockJob := job.New("", runnableFunc(func(*atomic.Bool) { <-block }))
	busy := s.NewQueue(High, runloop.FIFO)
	busy.Enq(blockJob)
	time.Sleep(10 * time.Millisecond) // let the lone worker pick it up

	low.Enq(mk("low"))
	normal.Enq(mk("normal"))
	high.Enq(mk("high"))
	close(block)

	for i := 0; i < 3; i++ {
		<-done
	}
	assert.Equal(t, []string{"high", "normal", "low"}, order)
}

func TestRoundRobinWithinBand(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop()

	qA := s.NewQueue(Normal, runloop.FIFO)
	qB := s.NewQueue(Normal, runloop.FIFO)

	var order []string
	done := make(chan struct{}, 4)
	mk := func(name string) *job.Job {
		return job.New("", runnableFunc(func(*atomic.Bool) {
			order = append(order, name)
			done <- struct{}{}
		}))
	}

	qA.Enq(mk("a1"))
	qA.Enq(mk("a2"))
	qB.Enq(mk("b1"))

	for i := 0; i < 3; i++ {
		<-done
	}
	// a1 dispatches first (qA added first); after running, qA still has
	// a2 pending so it's re-appended behind qB, giving b1 a turn before a2.
	assert.Equal(t, []string{"a1", "b1", "a2"}, order)
}

func TestFlushRemovesQueueFromBand(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop()

	q := s.NewQueue(Normal, runloop.FIFO)
	var ran atomic.Bool
	q.Enq(job.New("", runnableFunc(func(*atomic.Bool) { ran.Store(true) })))
	q.Flush() // may race the worker, but a second enqueue after flush must still work

	q2 := s.NewQueue(Normal, runloop.FIFO)
	done := make(chan struct{})
	q2.Enq(job.New("", runnableFunc(func(*atomic.Bool) { close(done) })))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

func TestDeqReturnsNilWhenEmpty(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop()
	q := s.NewQueue(Low, runloop.FIFO)
	require.Nil(t, q.Deq())
}
