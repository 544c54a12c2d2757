package runloop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/kogansys/substrate/job"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemRunLoopDispatchesJobs(t *testing.T) {
	s := NewSystem("sys", SystemConfig{Config: Config{Order: FIFO}})
	go s.Start()
	defer s.Stop(true)

	var ran atomic.Bool
	j := job.New("", runnableFunc(func(*atomic.Bool) { ran.Store(true) }))
	require.NoError(t, s.EnqJob(j, true, time.Second))
	assert.True(t, ran.Load())
	assert.True(t, j.IsSucceeded())
}

func TestSystemRunLoopDeliversNativeEvents(t *testing.T) {
	events := make(chan any, 4)
	got := make(chan any, 4)
	s := NewSystem("sys", SystemConfig{
		Config: Config{Order: FIFO},
		Processor: func(userData any, event any) EventAction {
			assert.Equal(t, "ctx", userData)
			got <- event
			return ContinueEvents
		},
		UserData: "ctx",
		Events:   events,
	})
	go s.Start()
	defer s.Stop(true)

	events <- 1
	events <- 2
	assert.Equal(t, 1, <-got)
	assert.Equal(t, 2, <-got)

	// jobs still dispatch while the native arm is live.
	j := job.New("", runnableFunc(func(*atomic.Bool) {}))
	require.NoError(t, s.EnqJob(j, true, time.Second))
	assert.True(t, j.IsSucceeded())
}

func TestSystemRunLoopProcessorStops(t *testing.T) {
	events := make(chan any, 1)
	s := NewSystem("sys", SystemConfig{
		Config: Config{Order: FIFO},
		Processor: func(_ any, event any) EventAction {
			if event == "quit" {
				return StopEvents
			}
			return ContinueEvents
		},
		Events: events,
	})
	started := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		close(started)
		s.Start()
		close(stopped)
	}()
	<-started

	events <- "quit"
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on StopEvents")
	}

	j := job.New("", runnableFunc(func(*atomic.Bool) {}))
	assert.ErrorIs(t, s.EnqJob(j, false, 0), ErrShuttingDown)
}

func TestSystemRunLoopClosedEventSource(t *testing.T) {
	events := make(chan any)
	s := NewSystem("sys", SystemConfig{
		Config:    Config{Order: FIFO},
		Processor: func(any, any) EventAction { return ContinueEvents },
		Events:    events,
	})
	go s.Start()
	defer s.Stop(true)

	close(events)

	// the native arm detaches; the loop keeps serving jobs.
	j := job.New("", runnableFunc(func(*atomic.Bool) {}))
	require.NoError(t, s.EnqJob(j, true, time.Second))
	assert.True(t, j.IsSucceeded())
}

func TestSystemRunLoopStopCompletesPending(t *testing.T) {
	s := NewSystem("sys", SystemConfig{Config: Config{Order: FIFO, MaxPending: 10}})
	block := make(chan struct{})
	j1 := job.New("", runnableFunc(func(*atomic.Bool) { <-block }))
	j2 := job.New("", runnableFunc(func(*atomic.Bool) { t.Error("should not run") }))

	go s.Start()
	require.NoError(t, s.EnqJob(j1, false, 0))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.EnqJob(j2, false, 0))

	close(block)
	s.Stop(true)

	assert.True(t, j1.IsCompleted())
	assert.True(t, j2.IsCompleted())
	assert.True(t, j2.IsCancelled())
}

func TestSystemRunLoopWakeCoalesces(t *testing.T) {
	s := NewSystem("sys", SystemConfig{Config: Config{Order: FIFO}})
	// many wakes before the loop ever runs must not wedge or overflow.
	for i := 0; i < 100; i++ {
		s.Wake()
	}
	go s.Start()
	defer s.Stop(true)

	j := job.New("", runnableFunc(func(*atomic.Bool) {}))
	require.NoError(t, s.EnqJob(j, true, time.Second))
	assert.True(t, j.IsSucceeded())
}
