package timeutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventLatches(t *testing.T) {
	e := NewEvent()
	assert.False(t, e.IsSignaled())
	assert.False(t, e.Wait(0))

	e.Signal()
	assert.True(t, e.IsSignaled())
	assert.True(t, e.Wait(0))
	// latched high forever; repeated signals are no-ops.
	e.Signal()
	assert.True(t, e.Wait(Infinite))
}

func TestEventWaitTimeout(t *testing.T) {
	e := NewEvent()
	start := time.Now()
	assert.False(t, e.Wait(20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestEventWakesWaiter(t *testing.T) {
	e := NewEvent()
	done := make(chan bool, 1)
	go func() { done <- e.Wait(time.Second) }()
	e.Signal()
	assert.True(t, <-done)
}

func TestEventChannelSelects(t *testing.T) {
	e := NewEvent()
	select {
	case <-e.C():
		t.Fatal("channel closed before Signal")
	default:
	}
	e.Signal()
	select {
	case <-e.C():
	default:
		t.Fatal("channel still open after Signal")
	}
}

func TestSpinLockMutualExclusion(t *testing.T) {
	var l SpinLock
	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				l.Lock()
				counter++
				l.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8000, counter)
}

func TestSpinLockTryLock(t *testing.T) {
	var l SpinLock
	assert.True(t, l.TryLock())
	assert.False(t, l.TryLock())
	l.Unlock()
	assert.True(t, l.TryLock())
	l.Unlock()
}

func TestBackoffGrowsAndResets(t *testing.T) {
	var b Backoff
	b.Pause()
	first := b.spins
	b.Pause()
	assert.Greater(t, b.spins, first)
	b.Reset()
	assert.Equal(t, uint(0), b.spins)
}
