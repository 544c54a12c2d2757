package timeutil

import (
	"sync"
	"time"
)

// Event is a one-shot latch: once Signal is called, every past and future
// Wait returns immediately. It models the completion signal attached to a
// Job, for any place where a one-shot rendezvous (rather than a repeatable
// broadcast) is all that's needed; a Run Loop's idle and not-empty
// conditions use sync.Cond instead.
type Event struct {
	once sync.Once
	ch   chan struct{}
	init sync.Once
}

func NewEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

func (e *Event) lazyInit() {
	e.init.Do(func() {
		if e.ch == nil {
			e.ch = make(chan struct{})
		}
	})
}

// Signal latches the event high. Safe to call multiple times or
// concurrently; only the first call has any effect.
func (e *Event) Signal() {
	e.lazyInit()
	e.once.Do(func() { close(e.ch) })
}

// IsSignaled reports whether Signal has ever been called.
func (e *Event) IsSignaled() bool {
	e.lazyInit()
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}

// Wait blocks until the event is signalled or timeout elapses. Passing
// Infinite blocks until Signal is called. Returns true if the event was
// signalled, false on timeout.
func (e *Event) Wait(timeout time.Duration) bool {
	e.lazyInit()
	if timeout == Infinite {
		<-e.ch
		return true
	}
	if timeout <= 0 {
		select {
		case <-e.ch:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-e.ch:
		return true
	case <-timer.C:
		return false
	}
}

// C returns the underlying channel, closed when the event is signalled, for
// use in select statements alongside other channels (e.g. a native event
// source's wake channel).
func (e *Event) C() <-chan struct{} {
	e.lazyInit()
	return e.ch
}
