package runloop

// EventAction is an event processor's verdict after handling one native
// event: keep the loop running, or stop it.
type EventAction int

const (
	// ContinueEvents keeps the loop running.
	ContinueEvents EventAction = iota
	// StopEvents stops the loop, as if Stop(true) had been called.
	StopEvents
)

// EventProcessor handles one native event delivered to a SystemRunLoop.
// userData is whatever SystemConfig.UserData carried; event is the value
// read from the native event stream.
type EventProcessor func(userData any, event any) EventAction

// SystemConfig configures a SystemRunLoop.
type SystemConfig struct {
	Config
	// Processor receives every native event read from Events.
	Processor EventProcessor
	// UserData is passed verbatim to Processor on every event.
	UserData any
	// Events is the platform's native event stream (a message pump, an
	// epoll drain goroutine, a window system connection - anything that
	// can deliver events on a channel). May be nil for a loop that only
	// dispatches jobs; if the channel is closed the native arm detaches
	// and the loop keeps serving jobs.
	Events <-chan any
}

// SystemRunLoop hosts a RunLoop on a goroutine that must also service a
// platform-native event source: each turn drains every pending job, then
// blocks for whichever comes first - a wake (new job enqueued, or Stop) or
// a native event, which is handed to the configured EventProcessor. The
// wake side coalesces, so any number of enqueues while the loop is busy
// cost one wakeup.
type SystemRunLoop struct {
	*RunLoop

	processor EventProcessor
	userData  any
	events    <-chan any
	wake      chan struct{}
}

// NewSystem constructs a SystemRunLoop. id identifies the underlying run
// loop, exactly as in New.
func NewSystem(id string, cfg SystemConfig) *SystemRunLoop {
	s := &SystemRunLoop{
		RunLoop:   New(id, cfg.Config),
		processor: cfg.Processor,
		userData:  cfg.UserData,
		events:    cfg.Events,
		wake:      make(chan struct{}, 1),
	}
	s.RunLoop.onWake = s.Wake
	return s
}

// Wake nudges the hosting goroutine out of its native-event wait. Multiple
// wakes coalesce into one pending token, so this never blocks.
func (s *SystemRunLoop) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Start hosts the loop on the calling goroutine, interleaving pending jobs
// with native events, until Stop is called or the processor returns
// StopEvents. Pending jobs are always drained ahead of waiting for the next
// native event, matching the thread-hosted variant's "jobs first" dispatch.
func (s *SystemRunLoop) Start() {
	rl := s.RunLoop
	rl.hostGoroutine.Store(goroutineID())
	rl.started.Store(true)

	events := s.events
	for {
		for rl.dispatchNext() {
		}
		if rl.done.Load() {
			// A job enqueued between the drain above and Stop setting the
			// done flag is still owed Completed; the enq path can no longer
			// admit new ones.
			for rl.dispatchNext() {
			}
			return
		}
		select {
		case <-s.wake:
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if s.processor != nil && s.processor(s.userData, ev) == StopEvents {
				rl.Stop(true)
				return
			}
		}
	}
}
