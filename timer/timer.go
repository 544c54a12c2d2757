// Package timer implements one-shot and periodic alarms, delivered through
// a borrowed jobqueue.JobQueue worker, with re-entrancy control.
package timer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kogansys/substrate/corelog"
	"github.com/kogansys/substrate/job"
	"github.com/kogansys/substrate/jobqueue"
	"github.com/kogansys/substrate/timeutil"
)

// Callback receives the alarm. Implementations must be safe to call
// concurrently whenever ReentrantAlarm is true.
type Callback interface {
	Alarm(t *Timer)
}

// Timer fires Callback.Alarm once (one-shot) or repeatedly (periodic),
// dispatched as a Job run on a worker borrowed from pool. Construct with
// New.
type Timer struct {
	name           string
	callback       Callback
	reentrantAlarm bool
	pool           *jobqueue.Pool
	logger         func(format string, args ...any)

	mu       sync.Mutex
	clock    *time.Timer
	periodic bool
	interval time.Duration
	running  bool

	jobsMu sync.Mutex
	jobs   map[string]*job.Job

	outstanding atomic.Int32
}

// Config configures a Timer.
type Config struct {
	Name string
	// ReentrantAlarm controls behavior when a periodic timer fires while
	// a previous alarm is still outstanding: false (default) silently
	// drops the new alarm and logs a warning; true queues it regardless,
	// and Callback.Alarm must then tolerate concurrent invocation.
	ReentrantAlarm bool
	// Pool supplies the worker that runs each alarm Job; required.
	Pool *jobqueue.Pool
	// Logger receives the reentrancy-drop warning; defaults to
	// corelog.Default().WarnfLimited if nil, which is rate-limited only when
	// corelog category rate limits are configured.
	Logger func(format string, args ...any)
}

// New constructs a Timer bound to callback. It does not start running
// until Start is called.
func New(callback Callback, cfg Config) *Timer {
	logger := cfg.Logger
	if logger == nil {
		logger = corelog.Default().WarnfLimited
	}
	return &Timer{
		name:           cfg.Name,
		callback:       callback,
		reentrantAlarm: cfg.ReentrantAlarm,
		pool:           cfg.Pool,
		logger:         logger,
		jobs:           make(map[string]*job.Job),
	}
}

func (t *Timer) Name() string { return t.name }

// Start arms (or re-arms, if already running) the timer to fire after
// delay, repeating every delay thereafter if periodic.
func (t *Timer) Start(delay time.Duration, periodic bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.clock != nil {
		t.clock.Stop()
	}
	t.periodic = periodic
	t.interval = delay
	t.running = true
	t.clock = time.AfterFunc(delay, t.fire)
}

// Stop disarms the timer and blocks until every currently-outstanding
// alarm callback has returned. Must not be called from inside the alarm
// callback itself; an alarm that wants to disarm its own timer should use
// a separate goroutine or arrange the stop after returning.
func (t *Timer) Stop() {
	t.mu.Lock()
	if t.clock != nil {
		t.clock.Stop()
	}
	t.running = false
	t.mu.Unlock()

	t.WaitForCallbacks(timeutil.Infinite, false)
}

// IsRunning reports whether the timer is currently armed.
func (t *Timer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Timer) fire() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	if t.periodic {
		t.clock = time.AfterFunc(t.interval, t.fire)
	} else {
		t.running = false
	}
	t.mu.Unlock()

	if !t.reentrantAlarm && t.outstanding.Load() > 0 {
		t.logger("timer %q: dropping alarm, previous alarm still outstanding", t.name)
		return
	}

	// Retry count zero: dropping an alarm is preferred to blocking.
	queue := t.pool.GetQueue(0, 0)
	if queue == nil {
		t.logger("timer %q: dropping alarm, no worker available", t.name)
		return
	}

	t.outstanding.Add(1)
	alarmJob := job.New("", alarmRunnable{t: t})
	t.trackJob(alarmJob)

	// Enqueue without waiting; the goroutine below waits for completion.
	if err := queue.EnqJob(alarmJob, false, 0); err != nil {
		t.logger("timer %q: dropping alarm, enqueue failed: %v", t.name, err)
		t.pool.ReleaseQueue(queue)
		t.untrackJob(alarmJob)
		t.outstanding.Add(-1)
		return
	}
	go func() {
		alarmJob.WaitCompleted(timeutil.Infinite)
		t.pool.ReleaseQueue(queue)
		t.untrackJob(alarmJob)
		t.outstanding.Add(-1)
	}()
}

type alarmRunnable struct{ t *Timer }

func (a alarmRunnable) Execute(done *atomic.Bool) {
	a.t.callback.Alarm(a.t)
}

func (t *Timer) trackJob(j *job.Job) {
	t.jobsMu.Lock()
	t.jobs[j.ID()] = j
	t.jobsMu.Unlock()
}

func (t *Timer) untrackJob(j *job.Job) {
	t.jobsMu.Lock()
	delete(t.jobs, j.ID())
	t.jobsMu.Unlock()
}

// WaitForCallbacks joins every outstanding alarm job, optionally cancelling
// them first. Returns false if timeout elapses before all have completed.
func (t *Timer) WaitForCallbacks(timeout time.Duration, cancel bool) bool {
	t.jobsMu.Lock()
	jobs := make([]*job.Job, 0, len(t.jobs))
	for _, j := range t.jobs {
		jobs = append(jobs, j)
	}
	t.jobsMu.Unlock()

	if cancel {
		for _, j := range jobs {
			j.Cancel()
		}
	}

	deadline := time.Time{}
	if timeout != timeutil.Infinite {
		deadline = timeutil.Now().Add(timeout)
	}
	for _, j := range jobs {
		var remaining time.Duration
		if timeout == timeutil.Infinite {
			remaining = timeutil.Infinite
		} else {
			remaining = deadline.Sub(timeutil.Now())
			if remaining < 0 {
				remaining = 0
			}
		}
		if !j.WaitCompleted(remaining) {
			return false
		}
	}
	return true
}
