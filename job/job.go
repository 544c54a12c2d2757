// Package job implements the unit of work executed by a run loop: a state
// machine (Pending -> Running -> Completed) carrying an execution
// disposition (Unknown, Cancelled, Failed, Succeeded), optional
// prologue/epilogue hooks, and a one-shot completion signal.
package job

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/kogansys/substrate/timeutil"
)

// failureBox wraps an error so atomic.Value (which rejects storing nil and
// requires a consistent concrete type) can represent "no failure" as a
// non-nil box holding a nil error.
type failureBox struct{ err error }

// State is the job's position in its lifecycle.
type State int32

const (
	// Pending means the job has been reset for a run (see Reset) but not
	// yet run.
	Pending State = iota
	// Running means the job's Execute method is currently on-stack.
	Running
	// Completed means Execute has returned (normally, by panic, or because
	// it was never entered due to cancellation). New also creates jobs in
	// this state.
	Completed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Disposition is the job's outcome, meaningful once State == Completed.
type Disposition int32

const (
	// Unknown is the disposition of a job that has not yet completed.
	Unknown Disposition = iota
	// Cancelled means Cancel was called before or during execution.
	Cancelled
	// Failed means Execute (or a hook) panicked or reported a failure.
	Failed
	// Succeeded means Execute returned normally without failing or being
	// cancelled.
	Succeeded
)

func (d Disposition) String() string {
	switch d {
	case Unknown:
		return "Unknown"
	case Cancelled:
		return "Cancelled"
	case Failed:
		return "Failed"
	case Succeeded:
		return "Succeeded"
	default:
		return fmt.Sprintf("Disposition(%d)", int32(d))
	}
}

// Runnable is the only method a job must implement. done reflects the
// owning run loop's shutdown flag; implementations should poll it (via
// Job.ShouldStop) to remain responsive to cancellation and shutdown.
type Runnable interface {
	Execute(done *atomic.Bool)
}

// Prologuer is an optional hook run once before Execute, for
// one-time setup. A panic here fails the job without running Execute.
type Prologuer interface {
	Prologue(done *atomic.Bool)
}

// Epiloguer is an optional hook run once after Execute (even if Execute or
// Prologue panicked), for one-time cleanup. A panic here fails the job,
// recording the panic as its Err, unless its disposition is already
// determined (e.g. Cancelled, or Failed by an earlier panic).
type Epiloguer interface {
	Epilogue(done *atomic.Bool)
}

// Job wraps a Runnable with the bookkeeping a run loop needs: identity,
// state, disposition, failure detail and a completion signal. Construct one
// with New; it is safe for concurrent use by the owning run loop, any
// number of waiters, and whatever goroutine calls Cancel.
type Job struct {
	id        string
	runLoopID string
	runnable  Runnable

	state       atomic.Int32
	disposition atomic.Int32
	failure     atomic.Value // failureBox

	completed atomic.Pointer[timeutil.Event]
}

// New wraps runnable as a Job. If id is empty, a random 16-byte hex id is
// generated.
func New(id string, runnable Runnable) *Job {
	if id == "" {
		id = randomID()
	}
	j := &Job{
		id:       id,
		runnable: runnable,
	}
	j.state.Store(int32(Completed))
	j.disposition.Store(int32(Unknown))
	j.failure.Store(failureBox{})
	ev := timeutil.NewEvent()
	ev.Signal()
	j.completed.Store(ev)
	return j
}

func randomID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing indicates a broken host; a zero id is
		// distinguishable and still lets the caller proceed.
		return "00000000000000000000000000000000"
	}
	return hex.EncodeToString(b[:])
}

// ID returns the job's identity, stable for its lifetime.
func (j *Job) ID() string { return j.id }

// RunLoopID returns the id of the run loop that most recently reset this
// job, or "" if it has never been submitted.
func (j *Job) RunLoopID() string { return j.runLoopID }

// State returns the job's current lifecycle state.
func (j *Job) State() State { return State(j.state.Load()) }

func (j *Job) IsPending() bool   { return j.State() == Pending }
func (j *Job) IsRunning() bool   { return j.State() == Running }
func (j *Job) IsCompleted() bool { return j.State() == Completed }

// Disposition returns the job's outcome; Unknown until IsCompleted.
func (j *Job) Disposition() Disposition { return Disposition(j.disposition.Load()) }

func (j *Job) IsCancelled() bool { return j.Disposition() == Cancelled }
func (j *Job) IsFailed() bool    { return j.Disposition() == Failed }
func (j *Job) IsSucceeded() bool { return j.Disposition() == Succeeded }

// Err returns the error that failed the job, or nil if it did not fail.
func (j *Job) Err() error {
	if b, ok := j.failure.Load().(failureBox); ok {
		return b.err
	}
	return nil
}

// Cancel requests that the job stop at its next ShouldStop check. It does
// not interrupt an in-flight Execute; the job must poll ShouldStop (or the
// done flag passed to it) to honor cancellation promptly. Cancel on an
// already-completed job has no effect.
func (j *Job) Cancel() {
	if j.IsCompleted() {
		return
	}
	j.disposition.CompareAndSwap(int32(Unknown), int32(Cancelled))
}

// ShouldStop reports whether a running job should abandon work: the owning
// run loop's done flag is set, or the job has already been marked
// cancelled or failed by another path.
func (j *Job) ShouldStop(done *atomic.Bool) bool {
	if done != nil && done.Load() {
		return true
	}
	d := j.Disposition()
	return d == Cancelled || d == Failed
}

// WaitCompleted blocks until the job reaches State == Completed, or timeout
// elapses (timeutil.Infinite blocks indefinitely). Returns true if the job
// completed, false on timeout.
func (j *Job) WaitCompleted(timeout time.Duration) bool {
	return j.completed.Load().Wait(timeout)
}

// Reset prepares a completed (or fresh) job for another run under
// runLoopID. Used internally by a run loop/job queue immediately before
// scheduling it; exported so a custom run loop implementation built on this
// package can drive the same lifecycle.
func (j *Job) Reset(runLoopID string) {
	j.runLoopID = runLoopID
	j.state.Store(int32(Pending))
	j.disposition.Store(int32(Unknown))
	j.failure.Store(failureBox{})
	j.completed.Store(timeutil.NewEvent())
}

// SetState is used internally by a run loop to transition the job's
// lifecycle state (e.g. Pending -> Running). Exported for the same reason
// as Reset.
func (j *Job) SetState(s State) {
	j.state.Store(int32(s))
	if s == Completed {
		j.completed.Load().Signal()
	}
}

// Fail marks the job Failed, recording err as the reason. A no-op if the
// job already has a non-Unknown disposition (e.g. it was already
// Cancelled).
func (j *Job) Fail(err error) {
	if j.disposition.CompareAndSwap(int32(Unknown), int32(Failed)) && err != nil {
		j.failure.Store(failureBox{err: err})
	}
}

// Succeed marks the job Succeeded. A no-op if the job already has a
// non-Unknown disposition.
func (j *Job) Succeed() {
	j.disposition.CompareAndSwap(int32(Unknown), int32(Succeeded))
}

// Skip transitions a pending job straight to Completed without running any
// of its hooks. Run loops use it for jobs cancelled while still pending,
// which are owed a Completed state but not an execution.
func (j *Job) Skip() {
	j.SetState(Completed)
}

// Execute runs the job's hooks in order (Prologue, Execute, Epilogue), even
// if done is already set on entry - Execute is the one mandatory hook, and
// is itself responsible for polling done and returning promptly. Execute
// traps panics from each hook so that one misbehaving job cannot take down
// its hosting worker. A panic in any hook fails the job with the panic as
// its Err (if not already Cancelled or Failed); Epilogue still runs after a
// panic in Prologue or Execute. The job has no logger of its own, so nothing
// is logged here - callers read the outcome from Disposition and Err.
func (j *Job) Execute(done *atomic.Bool) {
	j.SetState(Running)
	defer j.SetState(Completed)

	func() {
		defer j.trap()
		if p, ok := j.runnable.(Prologuer); ok {
			p.Prologue(done)
		}
		j.runnable.Execute(done)
	}()

	func() {
		defer j.trap()
		if e, ok := j.runnable.(Epiloguer); ok {
			e.Epilogue(done)
		}
	}()

	j.Succeed()
}

func (j *Job) trap() {
	if r := recover(); r != nil {
		var err error
		if e, ok := r.(error); ok {
			err = e
		} else {
			err = fmt.Errorf("job: panic: %v", r)
		}
		j.Fail(err)
	}
}
