// Package timeutil provides the small set of time and synchronization
// primitives the concurrent execution substrate is built on: a relative
// duration with an "infinite" sentinel, a one-shot latching Event, and a
// spin-lock with exponential back-off for code that must not block the
// scheduler thread on a mutex.
package timeutil

import "time"

// Infinite is the sentinel timeout value meaning "no timeout" - block
// until signalled.
const Infinite time.Duration = -1

// Now returns the current time, as read from the monotonic clock embedded
// in time.Time. All deadline arithmetic in this module uses it exclusively,
// never wall-clock time, so that schedulers are immune to clock adjustments.
func Now() time.Time {
	return time.Now()
}
