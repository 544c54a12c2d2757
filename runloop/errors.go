// Package runloop implements a single-owner queue of pending jobs drained
// by one or more worker goroutines: enqueue, cancel, wait-for-completion
// and idle-detection primitives, in both a thread-hosted flavor (the
// default) and a system flavor that interleaves a platform-native event
// source with pending job dispatch.
package runloop

import "errors"

// ErrCapacity is returned by EnqJob/EnqJobFront when the pending queue is
// already at MaxPending.
var ErrCapacity = errors.New("runloop: at capacity")

// ErrShuttingDown is returned by EnqJob/EnqJobFront once Stop has been
// called.
var ErrShuttingDown = errors.New("runloop: shutting down")

// ErrSameThread is returned (when Config.DeadlockDetection is set) by
// EnqJob/EnqJobFront when called from the goroutine currently draining this
// run loop, which would deadlock. Start performs no such check.
var ErrSameThread = errors.New("runloop: called from the run loop's own goroutine")
