package runloop

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID returns the id of the calling goroutine, parsed out of the
// header line of runtime.Stack's output ("goroutine 123 [running]: ...").
// This is the common idiom for goroutine-identity detection in the absence
// of a supported runtime API. It is used to record the hosting goroutine in
// Start, for the debug-mode deadlock-avoidance assertion that EnqJob* is not
// called from the run loop's own hosting goroutine, and for Stop's decision
// to skip waiting for idle when called from that goroutine - never for
// scheduling decisions that would need to be fast.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if i := bytes.Index(b, []byte(prefix)); i >= 0 {
		b = b[i+len(prefix):]
	}
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}
