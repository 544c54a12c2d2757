//go:build linux

package jobqueue

import "golang.org/x/sys/unix"

// applyAffinity pins the calling (locked) OS thread to the given CPU set,
// best-effort: affinity is a scheduling hint, not a correctness
// requirement, so failures are ignored here rather than surfaced up
// through the worker lifecycle.
func applyAffinity(cpus []int) {
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpus {
		if cpu >= 0 {
			set.Set(cpu)
		}
	}
	_ = unix.SchedSetaffinity(0, &set)
}

// applyPriority sets the calling (locked) OS thread's nice value,
// best-effort. On Linux each thread has its own nice value, so
// PRIO_PROCESS with who=0 addresses exactly the calling thread.
func applyPriority(nice int) {
	_ = unix.Setpriority(unix.PRIO_PROCESS, 0, nice)
}
