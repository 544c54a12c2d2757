//go:build !linux

package jobqueue

// applyAffinity is a no-op on platforms without a SchedSetaffinity
// equivalent wired in; CPUAffinity remains an accepted config field so
// callers don't need platform-specific code at the call site.
func applyAffinity(cpus []int) {}

// applyPriority is likewise a no-op off linux.
func applyPriority(nice int) {}
