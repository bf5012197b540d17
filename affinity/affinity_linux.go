//go:build linux
// +build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux thread CPU affinity via sched_setaffinity, without cgo. Grounded on
// the pure-Go fallback shape of internal/concurrency/affinity_nocgo.go, but
// wired to the real syscall instead of a no-op — the loop's owning thread
// really does get pinned when a CPU is configured.

package affinity

import "golang.org/x/sys/unix"

// setAffinityPlatform pins the calling OS thread to cpuID.
//
// Go goroutines migrate between OS threads by default; callers that need
// this pin to stick must call runtime.LockOSThread first (the loop's Start
// does this before calling SetAffinity).
func setAffinityPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	return unix.SchedSetaffinity(0, &set)
}
