//go:build linux && !cgo
// +build linux,!cgo

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pure-Go pinning for CGO-disabled Linux builds: sched_setaffinity via
// x/sys/unix covers the CPU mask; NUMA node placement needs libnuma and is
// skipped here.

package concurrency

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinCurrentThread pins the calling OS thread to cpuID. numaNode is
// ignored without libnuma.
func PinCurrentThread(numaNode int, cpuID int) {
	runtime.LockOSThread()
	if cpuID < 0 {
		return
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	_ = unix.SchedSetaffinity(0, &set)
}
