//go:build linux && cgo
// +build linux,cgo

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux-specific implementation of runtime pinning (NUMA and CPU affinity).

package concurrency

/*
#define _GNU_SOURCE
#include <sched.h>
#include <pthread.h>
#include <numa.h>

// Pin the calling thread to one CPU; macros like CPU_SET are not callable
// from Go, so the mask handling stays on the C side.
static int go_pin_cpu(int cpu) {
	cpu_set_t set;
	CPU_ZERO(&set);
	CPU_SET(cpu, &set);
	return pthread_setaffinity_np(pthread_self(), sizeof(set), &set);
}

static void go_pin_numa(int node) {
	if (numa_available() != -1) {
		numa_run_on_node(node);
	}
}
*/
import "C"
import "runtime"

// PinCurrentThread pins the calling OS thread to the given NUMA node and
// CPU core. A negative cpuID skips the CPU mask; a negative numaNode skips
// the node binding.
func PinCurrentThread(numaNode int, cpuID int) {
	runtime.LockOSThread()
	if cpuID >= 0 {
		C.go_pin_cpu(C.int(cpuID))
	}
	if numaNode >= 0 {
		C.go_pin_numa(C.int(numaNode))
	}
}
