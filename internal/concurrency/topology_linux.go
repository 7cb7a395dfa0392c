//go:build linux && cgo
// +build linux,cgo

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux NUMA topology via libnuma.

package concurrency

/*
#cgo LDFLAGS: -lnuma
#define _GNU_SOURCE
#include <sched.h>
#include <numa.h>
*/
import "C"

func numaNodeCount() int {
	if C.numa_available() < 0 {
		return 1
	}
	n := int(C.numa_max_node()) + 1
	if n < 1 {
		return 1
	}
	return n
}

func currentNUMANode() int {
	if C.numa_available() < 0 {
		return -1
	}
	cpu := C.sched_getcpu()
	if cpu < 0 {
		return -1
	}
	return int(C.numa_node_of_cpu(cpu))
}
