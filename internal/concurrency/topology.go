// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-generic NUMA topology queries. Implemented per platform via build
// tags, mirroring the PinCurrentThread dispatcher in pin.go.

package concurrency

// NUMANodes reports the number of NUMA nodes this process can address.
// Normalization callers (internal/normalize) treat node 0 as always valid
// regardless of what this returns.
func NUMANodes() int {
	return numaNodeCount()
}

// CurrentNUMANodeID returns the NUMA node the calling OS thread is currently
// scheduled on, or -1 if that cannot be determined on this platform.
func CurrentNUMANodeID() int {
	return currentNUMANode()
}
