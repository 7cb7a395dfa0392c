//go:build (!linux && !windows) || (linux && !cgo)
// +build !linux,!windows linux,!cgo

// File: pool/numapool_fallback.go
// Author: momentics <momentics@gmail.com>
//
// Fallback factory for platforms without a NUMA allocator; nil selects
// plain heap allocation in the slab pools.

package pool

func createNUMAAllocator() NUMAAllocator {
	return nil
}
