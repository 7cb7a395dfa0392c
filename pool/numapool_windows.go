//go:build windows
// +build windows

// File: pool/numapool_windows.go
// Author: momentics <momentics@gmail.com>

package pool

// createNUMAAllocator selects the VirtualAllocExNuma-backed allocator on
// Windows; slab classes bound to node -1 skip it and allocate on the heap.
func createNUMAAllocator() NUMAAllocator {
	return newWindowsNUMAAllocator()
}
