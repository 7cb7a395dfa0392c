//go:build windows
// +build windows

// File: pool/numa_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows NUMA allocator over VirtualAllocExNuma/VirtualFree. Procs are
// resolved once at package init, not per allocation.

package pool

import (
	"errors"
	"syscall"
	"unsafe"
)

const (
	memCommit     = 0x00001000
	memReserve    = 0x00002000
	memRelease    = 0x00008000
	pageReadwrite = 0x04
)

var (
	numaKernel32            = syscall.NewLazyDLL("kernel32.dll")
	procVirtualAllocExNuma  = numaKernel32.NewProc("VirtualAllocExNuma")
	procVirtualFree         = numaKernel32.NewProc("VirtualFree")
	procGetCurrentProcessNA = numaKernel32.NewProc("GetCurrentProcess")
)

// windowsNUMAAllocator implements NUMAAllocator for Windows.
type windowsNUMAAllocator struct{}

func newWindowsNUMAAllocator() NUMAAllocator {
	return &windowsNUMAAllocator{}
}

func (w *windowsNUMAAllocator) Alloc(size int, node int) ([]byte, error) {
	hProc, _, _ := procGetCurrentProcessNA.Call()
	ptr, _, err := procVirtualAllocExNuma.Call(
		hProc,
		0,
		uintptr(size),
		uintptr(memReserve|memCommit),
		uintptr(pageReadwrite),
		uintptr(node),
	)
	if ptr == 0 {
		return nil, errors.New("pool: VirtualAllocExNuma failed: " + err.Error())
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size), nil
}

func (w *windowsNUMAAllocator) Free(buf []byte) {
	if len(buf) == 0 {
		return
	}
	procVirtualFree.Call(uintptr(unsafe.Pointer(&buf[0])), 0, uintptr(memRelease))
}

func (w *windowsNUMAAllocator) Nodes() (int, error) {
	return 1, nil
}
