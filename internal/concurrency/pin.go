//go:build !linux && !windows
// +build !linux,!windows

// Author: momentics <momentics@gmail.com>
//
// Platform-generic symbol for CPU/NUMA pinning dispatcher.
// Overridden by a matching platform file via build tag.

package concurrency

// PinCurrentThread pins the current OS thread to a given NUMA node and CPU core.
// Implemented per platform (Linux/Windows); on other systems it is a no-op.
func PinCurrentThread(numaNode int, cpuID int) {}
