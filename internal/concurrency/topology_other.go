//go:build !linux && !windows
// +build !linux,!windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Fallback NUMA topology for platforms without a dedicated implementation.

package concurrency

func numaNodeCount() int   { return 1 }
func currentNUMANode() int { return -1 }
