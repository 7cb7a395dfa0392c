//go:build windows
// +build windows

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// NUMA topology queries are not implemented for Windows in this build;
// the executor's NUMA pinning degrades to plain CPU affinity there.

package concurrency

func numaNodeCount() int   { return 1 }
func currentNUMANode() int { return -1 }
