//go:build linux && !cgo
// +build linux,!cgo

// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pure-Go fallback NUMA topology for CGO-disabled Linux builds.

package concurrency

func numaNodeCount() int   { return 1 }
func currentNUMANode() int { return -1 }
