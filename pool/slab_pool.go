// File: pool/slab_pool.go
// Package pool implements lock-free slab allocation with size class support.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync/atomic"

	"github.com/cortexide/lapc/api"
	"github.com/cortexide/lapc/internal/concurrency"
)

const (
	minClassShift = 8  // 256 B
	maxClassShift = 20 // 1 MiB
	slabQueueCap  = 4096
)

// slabPool recycles fixed-size buffers for one size class on one NUMA node.
type slabPool struct {
	size  int
	node  int
	alloc NUMAAllocator

	queue *concurrency.LockFreeQueue[api.Buffer]

	totalAlloc atomic.Uint64
	totalFree  atomic.Uint64
}

func newSlabPool(size, node int, alloc NUMAAllocator) *slabPool {
	return &slabPool{
		size:  size,
		node:  node,
		alloc: alloc,
		queue: concurrency.NewLockFreeQueue[api.Buffer](slabQueueCap),
	}
}

func (sp *slabPool) get() api.Buffer {
	if buf, ok := sp.queue.Dequeue(); ok {
		return buf
	}
	sp.totalAlloc.Add(1)
	data, onNode := sp.allocBytes(sp.size)
	node := -1
	if onNode {
		node = sp.node
	}
	return api.Buffer{
		Data:  data,
		NUMA:  node,
		Class: sp.size,
	}
}

func (sp *slabPool) put(b api.Buffer) {
	// Restore the full class-sized view before recycling; Get hands out
	// length-trimmed slices of the same backing array.
	b.Data = b.Data[:cap(b.Data)]
	if sp.queue.Enqueue(b) {
		sp.totalFree.Add(1)
		return
	}
	// Queue full. Allocator-owned memory (NUMA >= 0) must go back through
	// the allocator; heap-backed buffers are left to the collector.
	if sp.alloc != nil && b.NUMA >= 0 {
		sp.alloc.Free(b.Data)
	}
}

// allocBytes returns a fresh class-sized slice and whether it came from the
// NUMA allocator (and so must be freed through it).
func (sp *slabPool) allocBytes(size int) ([]byte, bool) {
	if sp.alloc != nil && sp.node >= 0 {
		if b, err := sp.alloc.Alloc(size, sp.node); err == nil && b != nil {
			return b, true
		}
	}
	return make([]byte, size), false
}

// sizeClassPool is the api.BufferPool served by DefaultPool: a ladder of
// power-of-two slab classes bound to one NUMA node, with oversize requests
// falling through to direct allocation.
type sizeClassPool struct {
	node    int
	alloc   NUMAAllocator
	classes []*slabPool

	inUse atomic.Int64
}

// newBufferPool builds the pool DefaultManager hands out per NUMA node.
func newBufferPool(numaNode int) api.BufferPool {
	alloc := createNUMAAllocator()
	p := &sizeClassPool{node: numaNode, alloc: alloc}
	for shift := minClassShift; shift <= maxClassShift; shift++ {
		p.classes = append(p.classes, newSlabPool(1<<shift, numaNode, alloc))
	}
	return p
}

func (p *sizeClassPool) classFor(size int) *slabPool {
	for _, cls := range p.classes {
		if size <= cls.size {
			return cls
		}
	}
	return nil
}

// Get returns a buffer with exactly size visible bytes. numaPreferred is
// advisory; the pool is already bound to one node by DefaultManager.
func (p *sizeClassPool) Get(size int, numaPreferred int) api.Buffer {
	p.inUse.Add(1)
	if cls := p.classFor(size); cls != nil {
		buf := cls.get()
		buf.Data = buf.Data[:size]
		buf.Pool = p
		return buf
	}
	return api.Buffer{
		Data:  make([]byte, size),
		NUMA:  p.node,
		Pool:  p,
		Class: 0, // oversize, not recycled through a slab
	}
}

// Put returns a buffer to its slab class, or drops it for the collector
// when it was an oversize one-off.
func (p *sizeClassPool) Put(b api.Buffer) {
	p.inUse.Add(-1)
	if b.Class == 0 || cap(b.Data) == 0 {
		return
	}
	if cls := p.classFor(b.Class); cls != nil && cls.size == b.Class {
		cls.put(b)
	}
}

func (p *sizeClassPool) Stats() api.BufferPoolStats {
	var alloc, free int64
	for _, cls := range p.classes {
		alloc += int64(cls.totalAlloc.Load())
		free += int64(cls.totalFree.Load())
	}
	return api.BufferPoolStats{
		TotalAlloc: alloc,
		TotalFree:  free,
		InUse:      p.inUse.Load(),
		NUMAStats:  map[int]int64{p.node: p.inUse.Load()},
	}
}

var _ api.BufferPool = (*sizeClassPool)(nil)
