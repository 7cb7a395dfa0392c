// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake buffer pool implementation, used by session/poolmgr tests that want
// an api.BufferPool without pulling in the NUMA-aware allocator from pool/.

package fake

import (
	"sync"

	"github.com/cortexide/lapc/api"
)

// BufferPool is a fake api.BufferPool backed by plain heap allocations.
type BufferPool struct {
	mu        sync.Mutex
	allocated int64
	freed     int64
	inUse     int64
	numaStats map[int]int64
}

// NewBufferPool creates a new fake buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{numaStats: make(map[int]int64)}
}

// Get returns a buffer of exactly size bytes, tagged with numaPreferred.
func (p *BufferPool) Get(size int, numaPreferred int) api.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allocated++
	p.inUse++
	p.numaStats[numaPreferred]++
	return api.Buffer{
		Data: make([]byte, size),
		NUMA: numaPreferred,
		Pool: p,
	}
}

// Put returns a buffer to the pool, implementing api.Releaser.
func (p *BufferPool) Put(b api.Buffer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freed++
	if p.inUse > 0 {
		p.inUse--
	}
	if p.numaStats[b.NUMA] > 0 {
		p.numaStats[b.NUMA]--
	}
}

// Stats exposes resource/accounting metrics.
func (p *BufferPool) Stats() api.BufferPoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	numaStatsCopy := make(map[int]int64, len(p.numaStats))
	for k, v := range p.numaStats {
		numaStatsCopy[k] = v
	}
	return api.BufferPoolStats{
		TotalAlloc: p.allocated,
		TotalFree:  p.freed,
		InUse:      p.inUse,
		NUMAStats:  numaStatsCopy,
	}
}
