// File: poolmgr/pool.go
// Package poolmgr implements the adaptive connection pool manager:
// acquire/release against the registry's resizable slot table,
// periodic health-checking via doorbell round-trip timing, scale-up/
// scale-down threshold tracking, and Prometheus-text metrics export.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The idle-slot FIFO is github.com/eapache/queue, a good fit for
// unbounded-growth queues outside the lock-free hot path.

package poolmgr

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/cortexide/lapc/api"
	"github.com/cortexide/lapc/control"
	"github.com/cortexide/lapc/doorbell"
	"github.com/cortexide/lapc/registry"
)

// bellPair is the doorbell pair a pool associates with a tracked slot, used
// only by HealthCheck to time a round trip; the data-plane rings are not
// the pool manager's concern.
type bellPair struct {
	send doorbell.Doorbell
	recv doorbell.Doorbell
}

// Pool manages acquisition, release, and health of registry slots.
type Pool struct {
	reg *registry.Registry
	cfg Config

	// The three scaling knobs below are also readable/writable from
	// control.ConfigStore's reload hook while HealthCheck/Acquire read
	// them concurrently from unrelated goroutines, so they live in
	// atomics outside cfg rather than behind p.mu.
	scaleUpThreshold   atomic.Uint64 // math.Float64bits
	scaleDownThreshold atomic.Uint64 // math.Float64bits
	minScaleInterval   atomic.Int64  // nanoseconds

	mu         sync.Mutex
	idle       *queue.Queue
	waiters    []chan struct{}
	tracked    map[uint32]bellPair
	heartbeat  map[uint32]time.Time
	unhealthy  map[uint32]struct{} // slots currently failing heartbeats, cleared on reclaim or recovery
	lastScale  time.Time
	metricsReg *control.MetricsRegistry

	counters struct {
		scaleUpEvents          uint64
		scaleDownEvents        uint64
		unhealthyTotal         uint64
		failedTotal            uint64
		acquireLatencies       []time.Duration
		heartbeatLatencies     []time.Duration
		tlsHandshakeFailures   uint64 // reserved; always zero, no TLS surface in this core
		certValidationFailures uint64 // reserved; always zero
	}
}

// New constructs a Pool over reg using cfg's thresholds.
func New(reg *registry.Registry, cfg Config) *Pool {
	if cfg.Log == nil {
		cfg.Log = api.NoopLogSink{}
	}
	p := &Pool{
		reg:       reg,
		cfg:       cfg,
		idle:      queue.New(),
		tracked:   make(map[uint32]bellPair),
		heartbeat: make(map[uint32]time.Time),
		unhealthy: make(map[uint32]struct{}),
	}
	p.scaleUpThreshold.Store(math.Float64bits(cfg.ScaleUpThreshold))
	p.scaleDownThreshold.Store(math.Float64bits(cfg.ScaleDownThreshold))
	p.minScaleInterval.Store(int64(cfg.MinScaleInterval))
	return p
}

// UpdateThresholds applies hot-reloaded scaling tunables. control.ConfigStore
// calls this from its OnReload hook when an operator edits the TOML tuning
// file's scale_up_threshold/scale_down_threshold/min_scale_interval keys.
func (p *Pool) UpdateThresholds(scaleUp, scaleDown float64, minScaleInterval time.Duration) {
	p.scaleUpThreshold.Store(math.Float64bits(scaleUp))
	p.scaleDownThreshold.Store(math.Float64bits(scaleDown))
	p.minScaleInterval.Store(int64(minScaleInterval))
}

// SetMetricsRegistry mirrors every ExportMetrics call into mr in addition to
// rendering Prometheus text, so adapters.ControlAdapter's Stats sees the
// same counters a scrape would. Pass nil (the default) to skip the
// mirror entirely.
func (p *Pool) SetMetricsRegistry(mr *control.MetricsRegistry) {
	p.mu.Lock()
	p.metricsReg = mr
	p.mu.Unlock()
}

// Acquire waits for a Free slot to become available, bounded by
// cfg.AcquireTimeout (or ctx's own deadline, whichever is sooner).
func (p *Pool) Acquire(ctx context.Context, clientName string, peerPID int32, serverRingName, clientRingName string) (*registry.Slot, error) {
	start := time.Now()
	deadline := start.Add(p.cfg.AcquireTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	for {
		slot, err := p.reg.Acquire(clientName, peerPID, serverRingName, clientRingName)
		if err == nil {
			p.recordAcquireLatency(time.Since(start))
			p.checkScaleUp()
			return slot, nil
		}
		if err != api.ErrPoolExhausted {
			p.recordAcquireFailure()
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.recordAcquireFailure()
			return nil, api.ErrPoolExhausted
		}
		wait := p.subscribe()
		timer := time.NewTimer(remaining)
		select {
		case <-wait:
			timer.Stop()
		case <-timer.C:
			p.recordAcquireFailure()
			return nil, api.ErrPoolExhausted
		case <-ctx.Done():
			timer.Stop()
			p.recordAcquireFailure()
			return nil, api.ErrCancelled
		}
	}
}

func (p *Pool) recordAcquireLatency(d time.Duration) {
	p.mu.Lock()
	p.counters.acquireLatencies = appendBounded(p.counters.acquireLatencies, d, maxLatencySamples)
	p.mu.Unlock()
}

func (p *Pool) recordAcquireFailure() {
	p.mu.Lock()
	p.counters.failedTotal++
	p.mu.Unlock()
}

// maxLatencySamples bounds the in-memory latency histograms' backing
// slices so a long-running server's ExportMetrics cost stays flat instead
// of growing with total request count.
const maxLatencySamples = 1024

func appendBounded(samples []time.Duration, d time.Duration, max int) []time.Duration {
	samples = append(samples, d)
	if len(samples) > max {
		samples = samples[len(samples)-max:]
	}
	return samples
}

// Release returns a slot to Free and wakes one Acquire waiter. Releasing
// an already-Free slot (a health-check teardown racing the session's own
// close path) is a no-op: registry.Release reports no transition
// happened and this skips the idle/waiter bookkeeping so the slot is
// never queued as idle twice.
func (p *Pool) Release(slot *registry.Slot) {
	index := slot.Index
	if !p.reg.Release(index) {
		return
	}

	p.mu.Lock()
	delete(p.tracked, index)
	delete(p.heartbeat, index)
	delete(p.unhealthy, index)
	p.idle.Add(index)
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	p.checkScaleDown()
}

// Track associates a slot with the doorbell pair HealthCheck uses to time
// its heartbeat round trip. Called by the server once a handshake
// completes; untracked slots are skipped by HealthCheck.
func (p *Pool) Track(slot *registry.Slot, send, recv doorbell.Doorbell) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracked[slot.Index] = bellPair{send: send, recv: recv}
	p.heartbeat[slot.Index] = time.Now()
}

func (p *Pool) subscribe() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan struct{})
	p.waiters = append(p.waiters, ch)
	return ch
}

// debounceScale reports whether a scaling decision may run now, and if so
// stamps lastScale so the next call within MinScaleInterval is refused.
// Grow and Shrink share one debounce window: the interval bounds scaling
// decisions as a whole, not each direction independently.
func (p *Pool) debounceScale() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Since(p.lastScale) < time.Duration(p.minScaleInterval.Load()) {
		return false
	}
	p.lastScale = time.Now()
	return true
}

func (p *Pool) checkScaleUp() {
	snap := p.reg.Snapshot()
	capacity := len(snap)
	active := 0
	for _, s := range snap {
		if s.State == registry.Active {
			active++
		}
	}
	if capacity == 0 {
		return
	}
	threshold := math.Float64frombits(p.scaleUpThreshold.Load())
	ratio := float64(active) / float64(capacity)
	if ratio < threshold || capacity >= p.cfg.MaxConnections {
		return
	}
	if !p.debounceScale() {
		return
	}

	target := int(float64(capacity) * p.cfg.ScaleFactor)
	if target <= capacity {
		target = capacity + 1
	}
	if target > p.cfg.MaxConnections {
		target = p.cfg.MaxConnections
	}
	extra := target - capacity
	newCap := p.reg.Grow(extra)

	p.mu.Lock()
	p.counters.scaleUpEvents++
	p.mu.Unlock()
	p.cfg.Log.Infof("poolmgr: occupancy %.2f at/above scale-up threshold %.2f (active=%d/%d), grew registry to %d slots",
		ratio, threshold, active, capacity, newCap)
}

func (p *Pool) checkScaleDown() {
	snap := p.reg.Snapshot()
	capacity := len(snap)
	active := 0
	for _, s := range snap {
		if s.State == registry.Active {
			active++
		}
	}
	if capacity == 0 {
		return
	}
	threshold := math.Float64frombits(p.scaleDownThreshold.Load())
	ratio := float64(active) / float64(capacity)
	if ratio > threshold || capacity <= p.cfg.MinIdle {
		return
	}
	if !p.debounceScale() {
		return
	}

	target := int(float64(capacity) / p.cfg.ScaleFactor)
	if target < p.cfg.MinIdle {
		target = p.cfg.MinIdle
	}
	removable := capacity - target
	removed := p.reg.Shrink(removable)
	if removed == 0 {
		return
	}

	p.mu.Lock()
	p.counters.scaleDownEvents++
	// The idle FIFO's oldest entries are the slots that have sat unused
	// longest; Shrink itself always retires from the registry's tail, so
	// this just keeps the FIFO's bookkeeping in step with however many
	// slots actually left the table.
	for i := 0; i < removed; i++ {
		if p.idle.Length() == 0 {
			break
		}
		p.idle.Remove()
	}
	p.mu.Unlock()
	p.cfg.Log.Infof("poolmgr: occupancy %.2f at/below scale-down threshold %.2f (active=%d/%d), shrank registry by %d slots",
		ratio, threshold, active, capacity, removed)
}

// HealthCheck times a Signal→Wait round trip on every tracked Active
// slot's send doorbell and records the RTT. A slot whose doorbell does
// not answer within cfg.UnhealthyAfter is marked Draining and released,
// reclaiming it for reuse.
func (p *Pool) HealthCheck(ctx context.Context) {
	p.mu.Lock()
	targets := make(map[uint32]bellPair, len(p.tracked))
	for idx, bp := range p.tracked {
		targets[idx] = bp
	}
	p.mu.Unlock()

	for idx, bp := range targets {
		slot, ok := p.reg.Lookup(idx, p.slotGeneration(idx))
		if !ok || slot.State() != registry.Active {
			continue
		}
		start := time.Now()
		if err := bp.send.Signal(); err != nil {
			p.markUnhealthy(slot)
			continue
		}
		outcome, err := doorbell.WaitAny(ctx, bp.recv, p.cfg.UnhealthyAfter)
		rtt := time.Since(start)
		if err != nil || outcome == doorbell.TimedOut {
			p.markUnhealthy(slot)
			continue
		}
		p.mu.Lock()
		p.counters.heartbeatLatencies = appendBounded(p.counters.heartbeatLatencies, rtt, maxLatencySamples)
		p.heartbeat[idx] = time.Now()
		delete(p.unhealthy, idx)
		p.mu.Unlock()
	}
}

func (p *Pool) slotGeneration(index uint32) uint32 {
	for _, s := range p.reg.Snapshot() {
		if s.Index == index {
			return s.Generation
		}
	}
	return 0
}

func (p *Pool) markUnhealthy(slot *registry.Slot) {
	p.mu.Lock()
	p.counters.unhealthyTotal++
	p.unhealthy[slot.Index] = struct{}{}
	p.mu.Unlock()
	p.cfg.Log.Warnf("poolmgr: slot %d unhealthy, reclaiming", slot.Index)
	if p.reg.BeginDrain(slot.Index) {
		p.Release(slot)
	}
}

// latencyStats summarizes a bounded sample slice as count/sum/min/max,
// matching this codebase's preference for a handful of plain gauges over a
// full bucketed histogram.
type latencyStats struct {
	count      uint64
	sumSeconds float64
	minSeconds float64
	maxSeconds float64
}

func summarizeLatencies(samples []time.Duration) latencyStats {
	st := latencyStats{}
	for i, d := range samples {
		s := d.Seconds()
		st.sumSeconds += s
		if i == 0 || s < st.minSeconds {
			st.minSeconds = s
		}
		if s > st.maxSeconds {
			st.maxSeconds = s
		}
	}
	st.count = uint64(len(samples))
	return st
}

// ExportMetrics renders the pool's counters as Prometheus text exposition
// format. When SetMetricsRegistry
// has been called, the same values are mirrored into that registry so
// adapters.ControlAdapter observes identical numbers.
func (p *Pool) ExportMetrics() string {
	snap := p.reg.Snapshot()
	counts := map[registry.State]int{}
	for _, s := range snap {
		counts[s.State]++
	}
	total := len(snap)
	active := counts[registry.Active]
	idle := counts[registry.Free]
	draining := counts[registry.Draining]

	p.mu.Lock()
	scaleUp := p.counters.scaleUpEvents
	scaleDown := p.counters.scaleDownEvents
	unhealthyTotal := p.counters.unhealthyTotal
	unhealthyNow := len(p.unhealthy)
	failed := p.counters.failedTotal
	tlsHandshakeFailures := p.counters.tlsHandshakeFailures
	certValidationFailures := p.counters.certValidationFailures
	acquireStats := summarizeLatencies(p.counters.acquireLatencies)
	heartbeatStats := summarizeLatencies(p.counters.heartbeatLatencies)
	metricsReg := p.metricsReg
	p.mu.Unlock()

	// healthy is a gauge over live slots: active minus those currently
	// failing heartbeats. The lifetime unhealthyTotal counter is exported
	// separately and never folded into it.
	healthy := active - unhealthyNow
	if healthy < 0 {
		healthy = 0
	}
	utilisation := 0.0
	if total > 0 {
		utilisation = float64(active) / float64(total) * 100
	}

	var b strings.Builder
	fmt.Fprintf(&b, "lapc_pool_slots_total %d\n", total)
	fmt.Fprintf(&b, "lapc_pool_slots_active %d\n", active)
	fmt.Fprintf(&b, "lapc_pool_slots_idle %d\n", idle)
	fmt.Fprintf(&b, "lapc_pool_slots_draining %d\n", draining)
	fmt.Fprintf(&b, "lapc_pool_slots_healthy %d\n", healthy)
	fmt.Fprintf(&b, "lapc_pool_slots_unhealthy %d\n", unhealthyNow)
	fmt.Fprintf(&b, "lapc_pool_utilisation_percent %f\n", utilisation)
	fmt.Fprintf(&b, "lapc_pool_scale_up_events_total %d\n", scaleUp)
	fmt.Fprintf(&b, "lapc_pool_scale_down_events_total %d\n", scaleDown)
	fmt.Fprintf(&b, "lapc_pool_unhealthy_total %d\n", unhealthyTotal)
	fmt.Fprintf(&b, "lapc_pool_failed_total %d\n", failed)
	fmt.Fprintf(&b, "lapc_pool_acquire_latency_seconds_count %d\n", acquireStats.count)
	fmt.Fprintf(&b, "lapc_pool_acquire_latency_seconds_sum %f\n", acquireStats.sumSeconds)
	fmt.Fprintf(&b, "lapc_pool_acquire_latency_seconds_min %f\n", acquireStats.minSeconds)
	fmt.Fprintf(&b, "lapc_pool_acquire_latency_seconds_max %f\n", acquireStats.maxSeconds)
	fmt.Fprintf(&b, "lapc_pool_heartbeat_rtt_seconds_count %d\n", heartbeatStats.count)
	fmt.Fprintf(&b, "lapc_pool_heartbeat_rtt_seconds_sum %f\n", heartbeatStats.sumSeconds)
	fmt.Fprintf(&b, "lapc_pool_heartbeat_rtt_seconds_min %f\n", heartbeatStats.minSeconds)
	fmt.Fprintf(&b, "lapc_pool_heartbeat_rtt_seconds_max %f\n", heartbeatStats.maxSeconds)
	fmt.Fprintf(&b, "lapc_pool_tls_handshake_failures_total %d\n", tlsHandshakeFailures)
	fmt.Fprintf(&b, "lapc_pool_certificate_validation_failures_total %d\n", certValidationFailures)

	if metricsReg != nil {
		metricsReg.Set("lapc_pool_slots_total", total)
		metricsReg.Set("lapc_pool_slots_active", active)
		metricsReg.Set("lapc_pool_slots_idle", idle)
		metricsReg.Set("lapc_pool_slots_draining", draining)
		metricsReg.Set("lapc_pool_slots_healthy", healthy)
		metricsReg.Set("lapc_pool_slots_unhealthy", unhealthyNow)
		metricsReg.Set("lapc_pool_utilisation_percent", utilisation)
		metricsReg.Set("lapc_pool_scale_up_events_total", scaleUp)
		metricsReg.Set("lapc_pool_scale_down_events_total", scaleDown)
		metricsReg.Set("lapc_pool_unhealthy_total", unhealthyTotal)
		metricsReg.Set("lapc_pool_failed_total", failed)
		metricsReg.Set("lapc_pool_acquire_latency_seconds_count", acquireStats.count)
		metricsReg.Set("lapc_pool_acquire_latency_seconds_sum", acquireStats.sumSeconds)
		metricsReg.Set("lapc_pool_acquire_latency_seconds_min", acquireStats.minSeconds)
		metricsReg.Set("lapc_pool_acquire_latency_seconds_max", acquireStats.maxSeconds)
		metricsReg.Set("lapc_pool_heartbeat_rtt_seconds_count", heartbeatStats.count)
		metricsReg.Set("lapc_pool_heartbeat_rtt_seconds_sum", heartbeatStats.sumSeconds)
		metricsReg.Set("lapc_pool_heartbeat_rtt_seconds_min", heartbeatStats.minSeconds)
		metricsReg.Set("lapc_pool_heartbeat_rtt_seconds_max", heartbeatStats.maxSeconds)
		metricsReg.Set("lapc_pool_tls_handshake_failures_total", tlsHandshakeFailures)
		metricsReg.Set("lapc_pool_certificate_validation_failures_total", certValidationFailures)
	}

	return b.String()
}

// Snapshot returns the registry's current slot states sorted by index, a
// convenience used by control.DebugProbes.
func (p *Pool) Snapshot() []registry.SlotSnapshot {
	snap := p.reg.Snapshot()
	sort.Slice(snap, func(i, j int) bool { return snap[i].Index < snap[j].Index })
	return snap
}
