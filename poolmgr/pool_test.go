package poolmgr_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexide/lapc/api"
	"github.com/cortexide/lapc/doorbell"
	"github.com/cortexide/lapc/poolmgr"
	"github.com/cortexide/lapc/registry"
)

func doorbellNew(t *testing.T) (doorbell.Doorbell, error) {
	t.Helper()
	d, err := doorbell.New()
	if err == api.ErrNotSupported {
		t.Skip("doorbell not supported on this platform")
	}
	return d, err
}

func testConfig(maxSlots int) poolmgr.Config {
	cfg := poolmgr.DefaultConfig(maxSlots)
	cfg.AcquireTimeout = 200 * time.Millisecond
	cfg.UnhealthyAfter = 50 * time.Millisecond
	return cfg
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	reg := registry.New(2)
	p := poolmgr.New(reg, testConfig(2))

	slot, err := p.Acquire(context.Background(), "c1", 1, "s", "c")
	require.NoError(t, err)
	require.Equal(t, registry.Active, slot.State())

	p.Release(slot)
	require.Equal(t, registry.Free, slot.State())
}

func TestAcquireTimesOutWhenExhausted(t *testing.T) {
	reg := registry.New(1)
	p := poolmgr.New(reg, testConfig(1))

	slot, err := p.Acquire(context.Background(), "c1", 1, "s", "c")
	require.NoError(t, err)

	_, err = p.Acquire(context.Background(), "c2", 2, "s2", "c2")
	require.ErrorIs(t, err, api.ErrPoolExhausted)

	p.Release(slot)
}

func TestAcquireUnblocksOnRelease(t *testing.T) {
	reg := registry.New(1)
	cfg := testConfig(1)
	cfg.AcquireTimeout = 2 * time.Second
	p := poolmgr.New(reg, cfg)

	slot, err := p.Acquire(context.Background(), "c1", 1, "s", "c")
	require.NoError(t, err)

	result := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background(), "c2", 2, "s2", "c2")
		result <- err
	}()

	time.Sleep(20 * time.Millisecond)
	p.Release(slot)

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second Acquire never unblocked after Release")
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	reg := registry.New(1)
	cfg := testConfig(1)
	cfg.AcquireTimeout = 5 * time.Second
	p := poolmgr.New(reg, cfg)

	_, err := p.Acquire(context.Background(), "c1", 1, "s", "c")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx, "c2", 2, "s2", "c2")
		result <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		require.ErrorIs(t, err, api.ErrCancelled)
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not observe context cancellation")
	}
}

func TestExportMetricsContainsExpectedCounters(t *testing.T) {
	reg := registry.New(2)
	p := poolmgr.New(reg, testConfig(2))

	slot, err := p.Acquire(context.Background(), "c1", 1, "s", "c")
	require.NoError(t, err)
	defer p.Release(slot)

	out := p.ExportMetrics()
	for _, want := range []string{
		"lapc_pool_slots_total 2",
		"lapc_pool_slots_active 1",
		"lapc_pool_slots_idle 1",
		"lapc_pool_slots_healthy 1",
		"lapc_pool_failed_total 0",
		"lapc_pool_tls_handshake_failures_total 0",
		"lapc_pool_certificate_validation_failures_total 0",
	} {
		require.True(t, strings.Contains(out, want), "missing %q in:\n%s", want, out)
	}
}

func TestHealthCheckReclaimsDeadSlot(t *testing.T) {
	reg := registry.New(1)
	cfg := testConfig(1)
	p := poolmgr.New(reg, cfg)

	slot, err := p.Acquire(context.Background(), "c1", 1, "s", "c")
	require.NoError(t, err)

	send, err := doorbellNew(t)
	require.NoError(t, err)
	recv, err := doorbellNew(t)
	require.NoError(t, err)
	p.Track(slot, send, recv)

	// recv is never signaled by a peer, so the round trip always times out.
	p.HealthCheck(context.Background())

	require.Equal(t, registry.Free, slot.State())
}

func TestPoolScalesUpAndDown(t *testing.T) {
	reg := registry.New(4)
	cfg := testConfig(16)
	cfg.ScaleUpThreshold = 0.7
	cfg.ScaleDownThreshold = 0.3
	cfg.ScaleFactor = 2.0
	cfg.MinScaleInterval = 0
	cfg.MinIdle = 2
	p := poolmgr.New(reg, cfg)

	var slots []*registry.Slot
	for i := 0; i < 4; i++ {
		slot, err := p.Acquire(context.Background(), "c", int32(i), "s", "c")
		require.NoError(t, err)
		slots = append(slots, slot)
	}
	require.Greater(t, reg.Capacity(), 4, "occupancy above ScaleUpThreshold should have grown the registry")
	require.False(t, strings.Contains(p.ExportMetrics(), "lapc_pool_scale_up_events_total 0\n"),
		"expected at least one recorded scale-up event")

	grown := reg.Capacity()
	for _, slot := range slots {
		p.Release(slot)
	}
	require.Less(t, reg.Capacity(), grown, "idle pool should have shrunk toward MinIdle")
	require.GreaterOrEqual(t, reg.Capacity(), cfg.MinIdle)
}

func TestHealthyGaugeRecoversAfterUnhealthyTeardown(t *testing.T) {
	reg := registry.New(2)
	p := poolmgr.New(reg, testConfig(2))

	slot, err := p.Acquire(context.Background(), "c1", 1, "s", "c")
	require.NoError(t, err)

	send, err := doorbellNew(t)
	require.NoError(t, err)
	recv, err := doorbellNew(t)
	require.NoError(t, err)
	p.Track(slot, send, recv)

	// Unanswered heartbeat: the slot is torn down and the lifetime
	// unhealthy counter moves to 1.
	p.HealthCheck(context.Background())
	require.Equal(t, registry.Free, slot.State())

	// A fresh acquisition afterwards is healthy; the gauge must reflect
	// the live slot, not stay clamped by the cumulative failure count.
	slot2, err := p.Acquire(context.Background(), "c2", 2, "s2", "c2")
	require.NoError(t, err)
	defer p.Release(slot2)

	out := p.ExportMetrics()
	require.True(t, strings.Contains(out, "lapc_pool_slots_healthy 1\n"), "metrics:\n%s", out)
	require.True(t, strings.Contains(out, "lapc_pool_slots_unhealthy 0\n"), "metrics:\n%s", out)
	require.True(t, strings.Contains(out, "lapc_pool_unhealthy_total 1\n"), "metrics:\n%s", out)
}
