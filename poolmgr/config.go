// File: poolmgr/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package poolmgr

import (
	"time"

	"github.com/cortexide/lapc/api"
)

// Config tunes the adaptive pool's sizing and health-check behavior.
type Config struct {
	// MinIdle is the floor Shrink never scales the registry below, even
	// when Active count falls to zero.
	MinIdle int

	// MaxConnections is the ceiling Grow never scales the registry above.
	MaxConnections int

	// ScaleFactor multiplies the registry's current capacity when
	// occupancy crosses ScaleUpThreshold, clamped to MaxConnections.
	ScaleFactor float64

	// MinScaleInterval debounces scaling decisions: Grow and Shrink are
	// never both invoked, nor the same one invoked twice, within this
	// window of each other.
	MinScaleInterval time.Duration

	// ScaleUpThreshold is the occupancy ratio (Active/Capacity) above which
	// the pool grows the registry by ScaleFactor.
	ScaleUpThreshold float64

	// ScaleDownThreshold is the occupancy ratio below which idle slots
	// above MinIdle become eligible for shrinking.
	ScaleDownThreshold float64

	// UnhealthyAfter marks a slot unhealthy if its doorbell has not
	// answered a heartbeat within this duration.
	UnhealthyAfter time.Duration

	// HealthCheckInterval is how often HealthCheck sweeps every Active
	// slot for a heartbeat response.
	HealthCheckInterval time.Duration

	// AcquireTimeout bounds how long Acquire waits for a Free slot before
	// returning api.ErrPoolExhausted.
	AcquireTimeout time.Duration

	Log api.LogSink
}

// DefaultConfig returns sane default thresholds. maxConnections seeds both
// the registry's starting capacity and the ceiling Grow respects.
func DefaultConfig(maxConnections int) Config {
	return Config{
		MinIdle:             1,
		MaxConnections:      maxConnections,
		ScaleFactor:         2.0,
		MinScaleInterval:    time.Second,
		ScaleUpThreshold:    0.8,
		ScaleDownThreshold:  0.2,
		UnhealthyAfter:      5 * time.Second,
		HealthCheckInterval: time.Second,
		AcquireTimeout:      2 * time.Second,
	}
}
