// File: cmd/lapcd/config_overrides.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bridges control.ConfigStore's untyped TOML-derived snapshot onto
// poolmgr.Config's typed fields. TOML numbers unmarshal through
// map[string]any as float64/int64 depending on the parser's literal form,
// so every lookup here tolerates either.

package main

import (
	"time"

	"github.com/cortexide/lapc/poolmgr"
)

// applyConfigOverrides merges recognized scalar keys from snap onto
// capacity and poolCfg. Unrecognized keys (including "base_path", which
// control.LoadFile already strips) are ignored rather than rejected, so an
// operator's tuning file can carry keys meant for other components.
func applyConfigOverrides(snap map[string]any, capacity *int, poolCfg *poolmgr.Config) {
	if v, ok := intFromAny(snap["ring_capacity"]); ok {
		*capacity = v
		poolCfg.MaxConnections = v
	}
	if v, ok := intFromAny(snap["max_connections"]); ok {
		poolCfg.MaxConnections = v
	}
	if v, ok := intFromAny(snap["min_idle"]); ok {
		poolCfg.MinIdle = v
	}
	if v, ok := floatFromAny(snap["scale_factor"]); ok {
		poolCfg.ScaleFactor = v
	}
	if v, ok := floatFromAny(snap["scale_up_threshold"]); ok {
		poolCfg.ScaleUpThreshold = v
	}
	if v, ok := floatFromAny(snap["scale_down_threshold"]); ok {
		poolCfg.ScaleDownThreshold = v
	}
	if v, ok := durationSecondsFromAny(snap["min_scale_interval_seconds"]); ok {
		poolCfg.MinScaleInterval = v
	}
	if v, ok := durationSecondsFromAny(snap["unhealthy_threshold_seconds"]); ok {
		poolCfg.UnhealthyAfter = v
	}
}

func floatFromAny(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func intFromAny(v any) (int, bool) {
	f, ok := floatFromAny(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func durationSecondsFromAny(v any) (time.Duration, bool) {
	f, ok := floatFromAny(v)
	if !ok {
		return 0, false
	}
	return time.Duration(f * float64(time.Second)), true
}
