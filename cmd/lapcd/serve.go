// File: cmd/lapcd/serve.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"

	"github.com/cortexide/lapc/adapters"
	"github.com/cortexide/lapc/api"
	"github.com/cortexide/lapc/control"
	"github.com/cortexide/lapc/lapcserver"
	"github.com/cortexide/lapc/poolmgr"
)

type serveCmd struct {
	basePath     string
	configFile   string
	capacity     int
	pretty       bool
	execWorkers  int
	execNUMANode int
	pinCPU       int
	pinNUMA      int
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "bind a control socket and accept connections" }
func (*serveCmd) Usage() string {
	return "serve -base <path> [-config <file.toml>] [-capacity <n>] [-pretty] [-exec-workers <n>]\n"
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.basePath, "base", os.Getenv("LAPC_BASE_PATH"), "control socket base path (also read from LAPC_BASE_PATH)")
	f.StringVar(&c.configFile, "config", "", "optional TOML file of pool/ring tuning overrides")
	f.IntVar(&c.capacity, "capacity", 256, "registry slot capacity")
	f.BoolVar(&c.pretty, "pretty", isTerminal(os.Stdout), "pretty-print logs for an attached terminal")
	f.IntVar(&c.execWorkers, "exec-workers", 0, "cooperative scheduler worker count (0 disables it, falling back to one goroutine per session loop)")
	f.IntVar(&c.execNUMANode, "exec-numa-node", -1, "NUMA node the scheduler's workers pin to, -1 for no pinning")
	f.IntVar(&c.pinCPU, "pin-cpu", -1, "logical CPU to pin the accept/health thread to, -1 for none (a default CPU if -pin-numa is set)")
	f.IntVar(&c.pinNUMA, "pin-numa", -1, "NUMA node to pin the accept/health thread to, -1 for none (a default node if -pin-cpu is set)")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.basePath == "" {
		fmt.Fprintln(os.Stderr, "lapcd serve: -base (or LAPC_BASE_PATH) is required")
		return subcommands.ExitUsageError
	}

	configStore := control.NewConfigStore()
	if c.configFile != "" {
		if err := control.LoadFile(c.configFile, configStore); err != nil {
			fmt.Fprintf(os.Stderr, "lapcd serve: %v\n", err)
			return subcommands.ExitFailure
		}
	}

	var logSink api.LogSink
	if c.pretty {
		logSink = control.NewPrettyLogSink()
	} else {
		logSink = control.NewStdLogSink(nil)
	}

	debugProbes := control.NewDebugProbes()
	control.RegisterPlatformProbes(debugProbes)
	metricsReg := control.NewMetricsRegistry()
	ctrl := adapters.NewControlAdapterFrom(configStore, metricsReg, debugProbes)

	poolCfg := poolmgr.DefaultConfig(c.capacity)
	applyConfigOverrides(configStore.GetSnapshot(), &c.capacity, &poolCfg)

	opts := []lapcserver.ServerOption{
		lapcserver.WithLog(logSink),
		lapcserver.WithRegistryCapacity(c.capacity),
		lapcserver.WithPoolConfig(poolCfg),
		lapcserver.WithDebugProbes(debugProbes),
		lapcserver.WithControl(ctrl),
	}
	if c.execWorkers > 0 {
		opts = append(opts, lapcserver.WithExecutor(adapters.NewExecutorAdapter(c.execWorkers, c.execNUMANode)))
	}

	srv, err := lapcserver.ServerBind(c.basePath, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lapcd serve: bind %s: %v\n", c.basePath, err)
		return subcommands.ExitFailure
	}
	srv.Pool().SetMetricsRegistry(metricsReg)

	ctrl.OnReload(func() {
		snap := configStore.GetSnapshot()
		scaleUp, scaleDown, minInterval := poolCfg.ScaleUpThreshold, poolCfg.ScaleDownThreshold, poolCfg.MinScaleInterval
		if v, ok := floatFromAny(snap["scale_up_threshold"]); ok {
			scaleUp = v
		}
		if v, ok := floatFromAny(snap["scale_down_threshold"]); ok {
			scaleDown = v
		}
		if v, ok := durationSecondsFromAny(snap["min_scale_interval_seconds"]); ok {
			minInterval = v
		}
		srv.Pool().UpdateThresholds(scaleUp, scaleDown, minInterval)
		logSink.Infof("lapcd: applied hot-reloaded pool thresholds (scale_up=%.2f scale_down=%.2f min_interval=%s)",
			scaleUp, scaleDown, minInterval)
	})

	stopAdmin, err := serveAdmin(c.basePath, srv, debugProbes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "lapcd serve: admin socket: %v\n", err)
		return subcommands.ExitFailure
	}
	defer stopAdmin()

	runCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if c.pinCPU >= 0 || c.pinNUMA >= 0 {
		aff := adapters.NewAffinityAdapter()
		if err := aff.Pin(c.pinCPU, c.pinNUMA); err != nil {
			logSink.Warnf("lapcd: pin accept thread (cpu=%d numa=%d): %v", c.pinCPU, c.pinNUMA, err)
		} else {
			cpu, numa, _ := aff.Get()
			logSink.Infof("lapcd: accept/health thread pinned (cpu=%d numa=%d)", cpu, numa)
		}
	}

	logSink.Infof("lapcd: serving at %s (capacity=%d)", c.basePath, c.capacity)
	if err := srv.Run(runCtx); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "lapcd serve: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
