// File: cmd/lapcd/metrics.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type metricsCmd struct {
	basePath string
}

func (*metricsCmd) Name() string     { return "metrics" }
func (*metricsCmd) Synopsis() string { return "print a running lapcd's Prometheus metrics" }
func (*metricsCmd) Usage() string    { return "metrics -base <path>\n" }

func (c *metricsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.basePath, "base", os.Getenv("LAPC_BASE_PATH"), "control socket base path of the running lapcd")
}

func (c *metricsCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.basePath == "" {
		fmt.Fprintln(os.Stderr, "lapcd metrics: -base (or LAPC_BASE_PATH) is required")
		return subcommands.ExitUsageError
	}
	out, err := dialAdmin(c.basePath, "metrics")
	if err != nil {
		fmt.Fprintf(os.Stderr, "lapcd metrics: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Print(out)
	return subcommands.ExitSuccess
}
