// File: cmd/lapcd/probe.go
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

type probeCmd struct {
	basePath string
}

func (*probeCmd) Name() string     { return "probe" }
func (*probeCmd) Synopsis() string { return "dump a running lapcd's registered debug probes" }
func (*probeCmd) Usage() string    { return "probe -base <path>\n" }

func (c *probeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.basePath, "base", os.Getenv("LAPC_BASE_PATH"), "control socket base path of the running lapcd")
}

func (c *probeCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.basePath == "" {
		fmt.Fprintln(os.Stderr, "lapcd probe: -base (or LAPC_BASE_PATH) is required")
		return subcommands.ExitUsageError
	}
	out, err := dialAdmin(c.basePath, "probe")
	if err != nil {
		fmt.Fprintf(os.Stderr, "lapcd probe: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Print(out)
	return subcommands.ExitSuccess
}
