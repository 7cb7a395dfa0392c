// File: cmd/lapcd/config_cmd.go
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

type configCmd struct {
	basePath string
}

func (*configCmd) Name() string     { return "config" }
func (*configCmd) Synopsis() string { return "print a running lapcd's live config snapshot" }
func (*configCmd) Usage() string    { return "config -base <path>\n" }

func (c *configCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.basePath, "base", os.Getenv("LAPC_BASE_PATH"), "control socket base path of the running lapcd")
}

func (c *configCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	if c.basePath == "" {
		fmt.Fprintln(os.Stderr, "lapcd config: -base (or LAPC_BASE_PATH) is required")
		return subcommands.ExitUsageError
	}
	out, err := dialAdmin(c.basePath, "config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "lapcd config: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Print(out)
	return subcommands.ExitSuccess
}
