// File: cmd/lapcd/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// lapcd is the thin host binary wrapping lapcserver: it is the
// "surrounding application" that binds a control socket, serves
// connections, and exposes the pool's metrics/debug surface to an
// operator through a small admin socket. None of this is part of the
// covered transport core; it is where the CLI/config dependencies the
// wider example pack favors get a concrete home.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; development convenience only, never required.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "lapcd: .env: %v\n", err)
	}

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&serveCmd{}, "")
	subcommands.Register(&metricsCmd{}, "")
	subcommands.Register(&probeCmd{}, "")
	subcommands.Register(&configCmd{}, "")

	flag.Parse()
	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
