// File: cmd/lapcd/admin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A tiny text admin socket alongside the rendezvous control socket so
// `lapcd metrics`/`lapcd probe` can inspect a running `lapcd serve`
// process without a second RPC framework. Not part of the transport
// core; this lives entirely in the host binary.

package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cortexide/lapc/control"
	"github.com/cortexide/lapc/lapcserver"
)

func adminPath(basePath string) string { return basePath + ".admin" }

// serveAdmin accepts connections on basePath+".admin" and, for every one,
// writes a single text report before closing it. cmd selects which
// report: "metrics", "probe" or "config".
func serveAdmin(basePath string, srv *lapcserver.Server, debug *control.DebugProbes) (func() error, error) {
	path := adminPath(basePath)
	_ = os.Remove(path)
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("bind admin socket %s: %w", path, err)
	}
	_ = os.Chmod(path, 0600)

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleAdminConn(conn, srv, debug)
		}
	}()

	return func() error {
		err := listener.Close()
		_ = os.Remove(path)
		return err
	}, nil
}

func handleAdminConn(conn net.Conn, srv *lapcserver.Server, debug *control.DebugProbes) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		return
	}

	switch trimLine(line) {
	case "metrics":
		fmt.Fprint(conn, srv.ExportMetrics())
	case "probe":
		if debug == nil {
			fmt.Fprintln(conn, "# no debug probes registered")
			return
		}
		for name, value := range debug.DumpState() {
			fmt.Fprintf(conn, "%s: %v\n", name, value)
		}
	case "config":
		ctrl := srv.GetControl()
		if ctrl == nil {
			fmt.Fprintln(conn, "# no control adapter attached")
			return
		}
		for k, v := range ctrl.GetConfig() {
			fmt.Fprintf(conn, "%s: %v\n", k, v)
		}
	default:
		fmt.Fprintln(conn, "# unknown admin command")
	}
}

func trimLine(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// dialAdmin connects to a running lapcd's admin socket, sends cmd, and
// returns its full text reply.
func dialAdmin(basePath, cmd string) (string, error) {
	conn, err := net.Dial("unix", adminPath(basePath))
	if err != nil {
		return "", fmt.Errorf("dial admin socket: %w", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", err
	}

	var out []byte
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err != nil {
			break
		}
	}
	return string(out), nil
}
