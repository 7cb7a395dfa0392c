// File: lapcserver/server.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package lapcserver is the server-side process facade: it wires
// rendezvous.Server, registry.Registry, poolmgr.Pool and session.Session
// together into the single entry point a host process binds and runs.

package lapcserver

import (
	"context"
	"sync"
	"time"

	"github.com/cortexide/lapc/api"
	"github.com/cortexide/lapc/poolmgr"
	"github.com/cortexide/lapc/registry"
	"github.com/cortexide/lapc/rendezvous"
	"github.com/cortexide/lapc/session"
)

// Server listens for clients at basePath, negotiating a ring pair and
// doorbell pair for each one and exposing the result as a session.Session.
type Server struct {
	basePath string
	cfg      Config

	reg     *registry.Registry
	rz      *rendezvous.Server
	pool    *poolmgr.Pool
	control api.Control

	mu       sync.Mutex
	sessions map[uint32]*session.Session

	closeOnce sync.Once
}

// ServerBind creates the control socket at basePath+".ctl" and constructs
// the registry and pool manager backing it. It does not yet accept
// connections; call Run to start the accept loop.
func ServerBind(basePath string, opts ...ServerOption) (*Server, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Log == nil {
		cfg.Log = api.NoopLogSink{}
	}
	if cfg.Rendezvous.Log == nil {
		cfg.Rendezvous.Log = cfg.Log
	}
	if cfg.Pool.Log == nil {
		cfg.Pool.Log = cfg.Log
	}
	if cfg.Session.Log == nil {
		cfg.Session.Log = cfg.Log
	}

	reg := registry.New(cfg.RegistryCapacity)
	rz, err := rendezvous.Bind(basePath, reg, cfg.Rendezvous)
	if err != nil {
		return nil, err
	}
	pool := poolmgr.New(reg, cfg.Pool)

	s := &Server{
		basePath: basePath,
		cfg:      cfg,
		reg:      reg,
		rz:       rz,
		pool:     pool,
		control:  cfg.Control,
		sessions: make(map[uint32]*session.Session),
	}
	if cfg.Debug != nil {
		cfg.Debug.RegisterProbe("lapcserver.slots", func() any { return reg.Snapshot() })
		cfg.Debug.RegisterProbe("lapcserver.pool", func() any { return pool.Snapshot() })
	}
	return s, nil
}

// Run drives the accept loop and the pool's periodic health check until
// ctx is cancelled or the listener's Serve call returns. It always closes
// the server before returning.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.rz.Serve() }()

	interval := s.cfg.Pool.HealthCheckInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-serveErr:
			return err
		case accepted, ok := <-s.rz.Accepted():
			if !ok {
				continue
			}
			s.adopt(accepted)
		case <-ticker.C:
			s.pool.HealthCheck(ctx)
		}
	}
}

func (s *Server) adopt(accepted rendezvous.Accepted) {
	s.pool.Track(accepted.Slot, accepted.SendBell, accepted.RecvBell)

	index := accepted.Slot.Index
	sess := session.New(
		accepted.ServerToRing,
		accepted.ClientToRing,
		accepted.SendBell,
		accepted.RecvBell,
		s.cfg.Session,
		func() {
			s.pool.Release(accepted.Slot)
			s.mu.Lock()
			delete(s.sessions, index)
			s.mu.Unlock()
		},
	)

	s.mu.Lock()
	s.sessions[index] = sess
	s.mu.Unlock()

	s.cfg.Log.Infof("lapcserver: accepted slot %d generation %d client %q",
		index, accepted.Slot.Generation, accepted.Slot.ClientName)
}

// Sessions returns a point-in-time snapshot of active sessions keyed by
// registry slot index.
func (s *Server) Sessions() map[uint32]*session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint32]*session.Session, len(s.sessions))
	for k, v := range s.sessions {
		out[k] = v
	}
	return out
}

// ExportMetrics renders the pool manager's counters as Prometheus text
// exposition format.
func (s *Server) ExportMetrics() string { return s.pool.ExportMetrics() }

// Pool returns the server's pool manager, so a caller such as cmd/lapcd's
// hot-reload hook can push updated scaling thresholds into it without
// reaching past the Server facade.
func (s *Server) Pool() *poolmgr.Pool { return s.pool }

// GetControl returns the api.Control facade supplied via WithControl, or
// nil if none was attached.
func (s *Server) GetControl() api.Control { return s.control }

// Close stops accepting new connections, closes every active session, and
// removes the control socket file. Idempotent.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.rz.Close()
		s.mu.Lock()
		sessions := make([]*session.Session, 0, len(s.sessions))
		for _, sess := range s.sessions {
			sessions = append(sessions, sess)
		}
		s.mu.Unlock()
		for _, sess := range sessions {
			_ = sess.Close()
		}
	})
	return err
}
