// control/logsink.go
// Author: momentics <momentics@gmail.com>
//
// Concrete api.LogSink implementations. The transport core itself never
// imports either of these — it only depends on api.LogSink — but a host
// process needs something to pass in.

package control

import (
	"log"
	"os"

	charmlog "github.com/charmbracelet/log"

	"github.com/cortexide/lapc/api"
)

// StdLogSink wraps the standard library's *log.Logger, matching the plain
// logging style the core components fall back to when nothing fancier is
// wired in.
type StdLogSink struct {
	logger *log.Logger
}

// NewStdLogSink wraps l, or constructs a default logger to os.Stderr if l
// is nil.
func NewStdLogSink(l *log.Logger) *StdLogSink {
	if l == nil {
		l = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &StdLogSink{logger: l}
}

func (s *StdLogSink) Debugf(format string, args ...any) { s.logger.Printf("DEBUG "+format, args...) }
func (s *StdLogSink) Infof(format string, args ...any)  { s.logger.Printf("INFO "+format, args...) }
func (s *StdLogSink) Warnf(format string, args ...any)  { s.logger.Printf("WARN "+format, args...) }
func (s *StdLogSink) Errorf(format string, args ...any) { s.logger.Printf("ERROR "+format, args...) }

var _ api.LogSink = (*StdLogSink)(nil)

// PrettyLogSink wraps charmbracelet/log for a human-facing terminal,
// used by cmd/lapcd when stdout is attached to one. Library code never
// constructs this itself.
type PrettyLogSink struct {
	logger *charmlog.Logger
}

// NewPrettyLogSink builds a PrettyLogSink writing to os.Stderr with
// caller-friendly styling.
func NewPrettyLogSink() *PrettyLogSink {
	return &PrettyLogSink{logger: charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		ReportCaller:    false,
	})}
}

func (s *PrettyLogSink) Debugf(format string, args ...any) { s.logger.Debugf(format, args...) }
func (s *PrettyLogSink) Infof(format string, args ...any)  { s.logger.Infof(format, args...) }
func (s *PrettyLogSink) Warnf(format string, args ...any)  { s.logger.Warnf(format, args...) }
func (s *PrettyLogSink) Errorf(format string, args ...any) { s.logger.Errorf(format, args...) }

var _ api.LogSink = (*PrettyLogSink)(nil)
