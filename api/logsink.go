// File: api/logsink.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Pluggable logging sink: the transport core never picks a logging
// framework for its caller, it only ever writes through this interface.

package api

// LogSink is the logging surface every package in this module accepts
// instead of reaching for a global logger. A nil LogSink is never passed
// around internally; callers that don't care use NoopLogSink{}.
type LogSink interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NoopLogSink discards everything. Used as the default when a caller
// constructs a component without supplying a LogSink.
type NoopLogSink struct{}

func (NoopLogSink) Debugf(format string, args ...any) {}
func (NoopLogSink) Infof(format string, args ...any)  {}
func (NoopLogSink) Warnf(format string, args ...any)  {}
func (NoopLogSink) Errorf(format string, args ...any) {}
