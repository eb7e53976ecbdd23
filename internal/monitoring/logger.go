// Package monitoring holds the process-wide logging hooks shared by the
// depth pipeline, the calibration solver and the HTTP surfaces.
package monitoring

import (
	"io"
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Streams is a prefixed trio of loggers split by audience:
// ops for actionable warnings and data loss, diag for tuning context,
// trace for per-frame telemetry. A nil writer disables a stream.
type Streams struct {
	prefix string
	ops    atomic.Pointer[log.Logger]
	diag   atomic.Pointer[log.Logger]
	trace  atomic.Pointer[log.Logger]
}

// NewStreams returns Streams with every stream disabled.
func NewStreams(prefix string) *Streams {
	return &Streams{prefix: prefix}
}

// SetWriters swaps all three writers at once.
func (s *Streams) SetWriters(ops, diag, trace io.Writer) {
	s.ops.Store(newLogger(s.prefix, ops))
	s.diag.Store(newLogger(s.prefix, diag))
	s.trace.Store(newLogger(s.prefix, trace))
}

func newLogger(prefix string, w io.Writer) *log.Logger {
	if w == nil {
		return nil
	}
	return log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
}

// Opsf logs to the ops stream.
func (s *Streams) Opsf(format string, args ...interface{}) {
	if l := s.ops.Load(); l != nil {
		l.Printf(format, args...)
	}
}

// Diagf logs to the diag stream.
func (s *Streams) Diagf(format string, args ...interface{}) {
	if l := s.diag.Load(); l != nil {
		l.Printf(format, args...)
	}
}

// Tracef logs to the trace stream.
func (s *Streams) Tracef(format string, args ...interface{}) {
	if l := s.trace.Load(); l != nil {
		l.Printf(format, args...)
	}
}

// TraceEnabled reports whether the trace stream has a writer, so hot loops
// can skip building per-frame arguments.
func (s *Streams) TraceEnabled() bool {
	return s.trace.Load() != nil
}
