package pipeline

import (
	"io"

	"github.com/banshee-data/sandtable/internal/monitoring"
)

var logs = monitoring.NewStreams("[pipeline] ")

// SetLogWriters configures the three logging streams for the pipeline package.
// Pass nil for any writer to disable that stream.
func SetLogWriters(ops, diag, trace io.Writer) {
	logs.SetWriters(ops, diag, trace)
}

// opsf logs actionable warnings: sensor failures, dropped frames.
func opsf(format string, args ...interface{}) { logs.Opsf(format, args...) }

// diagf logs tuning context: parameter changes, lifecycle.
func diagf(format string, args ...interface{}) { logs.Diagf(format, args...) }

// tracef logs per-frame telemetry.
func tracef(format string, args ...interface{}) { logs.Tracef(format, args...) }
