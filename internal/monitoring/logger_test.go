package monitoring

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}

func TestStreams_RouteByAudience(t *testing.T) {
	var ops, diag bytes.Buffer
	s := NewStreams("[grabber] ")

	// Disabled streams must not panic.
	s.Opsf("dropped %d", 1)

	s.SetWriters(&ops, &diag, nil)
	s.Opsf("sensor read failed: %s", "timeout")
	s.Diagf("roi=%d", 4)
	s.Tracef("frame %d", 7)

	// The prefix leads the line and the timestamp sits between it and the message.
	if !strings.HasPrefix(ops.String(), "[grabber] ") {
		t.Errorf("ops stream missing prefix: %q", ops.String())
	}
	if !strings.HasSuffix(ops.String(), " sensor read failed: timeout\n") {
		t.Errorf("ops stream missing message: %q", ops.String())
	}
	if !strings.HasPrefix(diag.String(), "[grabber] ") {
		t.Errorf("diag stream missing prefix: %q", diag.String())
	}
	if !strings.Contains(diag.String(), "roi=4") {
		t.Errorf("diag stream missing message: %q", diag.String())
	}
	if strings.Contains(ops.String(), "roi=4") || strings.Contains(diag.String(), "sensor read failed") {
		t.Error("streams leaked into each other")
	}
	if s.TraceEnabled() {
		t.Error("trace should be disabled with a nil writer")
	}
}
