package testutil

import (
	"context"
	"errors"
	"io"
	"testing"
)

func TestScriptedSensor(t *testing.T) {
	s := NewScriptedSensor(4, 3)
	ctx := context.Background()

	go func() {
		s.Frames <- s.Frame(500)
		s.Frames <- s.Frame(600)
		close(s.Frames)
	}()

	for want := uint64(1); want <= 2; want++ {
		f, err := s.NextFrame(ctx)
		if err != nil {
			t.Fatalf("NextFrame: %v", err)
		}
		if f.Seq != want {
			t.Errorf("seq = %d, want %d", f.Seq, want)
		}
	}
	if _, err := s.NextFrame(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("after close: %v, want io.EOF", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := NewScriptedSensor(1, 1).NextFrame(cancelled); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled: %v", err)
	}
}
