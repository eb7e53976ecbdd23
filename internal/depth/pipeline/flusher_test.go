package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sandtable/internal/timeutil"
)

type staticSource struct{ st Stats }

func (s staticSource) Stats() Stats { return s.st }

type recordingSink struct {
	mu      sync.Mutex
	reasons []string
	last    Stats
	err     error
}

func (s *recordingSink) RecordFrameStats(_ context.Context, reason string, st Stats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reasons = append(s.reasons, reason)
	s.last = st
	return nil
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reasons...)
}

func TestStatsFlusher_PeriodicAndFinal(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	sink := &recordingSink{}
	f := NewStatsFlusher(StatsFlusherConfig{
		Source:   staticSource{Stats{FramesProcessed: 42}},
		Sink:     sink,
		Interval: 30 * time.Second,
		Clock:    clock,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- f.Run(context.Background()) }()
	require.Eventually(t, func() bool { return clock.TickerCount() == 1 }, 2*time.Second, time.Millisecond)
	assert.True(t, f.IsRunning())

	clock.Advance(10 * time.Second)
	clock.Advance(25 * time.Second)
	require.Eventually(t, func() bool { return len(sink.snapshot()) == 1 }, 2*time.Second, time.Millisecond)

	f.Stop()
	f.Stop()
	require.NoError(t, <-errCh)
	assert.False(t, f.IsRunning())
	assert.Equal(t, []string{"periodic_flush", "final_flush"}, sink.snapshot())
	assert.Equal(t, uint64(42), sink.last.FramesProcessed)
}

func TestStatsFlusher_ContextCancelFlushes(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sink := &recordingSink{}
	f := NewStatsFlusher(StatsFlusherConfig{Source: staticSource{}, Sink: sink, Interval: time.Second, Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.Run(ctx) }()
	require.Eventually(t, func() bool { return clock.TickerCount() == 1 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"final_flush"}, sink.snapshot())
}

func TestStatsFlusher_DisabledInterval(t *testing.T) {
	sink := &recordingSink{}
	f := NewStatsFlusher(StatsFlusherConfig{Source: staticSource{}, Sink: sink})
	require.NoError(t, f.Run(context.Background()))
	assert.Empty(t, sink.snapshot())
	f.Stop()
}

func TestStatsFlusher_FlushNowAndSinkErrors(t *testing.T) {
	sink := &recordingSink{}
	f := NewStatsFlusher(StatsFlusherConfig{Source: staticSource{}, Sink: sink})
	f.FlushNow(context.Background())
	assert.Equal(t, []string{"manual_flush"}, sink.snapshot())

	sink.err = errors.New("disk full")
	f.FlushNow(context.Background())
	assert.Len(t, sink.snapshot(), 1)

	// A flusher without a sink is a no-op.
	NewStatsFlusher(StatsFlusherConfig{Source: staticSource{}}).FlushNow(context.Background())
}
