package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/sandtable/internal/timeutil"
)

// StatsSource provides acquisition counters; *Grabber implements it.
type StatsSource interface {
	Stats() Stats
}

// StatsSink persists acquisition counters.
type StatsSink interface {
	RecordFrameStats(ctx context.Context, reason string, st Stats) error
}

// StatsFlusher periodically writes acquisition statistics to a sink.
type StatsFlusher struct {
	source   StatsSource
	sink     StatsSink
	interval time.Duration
	clock    timeutil.Clock

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// StatsFlusherConfig contains configuration for StatsFlusher.
type StatsFlusherConfig struct {
	Source StatsSource
	Sink   StatsSink
	// Interval is how often to flush; zero or negative disables the loop.
	Interval time.Duration
	// Clock is optional; nil uses real time.
	Clock timeutil.Clock
}

// NewStatsFlusher creates a StatsFlusher.
func NewStatsFlusher(cfg StatsFlusherConfig) *StatsFlusher {
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &StatsFlusher{
		source:   cfg.Source,
		sink:     cfg.Sink,
		interval: cfg.Interval,
		clock:    clock,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run flushes every interval until ctx is cancelled or Stop is called,
// then writes one final row. It returns nil on clean shutdown.
func (f *StatsFlusher) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	stopCh, doneCh := f.stopCh, f.doneCh
	f.mu.Unlock()

	defer func() {
		close(doneCh)
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	if f.interval <= 0 {
		diagf("stats flusher disabled: interval %v", f.interval)
		return nil
	}

	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()
	diagf("stats flusher started: interval=%v", f.interval)

	for {
		select {
		case <-ctx.Done():
			// The parent context is gone; give the final write its own deadline.
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			f.flush(final, "final_flush")
			cancel()
			return nil
		case <-stopCh:
			f.flush(context.Background(), "final_flush")
			return nil
		case <-ticker.C():
			f.flush(ctx, "periodic_flush")
		}
	}
}

// Stop requests the flusher to stop and waits for the final flush. It is
// safe to call multiple times.
func (f *StatsFlusher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	doneCh := f.doneCh
	f.mu.Unlock()
	<-doneCh
}

// IsRunning returns whether the flusher loop is active.
func (f *StatsFlusher) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// FlushNow writes one row immediately.
func (f *StatsFlusher) FlushNow(ctx context.Context) {
	f.flush(ctx, "manual_flush")
}

func (f *StatsFlusher) flush(ctx context.Context, reason string) {
	if f.source == nil || f.sink == nil {
		return
	}
	if err := f.sink.RecordFrameStats(ctx, reason, f.source.Stats()); err != nil {
		opsf("stats flush (%s) failed: %v", reason, err)
		return
	}
	tracef("stats flushed (%s)", reason)
}
