// Package pipeline runs the depth acquisition loop: it owns the sensor,
// drives the temporal → spatial → gradient chain once per frame on a
// dedicated goroutine, and hands immutable results to consumers through
// bounded mailboxes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sandtable/internal/depth/l1sensor"
	"github.com/banshee-data/sandtable/internal/depth/l2frames"
	"github.com/banshee-data/sandtable/internal/depth/l3grid"
	"github.com/banshee-data/sandtable/internal/timeutil"
)

// sensorErrorBackoff spaces out retries after a transient read error.
const sensorErrorBackoff = 10 * time.Millisecond

// State is the filter state owned by the acquisition goroutine. Deferred
// actions receive it with exclusive access; it must not escape them.
type State struct {
	Width, Height int

	params     l3grid.Params
	temporal   *l3grid.TemporalFilter
	spatial    l3grid.SpatialFilter
	gradient   l3grid.GradientExtractor
	initFrames int
}

// Params returns the active filter parameters.
func (s *State) Params() l3grid.Params { return s.params }

// Temporal exposes the temporal filter for diagnostics.
func (s *State) Temporal() *l3grid.TemporalFilter { return s.temporal }

// InitFrames returns the frames processed since the last reset.
func (s *State) InitFrames() int { return s.initFrames }

// Apply switches to p. ROI and slot-count changes restart stabilisation.
func (s *State) Apply(p l3grid.Params) error {
	prevROI := s.temporal.ROI()
	prevSlots := s.params.AveragingSlots
	if err := s.temporal.Reconfigure(p); err != nil {
		return err
	}
	s.params = p
	if s.temporal.ROI() != prevROI || p.AveragingSlots != prevSlots {
		s.initFrames = 0
	}
	return nil
}

// Reset discards all accumulated statistics.
func (s *State) Reset() {
	s.temporal.Reset()
	s.initFrames = 0
}

type snapshot struct {
	raw      *l2frames.RawFrame
	filtered *l2frames.FilteredFrame
	gradient *l2frames.GradientField
}

// Grabber is the acquisition loop.
type Grabber struct {
	sensor l1sensor.Sensor
	clock  timeutil.Clock

	// Filtered, Colors and Gradients carry published results. They never
	// block the producer; see Mailbox.
	Filtered  *Mailbox[*l2frames.FilteredFrame]
	Colors    *Mailbox[*l2frames.ColorImage]
	Gradients *Mailbox[*l2frames.GradientField]

	mu        sync.Mutex
	initial   l3grid.Params
	state     *State
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	sessionID string

	actionsMu sync.Mutex
	actions   []func(*State)

	params     atomic.Pointer[l3grid.Params]
	snap       atomic.Pointer[snapshot]
	pending    atomic.Int32
	stabilized atomic.Bool

	framesProcessed atomic.Uint64
	sensorErrors    atomic.Uint64
	stablePixels    atomic.Int64
	lastPassNanos   atomic.Int64
}

// Option configures a Grabber.
type Option func(*Grabber)

// WithParams sets the filter parameters used by Setup.
func WithParams(p l3grid.Params) Option { return func(g *Grabber) { g.initial = p } }

// WithChannelDepth sets the capacity of the three output mailboxes.
func WithChannelDepth(n int) Option {
	return func(g *Grabber) {
		g.Filtered = NewMailbox[*l2frames.FilteredFrame](n)
		g.Colors = NewMailbox[*l2frames.ColorImage](n)
		g.Gradients = NewMailbox[*l2frames.GradientField](n)
	}
}

// WithClock sets the clock used to time filter passes.
func WithClock(c timeutil.Clock) Option { return func(g *Grabber) { g.clock = c } }

// NewGrabber returns a Grabber for sensor. Call Setup before Start.
func NewGrabber(sensor l1sensor.Sensor, opts ...Option) *Grabber {
	g := &Grabber{sensor: sensor, clock: timeutil.RealClock{}, initial: l3grid.DefaultParams()}
	WithChannelDepth(1)(g)
	for _, o := range opts {
		o(g)
	}
	return g
}

// Setup probes the sensor geometry and allocates the filter. It returns
// false, leaving the grabber untouched, if the device cannot be probed or
// the configured parameters do not fit it.
func (g *Grabber) Setup() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running {
		opsf("setup refused: acquisition is running")
		return false
	}
	w, h, err := g.sensor.Geometry()
	if err != nil {
		opsf("sensor setup failed: %v", err)
		return false
	}
	temporal, err := l3grid.NewTemporalFilter(w, h, g.initial)
	if err != nil {
		opsf("filter setup failed for %dx%d sensor: %v", w, h, err)
		return false
	}
	g.state = &State{Width: w, Height: h, params: g.initial, temporal: temporal}
	p := g.initial
	g.params.Store(&p)
	diagf("setup %dx%d roi=%v slots=%d", w, h, temporal.ROI(), p.AveragingSlots)
	return true
}

// Start opens the sensor and launches the acquisition goroutine with
// fresh buffers. Cancelling ctx also stops acquisition.
func (g *Grabber) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == nil {
		return errors.New("grabber: Start called before a successful Setup")
	}
	if g.running {
		return errors.New("grabber: already running")
	}
	if err := g.sensor.Open(ctx); err != nil {
		if errors.Is(err, l1sensor.ErrDeviceUnavailable) {
			return fmt.Errorf("grabber: open sensor: %w", err)
		}
		return fmt.Errorf("grabber: open sensor: %w: %v", l1sensor.ErrDeviceUnavailable, err)
	}

	g.state.Reset()
	g.pending.Store(0)
	g.stabilized.Store(false)
	g.snap.Store(nil)
	g.sessionID = uuid.NewString()

	loopCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.done = make(chan struct{})
	g.running = true
	diagf("acquisition started session=%s", g.sessionID)
	go g.run(loopCtx, g.state, g.done)
	return nil
}

// Stop halts acquisition, lets the in-flight frame finish, and closes the
// sensor. It is safe to call multiple times and before Start.
func (g *Grabber) Stop() {
	g.mu.Lock()
	cancel, done := g.cancel, g.done
	g.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsRunning reports whether the acquisition goroutine is alive.
func (g *Grabber) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

func (g *Grabber) run(ctx context.Context, s *State, done chan struct{}) {
	defer func() {
		if err := g.sensor.Close(); err != nil {
			opsf("sensor close: %v", err)
		}
		g.mu.Lock()
		g.running = false
		g.mu.Unlock()
		diagf("acquisition stopped after %d frames", g.framesProcessed.Load())
		close(done)
	}()

	for {
		frame, err := g.sensor.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				diagf("sensor stream ended")
				return
			}
			g.sensorErrors.Add(1)
			if errors.Is(err, l1sensor.ErrDeviceUnavailable) {
				opsf("sensor lost: %v", err)
				return
			}
			opsf("sensor read failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(sensorErrorBackoff):
			}
			continue
		}
		g.runActions(s)
		g.process(s, frame)
	}
}

// PerformInThread queues action to run on the acquisition goroutine
// between two filter passes.
func (g *Grabber) PerformInThread(action func(*State)) {
	g.actionsMu.Lock()
	g.actions = append(g.actions, action)
	g.actionsMu.Unlock()
}

func (g *Grabber) runActions(s *State) {
	g.actionsMu.Lock()
	actions := g.actions
	g.actions = nil
	g.actionsMu.Unlock()
	for _, a := range actions {
		a(s)
	}
	if len(actions) > 0 {
		p := s.params
		g.params.Store(&p)
	}
}

func (g *Grabber) process(s *State, frame *l2frames.RawFrame) {
	start := g.clock.Now()
	if frame.Depth == nil || frame.Depth.Width() != s.Width || frame.Depth.Height() != s.Height {
		g.sensorErrors.Add(1)
		opsf("dropping frame %d: unexpected geometry", frame.Seq)
		return
	}

	p := s.params
	roi := s.temporal.ROI()
	out := l2frames.NewGrid[float32](s.Width, s.Height)
	stable, err := s.temporal.Apply(frame.Depth, out)
	if err != nil {
		opsf("temporal filter: %v", err)
		return
	}
	if p.SpatialFilter {
		s.spatial.Apply(out, roi)
	}
	grad := s.gradient.Extract(out, roi, p.GradientResolution, p.MaxGradient)
	grad.Seq = frame.Seq
	s.initFrames++

	filtered := &l2frames.FilteredFrame{Seq: frame.Seq, Captured: frame.Captured, ROI: roi, Depth: out, StablePixels: stable}
	g.snap.Store(&snapshot{raw: frame, filtered: filtered, gradient: grad})

	if g.Gradients.Publish(grad) {
		tracef("gradient mailbox full, dropped oldest before frame %d", frame.Seq)
	}
	if img := l2frames.AlignColor(frame.Color, s.Width, s.Height); img != nil {
		if g.Colors.Publish(&l2frames.ColorImage{Seq: frame.Seq, Image: img}) {
			tracef("colour mailbox full, dropped oldest before frame %d", frame.Seq)
		}
	}
	if g.Filtered.Publish(filtered) {
		tracef("filtered mailbox full, dropped oldest before frame %d", frame.Seq)
	}
	g.markPending()

	if !g.stabilized.Load() && s.initFrames > p.MinInitFrames {
		diagf("image stabilised after %d frames", s.initFrames)
	}
	g.stabilized.Store(s.initFrames > p.MinInitFrames)
	g.framesProcessed.Add(1)
	g.stablePixels.Store(int64(stable))
	elapsed := g.clock.Since(start)
	g.lastPassNanos.Store(int64(elapsed))
	tracef("frame %d stable=%d/%d pass=%v", frame.Seq, stable, roi.Dx()*roi.Dy(), elapsed)
}

func (g *Grabber) markPending() {
	limit := int32(g.Filtered.Cap())
	for {
		n := g.pending.Load()
		if n >= limit || g.pending.CompareAndSwap(n, n+1) {
			return
		}
	}
}

// IsFrameNew reports whether a frame was published and not yet acknowledged.
func (g *Grabber) IsFrameNew() bool { return g.pending.Load() > 0 }

// AcknowledgeFrame marks one published frame as consumed.
func (g *Grabber) AcknowledgeFrame() {
	for {
		n := g.pending.Load()
		if n <= 0 || g.pending.CompareAndSwap(n, n-1) {
			return
		}
	}
}

// IsImageStabilized reports whether enough frames have been filtered since
// the last reset for the depth field to be meaningful.
func (g *Grabber) IsImageStabilized() bool { return g.stabilized.Load() }

// Geometry returns the sensor size recorded by Setup.
func (g *Grabber) Geometry() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == nil {
		return 0, 0
	}
	return g.state.Width, g.state.Height
}

// Params returns the parameters in force after the last applied action.
func (g *Grabber) Params() l3grid.Params {
	if p := g.params.Load(); p != nil {
		return *p
	}
	return g.initial
}

// RawDepthAt returns the last raw sample at (x, y).
func (g *Grabber) RawDepthAt(x, y int) (uint16, bool) {
	s := g.snap.Load()
	if s == nil {
		return 0, false
	}
	return s.raw.Depth.At(x, y)
}

// FilteredDepthAt returns the last filtered depth at (x, y).
func (g *Grabber) FilteredDepthAt(x, y int) (float32, bool) {
	s := g.snap.Load()
	if s == nil {
		return 0, false
	}
	return s.filtered.DepthAt(x, y)
}

// GradientAt returns the gradient of the cell covering sensor pixel (x, y).
func (g *Grabber) GradientAt(x, y int) (l2frames.Vec2, bool) {
	s := g.snap.Load()
	if s == nil {
		return l2frames.Vec2{}, false
	}
	return s.gradient.At(x, y)
}

// LatestFiltered returns the most recent filtered frame without touching
// the mailbox, or nil before the first frame.
func (g *Grabber) LatestFiltered() *l2frames.FilteredFrame {
	if s := g.snap.Load(); s != nil {
		return s.filtered
	}
	return nil
}

// LatestGradient returns the most recent gradient field, or nil.
func (g *Grabber) LatestGradient() *l2frames.GradientField {
	if s := g.snap.Load(); s != nil {
		return s.gradient
	}
	return nil
}
