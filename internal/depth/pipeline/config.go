package pipeline

import (
	"errors"
	"time"

	"github.com/banshee-data/sandtable/internal/config"
	"github.com/banshee-data/sandtable/internal/depth/l2frames"
	"github.com/banshee-data/sandtable/internal/depth/l3grid"
)

// ParamsFromTuning converts a tuning file into filter parameters.
func ParamsFromTuning(c *config.TuningConfig) l3grid.Params {
	p := l3grid.Params{
		AveragingSlots:     c.GetAveragingSlots(),
		MinSamples:         c.GetMinSamples(),
		MaxVariance:        c.GetMaxVariance(),
		Hysteresis:         c.GetHysteresis(),
		BigChange:          c.GetBigChange(),
		FollowBigChange:    c.GetFollowBigChange(),
		MaxOffset:          c.GetMaxOffset(),
		RetainValids:       c.GetRetainValids(),
		SpatialFilter:      c.GetSpatialFilter(),
		GradientResolution: c.GetGradientResolution(),
		MaxGradient:        c.GetMaxGradient(),
		MinInitFrames:      c.GetMinInitFrames(),
	}
	if r := c.GetROI(); r != nil {
		p.ROI = l2frames.ROI{MinX: r.MinX, MinY: r.MinY, MaxX: r.MaxX, MaxY: r.MaxY}
	}
	return p
}

// update validates mutate against the sensor now and defers the change to
// the acquisition goroutine, where it is applied to the parameters in force
// at that point so queued updates compose.
func (g *Grabber) update(name string, mutate func(*l3grid.Params)) error {
	w, h := g.Geometry()
	if w == 0 {
		return errors.New("grabber: configure after Setup")
	}
	candidate := g.Params()
	mutate(&candidate)
	if err := candidate.Validate(w, h); err != nil {
		return err
	}
	g.PerformInThread(func(s *State) {
		p := s.Params()
		mutate(&p)
		if err := s.Apply(p); err != nil {
			opsf("deferred %s rejected: %v", name, err)
			return
		}
		diagf("applied %s", name)
	})
	return nil
}

// SetParams replaces every filter parameter.
func (g *Grabber) SetParams(p l3grid.Params) error {
	return g.update("params", func(q *l3grid.Params) { *q = p })
}

// SetROI restricts filtering to roi and restarts stabilisation.
func (g *Grabber) SetROI(roi l2frames.ROI) error {
	return g.update("roi", func(p *l3grid.Params) { p.ROI = roi })
}

// SetAveragingSlots changes the window length and restarts stabilisation.
func (g *Grabber) SetAveragingSlots(n int) error {
	return g.update("averaging_slots", func(p *l3grid.Params) {
		p.AveragingSlots = n
		if p.MinSamples > n {
			p.MinSamples = 0
		}
	})
}

func (g *Grabber) SetSpatialFiltering(on bool) error {
	return g.update("spatial_filter", func(p *l3grid.Params) { p.SpatialFilter = on })
}

func (g *Grabber) SetFollowBigChange(on bool) error {
	return g.update("follow_big_change", func(p *l3grid.Params) { p.FollowBigChange = on })
}

func (g *Grabber) SetMaxOffset(v float64) error {
	return g.update("max_offset", func(p *l3grid.Params) { p.MaxOffset = v })
}

func (g *Grabber) SetMaxVariance(v float64) error {
	return g.update("max_variance", func(p *l3grid.Params) { p.MaxVariance = v })
}

func (g *Grabber) SetHysteresis(v float64) error {
	return g.update("hysteresis", func(p *l3grid.Params) { p.Hysteresis = v })
}

func (g *Grabber) SetGradientResolution(res int) error {
	return g.update("gradient_resolution", func(p *l3grid.Params) { p.GradientResolution = res })
}

// ResetBuffers discards all statistics before the next frame.
func (g *Grabber) ResetBuffers() {
	g.PerformInThread(func(s *State) {
		s.Reset()
		diagf("buffers reset")
	})
}

// Stats is a point-in-time view of the acquisition loop.
type Stats struct {
	SessionID       string        `json:"session_id"`
	Running         bool          `json:"running"`
	Stabilized      bool          `json:"stabilized"`
	Width           int           `json:"width"`
	Height          int           `json:"height"`
	FramesProcessed uint64        `json:"frames_processed"`
	SensorErrors    uint64        `json:"sensor_errors"`
	StablePixels    int64         `json:"stable_pixels"`
	ROIPixels       int           `json:"roi_pixels"`
	LastPass        time.Duration `json:"last_pass_nanos"`
	PendingFrames   int           `json:"pending_frames"`
	Filtered        MailboxStats  `json:"filtered"`
	Colors          MailboxStats  `json:"colors"`
	Gradients       MailboxStats  `json:"gradients"`
}

// Stats returns current counters.
func (g *Grabber) Stats() Stats {
	g.mu.Lock()
	st := Stats{SessionID: g.sessionID, Running: g.running}
	if g.state != nil {
		st.Width, st.Height = g.state.Width, g.state.Height
	}
	g.mu.Unlock()

	roi := g.Params().EffectiveROI(st.Width, st.Height)
	st.ROIPixels = roi.Dx() * roi.Dy()
	st.Stabilized = g.stabilized.Load()
	st.FramesProcessed = g.framesProcessed.Load()
	st.SensorErrors = g.sensorErrors.Load()
	st.StablePixels = g.stablePixels.Load()
	st.LastPass = time.Duration(g.lastPassNanos.Load())
	st.PendingFrames = int(g.pending.Load())
	st.Filtered = g.Filtered.Stats()
	st.Colors = g.Colors.Stats()
	st.Gradients = g.Gradients.Stats()
	return st
}
