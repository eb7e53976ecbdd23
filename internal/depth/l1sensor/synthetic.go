package l1sensor

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/banshee-data/sandtable/internal/depth/l2frames"
	"github.com/banshee-data/sandtable/internal/timeutil"
)

// Hill is a Gaussian bump of sand; Height is in millimetres toward the camera.
type Hill struct {
	X, Y   float64
	Radius float64
	Height float64
}

// SyntheticConfig describes a generated sandbox.
type SyntheticConfig struct {
	Width, Height int
	FPS           float64
	// BaseDepth is the distance from camera to the flat sand, in millimetres.
	BaseDepth   float64
	Hills       []Hill
	NoiseStdDev float64
	// DropoutRate is the fraction of pixels reported as 0 (no reading).
	DropoutRate float64
	Seed        uint64
	Clock       timeutil.Clock
	// Unplugged makes Geometry and Open fail, as a missing device would.
	Unplugged bool
}

// DefaultSyntheticConfig is a 640×480 box at 30fps with two hills.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Width:       640,
		Height:      480,
		FPS:         30,
		BaseDepth:   1000,
		Hills:       []Hill{{X: 200, Y: 180, Radius: 80, Height: 120}, {X: 450, Y: 320, Radius: 60, Height: 80}},
		NoiseStdDev: 1.5,
		DropoutRate: 0.002,
		Seed:        1,
	}
}

// SyntheticSensor renders a noisy depth view of a configurable terrain.
type SyntheticSensor struct {
	cfg   SyntheticConfig
	clock timeutil.Clock

	mu      sync.Mutex
	terrain []float64
	rng     *rand.Rand
	ticker  timeutil.Ticker
	seq     uint64
}

// NewSyntheticSensor builds a sensor from cfg. A nil Clock means real time.
func NewSyntheticSensor(cfg SyntheticConfig) *SyntheticSensor {
	s := &SyntheticSensor{cfg: cfg, clock: cfg.Clock}
	if s.clock == nil {
		s.clock = timeutil.RealClock{}
	}
	s.Reshape(cfg.Hills)
	return s
}

// Reshape replaces the terrain, as if someone dug into the sand.
func (s *SyntheticSensor) Reshape(hills []Hill) {
	w, h := s.cfg.Width, s.cfg.Height
	if w <= 0 || h <= 0 {
		return
	}
	terrain := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			d := s.cfg.BaseDepth
			for _, hl := range hills {
				if hl.Radius <= 0 {
					continue
				}
				dx, dy := float64(x)-hl.X, float64(y)-hl.Y
				d -= hl.Height * math.Exp(-(dx*dx+dy*dy)/(2*hl.Radius*hl.Radius))
			}
			terrain[y*w+x] = d
		}
	}
	s.mu.Lock()
	s.terrain = terrain
	s.mu.Unlock()
}

// Geometry returns the configured frame size.
func (s *SyntheticSensor) Geometry() (int, int, error) {
	if s.cfg.Unplugged || s.cfg.Width <= 0 || s.cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("synthetic sensor %dx%d: %w", s.cfg.Width, s.cfg.Height, ErrDeviceUnavailable)
	}
	return s.cfg.Width, s.cfg.Height, nil
}

// Open arms the frame ticker and reseeds the noise source.
func (s *SyntheticSensor) Open(ctx context.Context) error {
	if _, _, err := s.Geometry(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	fps := s.cfg.FPS
	if fps <= 0 {
		fps = 30
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
	}
	s.ticker = s.clock.NewTicker(time.Duration(float64(time.Second) / fps))
	s.rng = rand.New(rand.NewPCG(s.cfg.Seed, s.cfg.Seed^0x5a17))
	s.seq = 0
	return nil
}

// NextFrame waits for the next tick and renders a frame.
func (s *SyntheticSensor) NextFrame(ctx context.Context) (*l2frames.RawFrame, error) {
	s.mu.Lock()
	ticker := s.ticker
	s.mu.Unlock()
	if ticker == nil {
		return nil, fmt.Errorf("synthetic sensor not open: %w", ErrDeviceUnavailable)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case now := <-ticker.C():
		return s.render(now), nil
	}
}

func (s *SyntheticSensor) render(now time.Time) *l2frames.RawFrame {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, h := s.cfg.Width, s.cfg.Height
	f := l2frames.NewRawFrame(w, h)
	s.seq++
	f.Seq = s.seq
	f.Captured = now

	depth := f.Depth.Values()
	for i, base := range s.terrain {
		if s.cfg.DropoutRate > 0 && s.rng.Float64() < s.cfg.DropoutRate {
			continue
		}
		d := base
		if s.cfg.NoiseStdDev > 0 {
			d += s.rng.NormFloat64() * s.cfg.NoiseStdDev
		}
		depth[i] = uint16(math.Max(0, math.Min(math.Round(d), math.MaxUint16)))
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Color.SetRGBA(x, y, sandShade(s.terrain[y*w+x], s.cfg.BaseDepth))
		}
	}
	return f
}

// sandShade brightens sand as it rises above the base depth.
func sandShade(depth, base float64) color.RGBA {
	lift := math.Max(0, math.Min(1, (base-depth)/200))
	return color.RGBA{
		R: uint8(170 + 70*lift),
		G: uint8(140 + 70*lift),
		B: uint8(90 + 50*lift),
		A: 255,
	}
}

// Close stops the ticker.
func (s *SyntheticSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	return nil
}
