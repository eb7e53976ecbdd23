package l3grid

import (
	"fmt"
	"math"

	"github.com/banshee-data/sandtable/internal/depth/l2frames"
)

// TemporalFilter turns raw depth frames into per-pixel validated depth
// using a rolling window of samples per pixel.
type TemporalFilter struct {
	params     Params
	minSamples int
	w, h       int
	roi        l2frames.ROI

	ring  *AveragingRing
	stats *StatBuffer
	valid []float32

	frames int
}

// NewTemporalFilter allocates filter state for a w×h sensor.
func NewTemporalFilter(w, h int, p Params) (*TemporalFilter, error) {
	if err := p.Validate(w, h); err != nil {
		return nil, err
	}
	f := &TemporalFilter{w: w, h: h}
	f.configure(p)
	return f, nil
}

func (f *TemporalFilter) configure(p Params) {
	n := f.w * f.h
	f.params = p
	f.minSamples = p.EffectiveMinSamples()
	f.roi = p.EffectiveROI(f.w, f.h)
	if f.ring == nil || f.ring.Slots() != p.AveragingSlots {
		f.ring = NewAveragingRing(p.AveragingSlots, n)
	}
	if f.stats == nil {
		f.stats = NewStatBuffer(n)
		f.valid = make([]float32, n)
	}
	f.Reset()
}

// Reconfigure applies p. A change of ROI or slot count discards all
// accumulated state; threshold changes take effect on the next frame.
func (f *TemporalFilter) Reconfigure(p Params) error {
	if err := p.Validate(f.w, f.h); err != nil {
		return err
	}
	if p.AveragingSlots != f.params.AveragingSlots || p.EffectiveROI(f.w, f.h) != f.roi {
		f.configure(p)
		return nil
	}
	f.params = p
	f.minSamples = p.EffectiveMinSamples()
	return nil
}

// Reset discards every sample and published value.
func (f *TemporalFilter) Reset() {
	f.ring.Reset()
	f.stats.Reset()
	for i := range f.valid {
		f.valid[i] = l2frames.InitialValue
	}
	f.frames = 0
}

// Params returns the active parameters.
func (f *TemporalFilter) Params() Params { return f.params }

// ROI returns the resolved region of interest.
func (f *TemporalFilter) ROI() l2frames.ROI { return f.roi }

// Frames returns the number of frames applied since the last reset.
func (f *TemporalFilter) Frames() int { return f.frames }

// WriteIndex returns the averaging slot the next frame writes into.
func (f *TemporalFilter) WriteIndex() int { return f.ring.Index() }

// Apply folds raw into the running statistics and writes one value per
// pixel into out. It returns the number of stable pixels inside the ROI.
func (f *TemporalFilter) Apply(raw *l2frames.Grid[uint16], out *l2frames.Grid[float32]) (int, error) {
	if raw.Width() != f.w || raw.Height() != f.h || out.Width() != f.w || out.Height() != f.h {
		return 0, fmt.Errorf("frame %dx%d does not match filter %dx%d", raw.Width(), raw.Height(), f.w, f.h)
	}
	src := raw.Values()
	dst := out.Values()
	stable := 0

	for y := 0; y < f.h; y++ {
		row := y * f.w
		if y < f.roi.MinY || y >= f.roi.MaxY {
			fillSentinel(dst[row : row+f.w])
			continue
		}
		fillSentinel(dst[row : row+f.roi.MinX])
		fillSentinel(dst[row+f.roi.MaxX : row+f.w])
		for i := row + f.roi.MinX; i < row+f.roi.MaxX; i++ {
			var ok bool
			dst[i], ok = f.update(i, float64(src[i]))
			if ok {
				stable++
			}
		}
	}

	f.ring.Advance()
	f.frames++
	return stable, nil
}

func fillSentinel(s []float32) {
	for i := range s {
		s[i] = l2frames.OutsideROIValue
	}
}

// update processes one sample for pixel i and returns its output value
// and stability.
func (f *TemporalFilter) update(i int, sample float64) (float32, bool) {
	p := &f.params
	if sample > p.MaxOffset {
		if p.FollowBigChange && f.stats.Count(i) > 0 && math.Abs(sample-f.stats.Mean(i)) > p.BigChange {
			f.ring.restart(i, float32(sample))
			f.stats.restart(i, sample)
		} else {
			if old := f.ring.swap(i, float32(sample)); old != 0 {
				f.stats.remove(i, float64(old))
			}
			f.stats.add(i, sample)
		}
	}

	n := f.stats.Count(i)
	if n == 0 {
		return l2frames.InitialValue, false
	}
	stable := n >= f.minSamples && f.stats.Variance(i) <= p.MaxVariance
	if stable {
		mean := f.stats.Mean(i)
		if math.Abs(mean-float64(f.valid[i])) >= p.Hysteresis {
			f.valid[i] = float32(mean)
		}
		return f.valid[i], true
	}
	if p.RetainValids {
		return f.valid[i], false
	}
	return l2frames.InstableValue, false
}

// Stat returns the running statistics of pixel (x, y).
func (f *TemporalFilter) Stat(x, y int) (PixelStat, bool) {
	if x < 0 || y < 0 || x >= f.w || y >= f.h {
		return PixelStat{}, false
	}
	return f.stats.Stat(y*f.w + x), true
}

// Valid returns the last stable value published for (x, y).
func (f *TemporalFilter) Valid(x, y int) (float32, bool) {
	if x < 0 || y < 0 || x >= f.w || y >= f.h {
		return 0, false
	}
	return f.valid[y*f.w+x], true
}

// Slot returns averaging slot s of pixel (x, y); 0 means unpopulated.
func (f *TemporalFilter) Slot(x, y, s int) (float32, bool) {
	if x < 0 || y < 0 || x >= f.w || y >= f.h || s < 0 || s >= f.ring.Slots() {
		return 0, false
	}
	return f.ring.At(s, y*f.w+x), true
}
