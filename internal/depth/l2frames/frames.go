// Package l2frames holds the frame and field types exchanged between the
// sensor, the filter chain and consumers. Published frames are immutable.
package l2frames

import (
	"image"
	"math"
	"time"
)

// Depth sentinels written into filtered frames.
const (
	// InitialValue marks a pixel that has never received a valid sample.
	InitialValue float32 = 4000
	// OutsideROIValue marks a pixel outside the region of interest.
	OutsideROIValue float32 = 3999
	// InstableValue is emitted for unstable pixels when valid values are not retained.
	InstableValue float32 = 0
)

// IsValidDepth reports whether v is a measured depth rather than a sentinel.
func IsValidDepth(v float32) bool {
	return v != InitialValue && v != OutsideROIValue && v != InstableValue
}

// RawFrame is one sensor tick: depth in millimetres (0 means no reading)
// and a colour image aligned to the depth geometry.
type RawFrame struct {
	Seq      uint64
	Captured time.Time
	Depth    *Grid[uint16]
	Color    *image.RGBA
}

// NewRawFrame allocates a w×h frame with an aligned colour image.
func NewRawFrame(w, h int) *RawFrame {
	return &RawFrame{
		Depth: NewGrid[uint16](w, h),
		Color: image.NewRGBA(image.Rect(0, 0, w, h)),
	}
}

// FilteredFrame is the stabilised depth field for one input frame.
type FilteredFrame struct {
	Seq          uint64
	Captured     time.Time
	ROI          ROI
	Depth        *Grid[float32]
	StablePixels int
}

// DepthAt returns the filtered depth at (x, y).
func (f *FilteredFrame) DepthAt(x, y int) (float32, bool) {
	return f.Depth.At(x, y)
}

// ColorImage is a published colour frame.
type ColorImage struct {
	Seq   uint64
	Image *image.RGBA
}

// Vec2 is a 2D vector in depth units per pixel.
type Vec2 struct {
	X, Y float32
}

// Len returns the Euclidean length.
func (v Vec2) Len() float32 {
	return float32(math.Hypot(float64(v.X), float64(v.Y)))
}

// Scale multiplies both components by s.
func (v Vec2) Scale(s float32) Vec2 { return Vec2{v.X * s, v.Y * s} }

// ClampLen rescales v so its length does not exceed limit.
func (v Vec2) ClampLen(limit float32) Vec2 {
	l := v.Len()
	if l <= limit || l == 0 {
		return v
	}
	scale := float32(float64(limit) / math.Hypot(float64(v.X), float64(v.Y)))
	out := v.Scale(scale)
	// float32 rounding can land one ulp above limit.
	for out.Len() > limit && scale > 0 {
		scale = math.Nextafter32(scale, 0)
		out = v.Scale(scale)
	}
	return out
}

// GradientField is a coarse grid of height gradients covering the ROI.
// Cell (i, j) spans sensor pixels [Origin.X+i*Resolution, +Resolution) on
// each axis. Vectors point uphill, toward decreasing depth.
type GradientField struct {
	Seq        uint64
	Resolution int
	Origin     image.Point
	Cells      *Grid[Vec2]
}

// At returns the gradient of the cell containing sensor pixel (x, y).
func (g *GradientField) At(x, y int) (Vec2, bool) {
	if g.Resolution <= 0 || x < g.Origin.X || y < g.Origin.Y {
		return Vec2{}, false
	}
	return g.Cells.At((x-g.Origin.X)/g.Resolution, (y-g.Origin.Y)/g.Resolution)
}
