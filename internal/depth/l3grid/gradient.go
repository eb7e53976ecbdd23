package l3grid

import (
	"image"

	"github.com/banshee-data/sandtable/internal/depth/l2frames"
)

// GradientExtractor derives a coarse height-gradient field from filtered
// depth. It keeps scratch buffers between frames.
type GradientExtractor struct {
	mean  []float64
	valid []bool
}

// Extract downsamples roi into res×res cells and returns the clamped
// gradient of every cell. Cells without valid depth, and cells whose
// neighbours are all invalid along an axis, get a zero component.
func (e *GradientExtractor) Extract(frame *l2frames.Grid[float32], roi l2frames.ROI, res int, maxGradient float64) *l2frames.GradientField {
	field := &l2frames.GradientField{Resolution: res, Origin: image.Pt(roi.MinX, roi.MinY)}
	if res <= 0 {
		field.Cells = l2frames.NewGrid[l2frames.Vec2](0, 0)
		return field
	}
	cols, rows := roi.Dx()/res, roi.Dy()/res
	field.Cells = l2frames.NewGrid[l2frames.Vec2](cols, rows)
	if cols == 0 || rows == 0 {
		return field
	}

	e.downsample(frame, roi, res, cols, rows)

	cells := field.Cells.Values()
	limit := float32(maxGradient)
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			c := j*cols + i
			if !e.valid[c] {
				continue
			}
			gx := e.diff(c, i > 0, c-1, i < cols-1, c+1, res)
			gy := e.diff(c, j > 0, c-cols, j < rows-1, c+cols, res)
			cells[c] = l2frames.Vec2{X: float32(gx), Y: float32(gy)}.ClampLen(limit)
		}
	}
	return field
}

// downsample stores the mean valid depth of each cell.
func (e *GradientExtractor) downsample(frame *l2frames.Grid[float32], roi l2frames.ROI, res, cols, rows int) {
	n := cols * rows
	if cap(e.mean) < n {
		e.mean = make([]float64, n)
		e.valid = make([]bool, n)
	}
	e.mean, e.valid = e.mean[:n], e.valid[:n]

	w := frame.Width()
	data := frame.Values()
	for j := 0; j < rows; j++ {
		for i := 0; i < cols; i++ {
			var sum float64
			var count int
			x0, y0 := roi.MinX+i*res, roi.MinY+j*res
			for y := y0; y < y0+res; y++ {
				for x := x0; x < x0+res; x++ {
					if v := data[y*w+x]; l2frames.IsValidDepth(v) {
						sum += float64(v)
						count++
					}
				}
			}
			c := j*cols + i
			e.valid[c] = count > 0
			if count > 0 {
				e.mean[c] = sum / float64(count)
			} else {
				e.mean[c] = 0
			}
		}
	}
}

// diff returns the height slope along one axis. Height grows as depth
// shrinks, so the slope is the negated depth derivative.
func (e *GradientExtractor) diff(c int, hasPrev bool, prev int, hasNext bool, next int, res int) float64 {
	prevOK := hasPrev && e.valid[prev]
	nextOK := hasNext && e.valid[next]
	switch {
	case prevOK && nextOK:
		return (e.mean[prev] - e.mean[next]) / float64(2*res)
	case nextOK:
		return (e.mean[c] - e.mean[next]) / float64(res)
	case prevOK:
		return (e.mean[prev] - e.mean[c]) / float64(res)
	default:
		return 0
	}
}
