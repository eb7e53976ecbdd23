package l3grid

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sandtable/internal/depth/l2frames"
)

func stepField(w, h int, left, right float32) *l2frames.Grid[float32] {
	g := l2frames.NewGrid[float32](w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := left
			if x >= w/2 {
				v = right
			}
			g.Set(x, y, v)
		}
	}
	return g
}

func TestGradientExtractor_ClampsStepDiscontinuity(t *testing.T) {
	const maxGradient = 10
	g := stepField(40, 20, 1000, 400)
	var e GradientExtractor
	field := e.Extract(g, l2frames.FullROI(40, 20), 4, maxGradient)

	require.Equal(t, 10, field.Cells.Width())
	require.Equal(t, 5, field.Cells.Height())
	var steepest float32
	for _, v := range field.Cells.Values() {
		assert.LessOrEqual(t, v.Len(), float32(maxGradient))
		if v.Len() > steepest {
			steepest = v.Len()
		}
	}
	assert.InDelta(t, maxGradient, steepest, 1e-4)

	// Depth drops to the right, so height rises: gradient points +x.
	v, ok := field.At(20, 10)
	require.True(t, ok)
	assert.Greater(t, v.X, float32(0))
	assert.InDelta(t, 0, v.Y, 1e-6)
}

func TestGradientExtractor_SlopeMagnitude(t *testing.T) {
	// Depth falls by 2 per pixel along x.
	g := l2frames.NewGrid[float32](20, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 20; x++ {
			g.Set(x, y, float32(1100-2*x))
		}
	}
	var e GradientExtractor
	field := e.Extract(g, l2frames.FullROI(20, 4), 2, 1000)
	for j := 0; j < field.Cells.Height(); j++ {
		for i := 0; i < field.Cells.Width(); i++ {
			v, _ := field.Cells.At(i, j)
			assert.InDelta(t, 2, v.X, 1e-4, "cell (%d,%d)", i, j)
			assert.InDelta(t, 0, v.Y, 1e-4, "cell (%d,%d)", i, j)
		}
	}
}

func TestGradientExtractor_InvalidCellsAreZero(t *testing.T) {
	g := l2frames.NewGrid[float32](8, 8)
	g.Fill(l2frames.OutsideROIValue)
	roi := l2frames.ROI{MinX: 2, MinY: 2, MaxX: 8, MaxY: 8}
	for y := roi.MinY; y < roi.MaxY; y++ {
		for x := roi.MinX; x < roi.MaxX; x++ {
			g.Set(x, y, l2frames.InitialValue)
		}
	}
	g.Set(7, 7, 900)

	var e GradientExtractor
	field := e.Extract(g, roi, 3, 1000)
	assert.Equal(t, image.Pt(2, 2), field.Origin)
	for _, v := range field.Cells.Values() {
		assert.Equal(t, l2frames.Vec2{}, v)
	}
}

func TestGradientExtractor_ROISmallerThanCell(t *testing.T) {
	var e GradientExtractor
	field := e.Extract(l2frames.NewGrid[float32](4, 4), l2frames.FullROI(4, 4), 10, 1000)
	assert.Zero(t, field.Cells.Len())
	_, ok := field.At(1, 1)
	assert.False(t, ok)
}
