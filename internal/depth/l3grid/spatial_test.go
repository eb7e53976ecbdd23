package l3grid

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/sandtable/internal/depth/l2frames"
)

func TestSpatialFilter_UniformFieldUnchanged(t *testing.T) {
	g := l2frames.NewGrid[float32](6, 5)
	g.Fill(1200)
	var s SpatialFilter
	s.Apply(g, l2frames.FullROI(6, 5))
	for _, v := range g.Values() {
		assert.InDelta(t, 1200, v, 1e-3)
	}
}

func TestSpatialFilter_SmoothsSpikeInsideROI(t *testing.T) {
	g := l2frames.NewGrid[float32](7, 7)
	g.Fill(1000)
	g.Set(3, 3, 1160)
	roi := l2frames.ROI{MinX: 1, MinY: 1, MaxX: 6, MaxY: 6}
	var s SpatialFilter
	s.Apply(g, roi)

	centre, _ := g.At(3, 3)
	neighbour, _ := g.At(4, 3)
	assert.Less(t, centre, float32(1160))
	assert.Greater(t, centre, float32(1000))
	assert.Greater(t, neighbour, float32(1000))

	// Everything outside the ROI keeps its original value.
	for y := 0; y < 7; y++ {
		for x := 0; x < 7; x++ {
			if !roi.Contains(x, y) {
				v, _ := g.At(x, y)
				assert.Equal(t, float32(1000), v, "(%d,%d)", x, y)
			}
		}
	}
}

func TestSpatialFilter_SentinelsDoNotBleed(t *testing.T) {
	g := l2frames.NewGrid[float32](5, 1)
	for x, v := range []float32{1000, l2frames.InitialValue, 1000, 1000, l2frames.InstableValue} {
		g.Set(x, 0, v)
	}
	var s SpatialFilter
	s.Apply(g, l2frames.FullROI(5, 1))

	assert.Equal(t, []float32{1000, l2frames.InitialValue, 1000, 1000, l2frames.InstableValue}, g.Values())
}
