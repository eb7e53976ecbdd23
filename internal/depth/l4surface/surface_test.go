package l4surface

import (
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sandtable/internal/calibration"
	"github.com/banshee-data/sandtable/internal/depth/l2frames"
)

func TestIntrinsics_WorldMatchesMatrix(t *testing.T) {
	in := DefaultIntrinsics(640, 480)
	p := in.World(400, 100, 900)
	assert.InDelta(t, 900, p.Z, 1e-9)
	assert.InDelta(t, (400-320)/580.0*900, p.X, 1e-9)

	m := in.WorldMatrix()
	x := (m.At(0, 0)*400 + m.At(0, 3)) * 900
	y := (m.At(1, 1)*100 + m.At(1, 3)) * 900
	assert.InDelta(t, p.X, x, 1e-9)
	assert.InDelta(t, p.Y, y, 1e-9)
}

func TestFitBasePlane_FlatSandIsZeroElevation(t *testing.T) {
	in := DefaultIntrinsics(64, 48)
	var pts []r3.Vector
	for y := 0; y < 48; y += 8 {
		for x := 0; x < 64; x += 8 {
			pts = append(pts, in.World(float64(x), float64(y), 1000))
		}
	}
	plane, err := FitBasePlane(pts)
	require.NoError(t, err)
	assert.InDelta(t, 1, plane.Normal.Z, 1e-9)

	s := &Surface{Intrinsics: in, Plane: plane}
	assert.InDelta(t, 0, s.Elevation(10, 10, 1000), 1e-6)
	// A hill 50mm closer to the camera stands 50mm above the plane.
	assert.InDelta(t, 50, s.Elevation(32, 24, 950), 1e-6)
}

func TestFitBasePlane_TiltedPlane(t *testing.T) {
	var pts []r3.Vector
	for x := -2.0; x <= 2; x++ {
		for y := -2.0; y <= 2; y++ {
			pts = append(pts, r3.Vector{X: x, Y: y, Z: 10 + 0.5*x})
		}
	}
	plane, err := FitBasePlane(pts)
	require.NoError(t, err)
	for _, p := range pts {
		assert.InDelta(t, 0, plane.Elevation(p), 1e-9)
	}
	assert.Greater(t, plane.Elevation(r3.Vector{Z: 9}), 0.0)
}

func TestFitBasePlane_Errors(t *testing.T) {
	_, err := FitBasePlane([]r3.Vector{{Z: 1}, {X: 1, Z: 1}})
	assert.Error(t, err)
	_, err = NewBasePlane(r3.Vector{}, r3.Vector{})
	assert.Error(t, err)
}

func TestSurface_ElevationAtSkipsSentinels(t *testing.T) {
	plane, err := NewBasePlane(r3.Vector{Z: -1}, r3.Vector{Z: 1000})
	require.NoError(t, err)
	assert.InDelta(t, 1, plane.Normal.Z, 1e-12, "normal is flipped away from the sensor")

	frame := &l2frames.FilteredFrame{Depth: l2frames.NewGrid[float32](4, 4)}
	frame.Depth.Fill(l2frames.InitialValue)
	frame.Depth.Set(1, 1, 980)
	s := &Surface{Intrinsics: DefaultIntrinsics(4, 4), Plane: plane}

	h, ok := s.ElevationAt(frame, 1, 1)
	require.True(t, ok)
	assert.InDelta(t, 20, h, 1e-4)

	_, ok = s.ElevationAt(frame, 0, 0)
	assert.False(t, ok)
	_, ok = s.ElevationAt(frame, 9, 9)
	assert.False(t, ok)
}

type fixedProjector struct{ p r2.Point }

func (f fixedProjector) Project(r3.Vector) (r2.Point, error) { return f.p, nil }

func TestSurface_SensorToProjector(t *testing.T) {
	s := &Surface{Intrinsics: DefaultIntrinsics(640, 480), ProjectorWidth: 1024, ProjectorHeight: 768}
	_, err := s.SensorToProjector(1, 1, 1000)
	assert.Error(t, err)

	s.Projector = fixedProjector{r2.Point{X: 0.5, Y: 0.25}}
	p, err := s.SensorToProjector(1, 1, 1000)
	require.NoError(t, err)
	assert.Equal(t, r2.Point{X: 512, Y: 192}, p)

	s.Projector = calibration.NewSolver()
	_, err = s.SensorToProjector(1, 1, 1000)
	assert.ErrorIs(t, err, calibration.ErrNotCalibrated)
}
