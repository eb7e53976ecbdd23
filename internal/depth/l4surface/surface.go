// Package l4surface turns filtered sensor depth into world coordinates,
// elevation above the sandbox base plane, and projector pixels.
package l4surface

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/sandtable/internal/depth/l2frames"
)

// Intrinsics are pinhole parameters of the depth camera in pixels.
type Intrinsics struct {
	Fx, Fy float64
	Cx, Cy float64
}

// DefaultIntrinsics approximates a structured-light camera with a 580px
// focal length at 640 columns, scaled to w×h.
func DefaultIntrinsics(w, h int) Intrinsics {
	s := float64(w) / 640
	return Intrinsics{Fx: 580 * s, Fy: 580 * s, Cx: float64(w) / 2, Cy: float64(h) / 2}
}

// World returns the camera-space point seen at pixel (x, y) with depth z.
func (in Intrinsics) World(x, y, z float64) r3.Vector {
	return r3.Vector{X: (x - in.Cx) / in.Fx * z, Y: (y - in.Cy) / in.Fy * z, Z: z}
}

// WorldMatrix returns M such that M·(x, y, 1, 1)ᵀ scaled by z gives the
// world point, with the third row fixed to 1 so z passes through.
func (in Intrinsics) WorldMatrix() *mat.Dense {
	return mat.NewDense(4, 4, []float64{
		1 / in.Fx, 0, 0, -in.Cx / in.Fx,
		0, 1 / in.Fy, 0, -in.Cy / in.Fy,
		0, 0, 0, 1,
		0, 0, 0, 1,
	})
}

// BasePlane is n·p + d = 0 with a unit normal pointing away from the
// sensor, so points between the plane and the camera have positive elevation.
type BasePlane struct {
	Normal r3.Vector
	Offset float64
}

// NewBasePlane builds the plane through point with the given normal.
func NewBasePlane(normal, point r3.Vector) (BasePlane, error) {
	if normal.Norm() == 0 {
		return BasePlane{}, errors.New("base plane normal is zero")
	}
	n := normal.Normalize()
	if n.Z < 0 {
		n = n.Mul(-1)
	}
	return BasePlane{Normal: n, Offset: -n.Dot(point)}, nil
}

// FitBasePlane least-squares fits z = a·x + b·y + c to points.
func FitBasePlane(points []r3.Vector) (BasePlane, error) {
	if len(points) < 3 {
		return BasePlane{}, fmt.Errorf("base plane needs at least 3 points, got %d", len(points))
	}
	a := mat.NewDense(len(points), 3, nil)
	b := mat.NewVecDense(len(points), nil)
	for i, p := range points {
		a.SetRow(i, []float64{p.X, p.Y, 1})
		b.SetVec(i, p.Z)
	}
	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return BasePlane{}, fmt.Errorf("fit base plane: %w", err)
	}
	ca, cb, cc := x.AtVec(0), x.AtVec(1), x.AtVec(2)
	if math.IsNaN(ca) || math.IsNaN(cb) || math.IsNaN(cc) {
		return BasePlane{}, errors.New("fit base plane: degenerate points")
	}
	return NewBasePlane(r3.Vector{X: -ca, Y: -cb, Z: 1}, r3.Vector{Z: cc})
}

// Elevation is the signed distance of p above the plane.
func (bp BasePlane) Elevation(p r3.Vector) float64 {
	return -(bp.Normal.Dot(p) + bp.Offset)
}

// Projector maps sensor-space points to normalised projector coordinates.
// *calibration.Solver satisfies it.
type Projector interface {
	Project(p r3.Vector) (r2.Point, error)
}

// DepthReader reads one depth sample; *l2frames.FilteredFrame satisfies it.
type DepthReader interface {
	DepthAt(x, y int) (float32, bool)
}

// Surface combines intrinsics, base plane and projector calibration.
type Surface struct {
	Intrinsics Intrinsics
	Plane      BasePlane
	Projector  Projector
	// ProjectorWidth and ProjectorHeight scale normalised projector
	// coordinates to pixels.
	ProjectorWidth, ProjectorHeight int
}

// Elevation returns the height above the base plane at pixel (x, y).
func (s *Surface) Elevation(x, y int, depth float64) float64 {
	return s.Plane.Elevation(s.Intrinsics.World(float64(x), float64(y), depth))
}

// ElevationAt reads depth from src. Sentinel depths report ok=false.
func (s *Surface) ElevationAt(src DepthReader, x, y int) (float64, bool) {
	d, ok := src.DepthAt(x, y)
	if !ok || !l2frames.IsValidDepth(d) {
		return 0, false
	}
	return s.Elevation(x, y, float64(d)), true
}

// SensorToProjector maps pixel (x, y) at depth into projector pixels.
func (s *Surface) SensorToProjector(x, y int, depth float64) (r2.Point, error) {
	if s.Projector == nil {
		return r2.Point{}, errors.New("surface has no projector calibration")
	}
	p, err := s.Projector.Project(s.Intrinsics.World(float64(x), float64(y), depth))
	if err != nil {
		return r2.Point{}, err
	}
	return r2.Point{X: p.X * float64(s.ProjectorWidth), Y: p.Y * float64(s.ProjectorHeight)}, nil
}
