// Package calibration fits and applies the perspective transform that maps
// 3D sensor-space points onto the 2D projector image.
//
// The transform has 11 coefficients c0..c10:
//
//	x' = (c0·X + c1·Y + c2·Z + c3) / (c8·X + c9·Y + c10·Z + 1)
//	y' = (c4·X + c5·Y + c6·Z + c7) / (c8·X + c9·Y + c10·Z + 1)
//
// Projector coordinates are whatever units the correspondence pairs use;
// the sandbox feeds normalised [0,1] coordinates and scales afterwards.
package calibration

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// NumCoefficients is the parameter count of the perspective mapping.
const NumCoefficients = 11

// MinPairs is the smallest correspondence set that determines all
// coefficients; each pair contributes two equations.
const MinPairs = (NumCoefficients + 1) / 2

// denomEpsilon is the smallest homogeneous denominator treated as finite.
const denomEpsilon = 1e-12

// PointPair is one correspondence between a sensor point and the
// projector pixel it should land on.
type PointPair struct {
	Sensor    r3.Vector `json:"sensor"`
	Projector r2.Point  `json:"projector"`
}

// Transform is a solved projection. It is a value type and never mutated
// after construction.
type Transform struct {
	Coefficients [NumCoefficients]float64
}

// NewTransform builds a Transform from a flat coefficient list.
func NewTransform(coeffs []float64) (Transform, error) {
	var t Transform
	if len(coeffs) != NumCoefficients {
		return t, ErrFormat
	}
	for i, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return t, ErrFormat
		}
		t.Coefficients[i] = c
	}
	return t, nil
}

// Project maps a sensor point to projector space.
func (t Transform) Project(p r3.Vector) (r2.Point, error) {
	c := &t.Coefficients
	w := c[8]*p.X + c[9]*p.Y + c[10]*p.Z + 1
	if math.Abs(w) < denomEpsilon {
		return r2.Point{}, ErrProjectionUndefined
	}
	return r2.Point{
		X: (c[0]*p.X + c[1]*p.Y + c[2]*p.Z + c[3]) / w,
		Y: (c[4]*p.X + c[5]*p.Y + c[6]*p.Z + c[7]) / w,
	}, nil
}

// Matrix returns the homogeneous 4×4 form of the transform. Applied to
// (X,Y,Z,1) it yields (x·w, y·w, w, 1).
func (t Transform) Matrix() *mat.Dense {
	c := &t.Coefficients
	return mat.NewDense(4, 4, []float64{
		c[0], c[1], c[2], c[3],
		c[4], c[5], c[6], c[7],
		c[8], c[9], c[10], 1,
		0, 0, 0, 1,
	})
}

// Slice returns the coefficients as a flat list.
func (t Transform) Slice() []float64 {
	return append([]float64(nil), t.Coefficients[:]...)
}
