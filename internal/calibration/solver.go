package calibration

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/sandtable/internal/fsutil"
	"github.com/banshee-data/sandtable/internal/monitoring"
)

// rankTolerance is the smallest |R_ii| relative to the largest diagonal
// entry of the equilibrated system that still counts as full rank.
const rankTolerance = 1e-10

// Solver owns the current projector calibration. Calibrate, Load and
// Restore replace it atomically; on error the previous calibration stays.
type Solver struct {
	fs fsutil.FileSystem

	mu        sync.RWMutex
	transform *Transform
	residual  float64
}

// Option configures a Solver.
type Option func(*Solver)

// WithFileSystem sets the filesystem used by Save and Load.
func WithFileSystem(fs fsutil.FileSystem) Option {
	return func(s *Solver) { s.fs = fs }
}

// NewSolver returns an uncalibrated solver backed by the OS filesystem.
func NewSolver(opts ...Option) *Solver {
	s := &Solver{fs: fsutil.OSFileSystem{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Calibrate fits the transform to pairs by linear least squares. The
// transform has NumCoefficients unknowns and each pair gives two equations,
// so fewer than MinPairs pairs (including 4 or 5) return
// ErrInsufficientPoints.
func (s *Solver) Calibrate(pairs []PointPair) error {
	if len(pairs) < MinPairs {
		return fmt.Errorf("%w: got %d pairs, need %d", ErrInsufficientPoints, len(pairs), MinPairs)
	}
	t, err := solve(pairs)
	if err != nil {
		return err
	}
	residual := rms(t, pairs)

	s.mu.Lock()
	s.transform = &t
	s.residual = residual
	s.mu.Unlock()

	monitoring.Logf("[calibration] solved from %d pairs, rms residual %.6f", len(pairs), residual)
	return nil
}

// solve builds the 2N×11 system, equilibrates its columns and solves it
// with a QR factorisation.
func solve(pairs []PointPair) (Transform, error) {
	rows := 2 * len(pairs)
	a := mat.NewDense(rows, NumCoefficients, nil)
	b := mat.NewDense(rows, 1, nil)
	for k, pp := range pairs {
		X, Y, Z := pp.Sensor.X, pp.Sensor.Y, pp.Sensor.Z
		x, y := pp.Projector.X, pp.Projector.Y
		a.SetRow(2*k, []float64{X, Y, Z, 1, 0, 0, 0, 0, -x * X, -x * Y, -x * Z})
		a.SetRow(2*k+1, []float64{0, 0, 0, 0, X, Y, Z, 1, -y * X, -y * Y, -y * Z})
		b.Set(2*k, 0, x)
		b.Set(2*k+1, 0, y)
	}

	scale := make([]float64, NumCoefficients)
	for j := range scale {
		n := mat.Norm(a.ColView(j), 2)
		if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
			return Transform{}, fmt.Errorf("%w: coefficient %d is unconstrained", ErrDegenerateSystem, j)
		}
		scale[j] = n
		for i := 0; i < rows; i++ {
			a.Set(i, j, a.At(i, j)/n)
		}
	}

	var qr mat.QR
	qr.Factorize(a)

	var r mat.Dense
	qr.RTo(&r)
	var largest float64
	for i := 0; i < NumCoefficients; i++ {
		largest = math.Max(largest, math.Abs(r.At(i, i)))
	}
	for i := 0; i < NumCoefficients; i++ {
		if math.Abs(r.At(i, i)) <= rankTolerance*largest {
			return Transform{}, fmt.Errorf("%w: rank deficient at column %d", ErrDegenerateSystem, i)
		}
	}

	x := mat.NewDense(NumCoefficients, 1, nil)
	if err := qr.SolveTo(x, false, b); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return Transform{}, fmt.Errorf("%w: condition number %g", ErrDegenerateSystem, float64(cond))
		}
		return Transform{}, fmt.Errorf("%w: %v", ErrDegenerateSystem, err)
	}

	coeffs := make([]float64, NumCoefficients)
	for j := range coeffs {
		coeffs[j] = x.At(j, 0) / scale[j]
	}
	t, err := NewTransform(coeffs)
	if err != nil {
		return Transform{}, fmt.Errorf("%w: non-finite solution", ErrDegenerateSystem)
	}
	return t, nil
}

// rms is the root-mean-square reprojection error over pairs. Pairs that
// project to infinity are skipped.
func rms(t Transform, pairs []PointPair) float64 {
	var sum float64
	var n int
	for _, pp := range pairs {
		p, err := t.Project(pp.Sensor)
		if err != nil {
			continue
		}
		d := p.Sub(pp.Projector)
		sum += d.Dot(d)
		n++
	}
	if n == 0 {
		return math.Inf(1)
	}
	return math.Sqrt(sum / float64(n))
}

// IsCalibrated reports whether a transform is available.
func (s *Solver) IsCalibrated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transform != nil
}

// Transform returns the current transform.
func (s *Solver) Transform() (Transform, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.transform == nil {
		return Transform{}, ErrNotCalibrated
	}
	return *s.transform, nil
}

// Matrix returns the 4×4 homogeneous matrix of the current transform.
func (s *Solver) Matrix() (*mat.Dense, error) {
	t, err := s.Transform()
	if err != nil {
		return nil, err
	}
	return t.Matrix(), nil
}

// Residual returns the RMS reprojection error of the last Calibrate.
// It is 0 after Load or Restore, which carry no correspondences.
func (s *Solver) Residual() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.residual
}

// State is a saved copy of a solver's calibration, including the
// uncalibrated state.
type State struct {
	transform *Transform
	residual  float64
}

// State captures the current calibration for a later Rollback.
func (s *Solver) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{transform: s.transform, residual: s.residual}
}

// Rollback reinstates a calibration captured by State.
func (s *Solver) Rollback(st State) {
	s.mu.Lock()
	s.transform = st.transform
	s.residual = st.residual
	s.mu.Unlock()
}

// Restore installs a previously solved transform.
func (s *Solver) Restore(t Transform) {
	s.mu.Lock()
	s.transform = &t
	s.residual = 0
	s.mu.Unlock()
}

// Project maps one sensor point to projector space.
func (s *Solver) Project(p r3.Vector) (r2.Point, error) {
	t, err := s.Transform()
	if err != nil {
		return r2.Point{}, err
	}
	return t.Project(p)
}

// ProjectContour maps an ordered point sequence, preserving order and count.
func (s *Solver) ProjectContour(points []r3.Vector) ([]r2.Point, error) {
	t, err := s.Transform()
	if err != nil {
		return nil, err
	}
	out := make([]r2.Point, len(points))
	for i, p := range points {
		if out[i], err = t.Project(p); err != nil {
			return nil, fmt.Errorf("contour point %d: %w", i, err)
		}
	}
	return out, nil
}
