package calibration

import "errors"

var (
	// ErrInsufficientPoints is returned when fewer than MinPairs
	// correspondences are supplied. Resupply points and retry.
	ErrInsufficientPoints = errors.New("calibration: insufficient correspondence points")
	// ErrDegenerateSystem is returned when the correspondences do not pin
	// down a unique transform, e.g. all sensor points coplanar.
	ErrDegenerateSystem = errors.New("calibration: degenerate correspondence system")
	// ErrNotCalibrated is returned by projection before a successful Calibrate or Load.
	ErrNotCalibrated = errors.New("calibration: not calibrated")
	// ErrFormat is returned when persisted coefficients are malformed.
	ErrFormat = errors.New("calibration: malformed coefficient file")
	// ErrProjectionUndefined is returned for points on the transform's
	// plane at infinity.
	ErrProjectionUndefined = errors.New("calibration: point projects to infinity")
)
