// Package l1sensor defines the depth-camera collaborator and the sensors
// shipped with sandtable: a synthetic terrain generator for development
// and a replay sensor for recorded sessions.
package l1sensor

import (
	"context"
	"errors"

	"github.com/banshee-data/sandtable/internal/depth/l2frames"
)

// ErrDeviceUnavailable reports that the sensor could not be initialised or
// opened. It is fatal to acquisition and is never retried automatically.
var ErrDeviceUnavailable = errors.New("depth sensor unavailable")

// Sensor is a depth camera with an aligned colour stream.
type Sensor interface {
	// Geometry probes the device and returns the depth frame size.
	Geometry() (width, height int, err error)
	// Open starts streaming.
	Open(ctx context.Context) error
	// NextFrame blocks until the next tick. Frames are owned by the caller.
	NextFrame(ctx context.Context) (*l2frames.RawFrame, error)
	// Close stops streaming. It is safe to call on a closed sensor.
	Close() error
}
