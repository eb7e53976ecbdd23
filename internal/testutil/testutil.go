// Package testutil provides shared test fixtures.
package testutil

import (
	"context"
	"io"
	"sync"

	"github.com/banshee-data/sandtable/internal/depth/l2frames"
)

// ScriptedSensor is an l1sensor.Sensor fed by the test. Each value sent on
// Frames is returned by one NextFrame call; closing Frames ends the stream
// with io.EOF.
type ScriptedSensor struct {
	Width, Height int
	// GeometryErr and OpenErr, when set, are returned by Geometry and Open.
	GeometryErr error
	OpenErr     error
	Frames      chan *l2frames.RawFrame

	mu     sync.Mutex
	opens  int
	closes int
	seq    uint64
}

// NewScriptedSensor returns a w×h sensor with an unbuffered frame channel,
// so a send completes only once the consumer has taken the frame.
func NewScriptedSensor(w, h int) *ScriptedSensor {
	return &ScriptedSensor{Width: w, Height: h, Frames: make(chan *l2frames.RawFrame)}
}

func (s *ScriptedSensor) Geometry() (int, int, error) {
	if s.GeometryErr != nil {
		return 0, 0, s.GeometryErr
	}
	return s.Width, s.Height, nil
}

func (s *ScriptedSensor) Open(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	return s.OpenErr
}

func (s *ScriptedSensor) NextFrame(ctx context.Context) (*l2frames.RawFrame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f, ok := <-s.Frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	}
}

func (s *ScriptedSensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// Opens returns how many times Open was called.
func (s *ScriptedSensor) Opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// Closes returns how many times Close was called.
func (s *ScriptedSensor) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Frame builds the next frame in sequence with every depth set to v.
func (s *ScriptedSensor) Frame(v uint16) *l2frames.RawFrame {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()
	f := l2frames.NewRawFrame(s.Width, s.Height)
	f.Seq = seq
	f.Depth.Fill(v)
	return f
}
