package l1sensor

import (
	"compress/gzip"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"github.com/banshee-data/sandtable/internal/depth/l2frames"
	"github.com/banshee-data/sandtable/internal/timeutil"
)

// recordingMagic identifies a sandtable depth recording.
const recordingMagic = "sandtable-depth"

// recordingVersion is bumped when frameRecord changes incompatibly.
const recordingVersion = 1

type recordingHeader struct {
	Magic         string
	Version       int
	Width, Height int
	CreatedNanos  int64
}

type frameRecord struct {
	Seq           uint64
	CapturedNanos int64
	Depth         []uint16
	ColorPix      []byte
}

// Recorder writes raw frames to a gzip-compressed gob stream.
type Recorder struct {
	mu     sync.Mutex
	gz     *gzip.Writer
	enc    *gob.Encoder
	w, h   int
	frames int
	closed bool
}

// NewRecorder writes a recording header for w×h frames to dst.
func NewRecorder(dst io.Writer, w, h int) (*Recorder, error) {
	gz := gzip.NewWriter(dst)
	enc := gob.NewEncoder(gz)
	hdr := recordingHeader{Magic: recordingMagic, Version: recordingVersion, Width: w, Height: h, CreatedNanos: time.Now().UnixNano()}
	if err := enc.Encode(hdr); err != nil {
		return nil, fmt.Errorf("write recording header: %w", err)
	}
	return &Recorder{gz: gz, enc: enc, w: w, h: h}, nil
}

// Record appends one frame.
func (r *Recorder) Record(f *l2frames.RawFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("recorder is closed")
	}
	if f.Depth.Width() != r.w || f.Depth.Height() != r.h {
		return fmt.Errorf("frame %dx%d does not match recording %dx%d", f.Depth.Width(), f.Depth.Height(), r.w, r.h)
	}
	rec := frameRecord{Seq: f.Seq, CapturedNanos: f.Captured.UnixNano(), Depth: f.Depth.Values()}
	if f.Color != nil {
		rec.ColorPix = f.Color.Pix
	}
	if err := r.enc.Encode(rec); err != nil {
		return fmt.Errorf("encode frame %d: %w", f.Seq, err)
	}
	r.frames++
	return nil
}

// Frames returns the number of frames recorded.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Close flushes the gzip stream. The underlying writer is left open.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	return r.gz.Close()
}

// RecordingSensor passes frames through from an inner sensor and records
// each one. Recording failures are reported through OnError and never
// interrupt acquisition.
type RecordingSensor struct {
	Sensor
	Recorder *Recorder
	OnError  func(error)
}

// NextFrame reads from the inner sensor and records the frame.
func (s *RecordingSensor) NextFrame(ctx context.Context) (*l2frames.RawFrame, error) {
	f, err := s.Sensor.NextFrame(ctx)
	if err != nil {
		return nil, err
	}
	if rerr := s.Recorder.Record(f); rerr != nil && s.OnError != nil {
		s.OnError(rerr)
	}
	return f, nil
}

// ReplaySensor plays back a recording made by Recorder.
type ReplaySensor struct {
	path  string
	fps   float64
	loop  bool
	clock timeutil.Clock

	mu     sync.Mutex
	file   *os.File
	gz     *gzip.Reader
	dec    *gob.Decoder
	hdr    recordingHeader
	ticker timeutil.Ticker
}

// ReplayOption configures a ReplaySensor.
type ReplayOption func(*ReplaySensor)

// WithReplayFPS paces playback; 0 replays as fast as frames are read.
func WithReplayFPS(fps float64) ReplayOption { return func(s *ReplaySensor) { s.fps = fps } }

// WithReplayLoop restarts from the first frame at end of file.
func WithReplayLoop(loop bool) ReplayOption { return func(s *ReplaySensor) { s.loop = loop } }

// WithReplayClock sets the pacing clock.
func WithReplayClock(c timeutil.Clock) ReplayOption { return func(s *ReplaySensor) { s.clock = c } }

// NewReplaySensor replays the recording at path.
func NewReplaySensor(path string, opts ...ReplayOption) *ReplaySensor {
	s := &ReplaySensor{path: path, clock: timeutil.RealClock{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Geometry reads the recording header.
func (s *ReplaySensor) Geometry() (int, int, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, 0, fmt.Errorf("open recording: %v: %w", err, ErrDeviceUnavailable)
	}
	defer f.Close()
	_, _, hdr, err := openRecording(f)
	if err != nil {
		return 0, 0, err
	}
	return hdr.Width, hdr.Height, nil
}

func openRecording(f io.Reader) (*gzip.Reader, *gob.Decoder, recordingHeader, error) {
	var hdr recordingHeader
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, nil, hdr, fmt.Errorf("read recording: %v: %w", err, ErrDeviceUnavailable)
	}
	dec := gob.NewDecoder(gz)
	if err := dec.Decode(&hdr); err != nil {
		return nil, nil, hdr, fmt.Errorf("read recording header: %v: %w", err, ErrDeviceUnavailable)
	}
	if hdr.Magic != recordingMagic || hdr.Version != recordingVersion {
		return nil, nil, hdr, fmt.Errorf("unsupported recording %q v%d: %w", hdr.Magic, hdr.Version, ErrDeviceUnavailable)
	}
	return gz, dec, hdr, nil
}

// Open rewinds to the first frame.
func (s *ReplaySensor) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rewindLocked(); err != nil {
		return err
	}
	if s.fps > 0 {
		s.ticker = s.clock.NewTicker(time.Duration(float64(time.Second) / s.fps))
	}
	return nil
}

func (s *ReplaySensor) rewindLocked() error {
	s.closeFileLocked()
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open recording: %v: %w", err, ErrDeviceUnavailable)
	}
	gz, dec, hdr, err := openRecording(f)
	if err != nil {
		f.Close()
		return err
	}
	s.file, s.gz, s.dec, s.hdr = f, gz, dec, hdr
	return nil
}

func (s *ReplaySensor) closeFileLocked() {
	if s.gz != nil {
		s.gz.Close()
	}
	if s.file != nil {
		s.file.Close()
	}
	s.file, s.gz, s.dec = nil, nil, nil
}

// NextFrame returns the next recorded frame, or io.EOF once the recording
// is exhausted and looping is off.
func (s *ReplaySensor) NextFrame(ctx context.Context) (*l2frames.RawFrame, error) {
	s.mu.Lock()
	ticker := s.ticker
	open := s.dec != nil
	s.mu.Unlock()
	if !open {
		return nil, fmt.Errorf("replay sensor not open: %w", ErrDeviceUnavailable)
	}
	if ticker != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C():
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var rec frameRecord
	err := s.dec.Decode(&rec)
	if errors.Is(err, io.EOF) && s.loop {
		if err := s.rewindLocked(); err != nil {
			return nil, err
		}
		err = s.dec.Decode(&rec)
	}
	if err != nil {
		return nil, err
	}
	return s.toFrame(rec)
}

func (s *ReplaySensor) toFrame(rec frameRecord) (*l2frames.RawFrame, error) {
	w, h := s.hdr.Width, s.hdr.Height
	depth := l2frames.NewGridFrom(w, h, rec.Depth)
	if depth == nil {
		return nil, fmt.Errorf("frame %d: depth has %d samples, want %d", rec.Seq, len(rec.Depth), w*h)
	}
	f := &l2frames.RawFrame{Seq: rec.Seq, Captured: time.Unix(0, rec.CapturedNanos), Depth: depth}
	if len(rec.ColorPix) == 4*w*h {
		f.Color = &image.RGBA{Pix: rec.ColorPix, Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}
	}
	return f, nil
}

// Close releases the recording file.
func (s *ReplaySensor) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	s.closeFileLocked()
	return nil
}
