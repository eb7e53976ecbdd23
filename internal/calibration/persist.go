package calibration

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/sandtable/internal/fsutil"
)

// Save writes the current coefficients to path as a flat JSON array.
func (s *Solver) Save(path string) error {
	t, err := s.Transform()
	if err != nil {
		return err
	}
	data, err := json.Marshal(t.Slice())
	if err != nil {
		return fmt.Errorf("encode calibration: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.fs, path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write calibration %s: %w", path, err)
	}
	return nil
}

// Load replaces the current calibration with the coefficients in path.
// Any failure wraps ErrFormat and leaves the solver unchanged.
func (s *Solver) Load(path string) error {
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrFormat, path, err)
	}
	t, err := DecodeCoefficients(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	s.Restore(t)
	return nil
}

// DecodeCoefficients parses a flat JSON array of NumCoefficients numbers.
func DecodeCoefficients(data []byte) (Transform, error) {
	var raw []*float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return Transform{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(raw) != NumCoefficients {
		return Transform{}, fmt.Errorf("%w: got %d coefficients, want %d", ErrFormat, len(raw), NumCoefficients)
	}
	coeffs := make([]float64, NumCoefficients)
	for i, c := range raw {
		if c == nil {
			return Transform{}, fmt.Errorf("%w: coefficient %d is null", ErrFormat, i)
		}
		coeffs[i] = *c
	}
	return NewTransform(coeffs)
}
