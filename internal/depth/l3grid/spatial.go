package l3grid

import "github.com/banshee-data/sandtable/internal/depth/l2frames"

// spatialPasses is the number of column+row smoothing rounds.
const spatialPasses = 2

// SpatialFilter smooths a filtered frame in place with two rounds of a
// separable [1 2 1]/4 kernel restricted to the ROI. Sentinel pixels are
// left untouched and do not contribute to their neighbours.
type SpatialFilter struct {
	line []float32
}

// Apply smooths the ROI of frame in place.
func (s *SpatialFilter) Apply(frame *l2frames.Grid[float32], roi l2frames.ROI) {
	if roi.Dx() <= 0 || roi.Dy() <= 0 {
		return
	}
	w := frame.Width()
	data := frame.Values()
	for pass := 0; pass < spatialPasses; pass++ {
		if roi.Dy() > 1 {
			for x := roi.MinX; x < roi.MaxX; x++ {
				s.smooth(data, roi.MinY*w+x, w, roi.Dy())
			}
		}
		if roi.Dx() > 1 {
			for y := roi.MinY; y < roi.MaxY; y++ {
				s.smooth(data, y*w+roi.MinX, 1, roi.Dx())
			}
		}
	}
}

// smooth filters n samples starting at data[start] spaced stride apart.
func (s *SpatialFilter) smooth(data []float32, start, stride, n int) {
	if cap(s.line) < n {
		s.line = make([]float32, n)
	}
	line := s.line[:n]
	for k, i := 0, start; k < n; k, i = k+1, i+stride {
		line[k] = data[i]
	}
	for k, i := 0, start; k < n; k, i = k+1, i+stride {
		c := line[k]
		if !l2frames.IsValidDepth(c) {
			continue
		}
		sum, weight := 2*c, float32(2)
		if k > 0 && l2frames.IsValidDepth(line[k-1]) {
			sum += line[k-1]
			weight++
		}
		if k < n-1 && l2frames.IsValidDepth(line[k+1]) {
			sum += line[k+1]
			weight++
		}
		data[i] = sum / weight
	}
}
