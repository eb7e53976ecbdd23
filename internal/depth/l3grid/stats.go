package l3grid

import "math"

// PixelStat is a snapshot of one pixel's running statistics over the
// populated averaging slots. Variance is the population variance.
type PixelStat struct {
	Mean     float64
	Variance float64
	Count    int
}

// StatBuffer keeps {count, sum, sumSq} per pixel. Windowed sums give the
// exact mean and variance of the populated slots; float64 keeps the
// add/remove cycle free of visible drift at sensor magnitudes.
type StatBuffer struct {
	count []int32
	sum   []float64
	sumSq []float64
}

// NewStatBuffer allocates statistics for n pixels.
func NewStatBuffer(n int) *StatBuffer {
	return &StatBuffer{
		count: make([]int32, n),
		sum:   make([]float64, n),
		sumSq: make([]float64, n),
	}
}

func (b *StatBuffer) add(i int, v float64) {
	b.count[i]++
	b.sum[i] += v
	b.sumSq[i] += v * v
}

func (b *StatBuffer) remove(i int, v float64) {
	b.count[i]--
	b.sum[i] -= v
	b.sumSq[i] -= v * v
}

// restart discards pixel i's history and seeds it with v.
func (b *StatBuffer) restart(i int, v float64) {
	b.count[i] = 1
	b.sum[i] = v
	b.sumSq[i] = v * v
}

// Count returns the number of samples for pixel i.
func (b *StatBuffer) Count(i int) int { return int(b.count[i]) }

// Mean returns the mean for pixel i, or 0 with no samples.
func (b *StatBuffer) Mean(i int) float64 {
	if b.count[i] == 0 {
		return 0
	}
	return b.sum[i] / float64(b.count[i])
}

// Variance returns the population variance for pixel i.
func (b *StatBuffer) Variance(i int) float64 {
	n := float64(b.count[i])
	if n == 0 {
		return 0
	}
	mean := b.sum[i] / n
	return math.Max(0, b.sumSq[i]/n-mean*mean)
}

// Stat returns the snapshot for pixel i.
func (b *StatBuffer) Stat(i int) PixelStat {
	return PixelStat{Mean: b.Mean(i), Variance: b.Variance(i), Count: b.Count(i)}
}

// Reset clears every pixel.
func (b *StatBuffer) Reset() {
	clear(b.count)
	clear(b.sum)
	clear(b.sumSq)
}
