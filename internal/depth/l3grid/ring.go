package l3grid

// AveragingRing stores the last N accepted samples of every pixel. All
// pixels share one write index that advances once per frame. A zero slot
// is unpopulated: accepted samples are always above MaxOffset ≥ 0.
type AveragingRing struct {
	slots  int
	pixels int
	index  int
	data   []float32 // slot-major: data[slot*pixels+pixel]
}

// NewAveragingRing allocates slots×pixels samples.
func NewAveragingRing(slots, pixels int) *AveragingRing {
	return &AveragingRing{slots: slots, pixels: pixels, data: make([]float32, slots*pixels)}
}

// Slots returns N.
func (r *AveragingRing) Slots() int { return r.slots }

// Index returns the current write index.
func (r *AveragingRing) Index() int { return r.index }

// At returns slot s of pixel i; 0 means unpopulated.
func (r *AveragingRing) At(s, i int) float32 { return r.data[s*r.pixels+i] }

// swap writes v into pixel i at the write index and returns what it replaced.
func (r *AveragingRing) swap(i int, v float32) float32 {
	k := r.index*r.pixels + i
	old := r.data[k]
	r.data[k] = v
	return old
}

// restart clears pixel i and stores v at the write index.
func (r *AveragingRing) restart(i int, v float32) {
	for s := 0; s < r.slots; s++ {
		r.data[s*r.pixels+i] = 0
	}
	r.data[r.index*r.pixels+i] = v
}

// Advance moves the write index to the next slot.
func (r *AveragingRing) Advance() {
	r.index++
	if r.index == r.slots {
		r.index = 0
	}
}

// Reset clears all samples and rewinds the index.
func (r *AveragingRing) Reset() {
	clear(r.data)
	r.index = 0
}
