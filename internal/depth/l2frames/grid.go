package l2frames

// Grid is a row-major width×height arena addressed by (x, y). At and Set are
// bounds-checked: out-of-range access reports ok=false instead of touching
// a neighbouring row.
type Grid[T any] struct {
	w, h int
	data []T
}

// NewGrid allocates a zeroed w×h grid. Non-positive dimensions yield an
// empty grid.
func NewGrid[T any](w, h int) *Grid[T] {
	if w <= 0 || h <= 0 {
		return &Grid[T]{}
	}
	return &Grid[T]{w: w, h: h, data: make([]T, w*h)}
}

// NewGridFrom wraps an existing row-major slice. It returns nil when the
// slice length does not match w*h.
func NewGridFrom[T any](w, h int, data []T) *Grid[T] {
	if w < 0 || h < 0 || len(data) != w*h {
		return nil
	}
	return &Grid[T]{w: w, h: h, data: data}
}

func (g *Grid[T]) Width() int  { return g.w }
func (g *Grid[T]) Height() int { return g.h }
func (g *Grid[T]) Len() int    { return len(g.data) }

// Values exposes the backing slice for tight loops that already know
// their indices are in range.
func (g *Grid[T]) Values() []T { return g.data }

// InBounds reports whether (x, y) addresses a cell.
func (g *Grid[T]) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < g.w && y < g.h
}

// Index returns the flat index of (x, y) without checking bounds.
func (g *Grid[T]) Index(x, y int) int { return y*g.w + x }

// At returns the value at (x, y).
func (g *Grid[T]) At(x, y int) (T, bool) {
	if !g.InBounds(x, y) {
		var zero T
		return zero, false
	}
	return g.data[y*g.w+x], true
}

// Set stores v at (x, y) and reports whether the write happened.
func (g *Grid[T]) Set(x, y int, v T) bool {
	if !g.InBounds(x, y) {
		return false
	}
	g.data[y*g.w+x] = v
	return true
}

// Fill sets every cell to v.
func (g *Grid[T]) Fill(v T) {
	for i := range g.data {
		g.data[i] = v
	}
}

// Clone returns a deep copy.
func (g *Grid[T]) Clone() *Grid[T] {
	return &Grid[T]{w: g.w, h: g.h, data: append([]T(nil), g.data...)}
}
