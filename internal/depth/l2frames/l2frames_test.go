package l2frames

import (
	"image"
	"image/color"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_BoundsChecked(t *testing.T) {
	g := NewGrid[int](4, 3)
	require.Equal(t, 12, g.Len())

	assert.True(t, g.Set(3, 2, 7))
	v, ok := g.At(3, 2)
	assert.True(t, ok)
	assert.Equal(t, 7, v)

	// Writing past the end of a row must not wrap into the next one.
	assert.False(t, g.Set(4, 0, 9))
	v, _ = g.At(0, 1)
	assert.Equal(t, 0, v)

	_, ok = g.At(-1, 0)
	assert.False(t, ok)
	_, ok = g.At(0, 3)
	assert.False(t, ok)
}

func TestGrid_CloneIsIndependent(t *testing.T) {
	g := NewGrid[float32](2, 2)
	g.Fill(1)
	c := g.Clone()
	c.Set(0, 0, 5)
	v, _ := g.At(0, 0)
	assert.Equal(t, float32(1), v)
}

func TestNewGridFrom_RejectsLengthMismatch(t *testing.T) {
	assert.Nil(t, NewGridFrom(2, 2, []uint16{1, 2, 3}))
	assert.NotNil(t, NewGridFrom(2, 2, []uint16{1, 2, 3, 4}))
}

func TestROI_Validate(t *testing.T) {
	tests := []struct {
		name    string
		roi     ROI
		wantErr bool
	}{
		{"full", FullROI(640, 480), false},
		{"inner", ROI{MinX: 10, MinY: 10, MaxX: 100, MaxY: 90}, false},
		{"empty x", ROI{MinX: 10, MinY: 0, MaxX: 10, MaxY: 5}, true},
		{"inverted y", ROI{MinX: 0, MinY: 9, MaxX: 5, MaxY: 3}, true},
		{"too wide", ROI{MaxX: 641, MaxY: 480}, true},
		{"negative", ROI{MinX: -1, MaxX: 5, MaxY: 5}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.roi.Validate(640, 480)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestROI_ContainsIsHalfOpen(t *testing.T) {
	r := ROI{MinX: 1, MinY: 1, MaxX: 3, MaxY: 3}
	assert.True(t, r.Contains(1, 1))
	assert.True(t, r.Contains(2, 2))
	assert.False(t, r.Contains(3, 2))
	assert.False(t, r.Contains(0, 1))
	assert.Equal(t, image.Rect(1, 1, 3, 3), r.Rect())
	assert.Equal(t, r, ROIFromRect(r.Rect()))
}

func TestVec2_ClampLen(t *testing.T) {
	v := Vec2{X: 30, Y: 40}.ClampLen(10)
	assert.InDelta(t, 10, v.Len(), 1e-4)
	assert.InDelta(t, 6, v.X, 1e-4)
	assert.Equal(t, Vec2{X: 1, Y: 1}, Vec2{X: 1, Y: 1}.ClampLen(10))
}

func TestVec2_ClampLenNeverExceedsLimit(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for _, limit := range []float32{10, 1000, 3.7, 0.3} {
		over := 0
		for i := 0; i < 100000; i++ {
			v := Vec2{X: float32(rng.NormFloat64() * 50), Y: float32(rng.NormFloat64() * 50)}
			c := v.ClampLen(limit)
			if c.Len() > limit {
				over++
			}
			if v.Len() > limit {
				assert.InEpsilon(t, limit, c.Len(), 1e-5)
			}
		}
		assert.Zero(t, over, "limit %v", limit)
	}
}

func TestGradientField_At(t *testing.T) {
	g := &GradientField{Resolution: 10, Origin: image.Pt(5, 5), Cells: NewGrid[Vec2](2, 2)}
	g.Cells.Set(1, 0, Vec2{X: 2})

	v, ok := g.At(17, 9)
	assert.True(t, ok)
	assert.Equal(t, float32(2), v.X)

	_, ok = g.At(4, 9)
	assert.False(t, ok)
	_, ok = g.At(25, 5)
	assert.False(t, ok)
}

func TestIsValidDepth(t *testing.T) {
	assert.False(t, IsValidDepth(InitialValue))
	assert.False(t, IsValidDepth(OutsideROIValue))
	assert.False(t, IsValidDepth(InstableValue))
	assert.True(t, IsValidDepth(1023.5))
}

func TestAlignColor(t *testing.T) {
	assert.Nil(t, AlignColor(nil, 4, 4))

	same := image.NewRGBA(image.Rect(0, 0, 4, 4))
	assert.Same(t, same, AlignColor(same, 4, 4))

	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			src.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	out := AlignColor(src, 4, 4)
	require.Equal(t, image.Rect(0, 0, 4, 4), out.Bounds())
	r, _, _, a := out.At(2, 2).RGBA()
	assert.InDelta(t, 200, float64(r>>8), 1)
	assert.InDelta(t, 255, float64(a>>8), 1)
}
