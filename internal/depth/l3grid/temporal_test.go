package l3grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sandtable/internal/depth/l2frames"
)

func testParams() Params {
	p := DefaultParams()
	p.AveragingSlots = 5
	return p
}

func constFrame(w, h int, v uint16) *l2frames.Grid[uint16] {
	g := l2frames.NewGrid[uint16](w, h)
	g.Fill(v)
	return g
}

func applyN(t *testing.T, f *TemporalFilter, raw *l2frames.Grid[uint16], n int) *l2frames.Grid[float32] {
	t.Helper()
	out := l2frames.NewGrid[float32](raw.Width(), raw.Height())
	for i := 0; i < n; i++ {
		_, err := f.Apply(raw, out)
		require.NoError(t, err)
	}
	return out
}

func TestTemporalFilter_ConstantInputConverges(t *testing.T) {
	p := testParams()
	f, err := NewTemporalFilter(4, 3, p)
	require.NoError(t, err)
	raw := constFrame(4, 3, 1000)
	out := l2frames.NewGrid[float32](4, 3)

	minSamples := p.EffectiveMinSamples()
	for i := 1; i < minSamples; i++ {
		stable, err := f.Apply(raw, out)
		require.NoError(t, err)
		assert.Zero(t, stable, "frame %d", i)
	}
	stable, err := f.Apply(raw, out)
	require.NoError(t, err)
	assert.Equal(t, 12, stable)

	for _, v := range out.Values() {
		assert.InDelta(t, 1000, v, p.Hysteresis)
	}
	st, ok := f.Stat(2, 1)
	require.True(t, ok)
	assert.Equal(t, minSamples, st.Count)
	assert.InDelta(t, 0, st.Variance, 1e-9)
}

func TestTemporalFilter_BigChangeRestartsWindow(t *testing.T) {
	p := testParams()
	p.FollowBigChange = true
	p.BigChange = 10
	f, err := NewTemporalFilter(2, 2, p)
	require.NoError(t, err)

	applyN(t, f, constFrame(2, 2, 1000), 4)
	st, _ := f.Stat(0, 0)
	require.Equal(t, 4, st.Count)

	applyN(t, f, constFrame(2, 2, 1100), 1)
	st, _ = f.Stat(0, 0)
	assert.Equal(t, 1, st.Count)
	assert.InDelta(t, 1100, st.Mean, 1e-9)

	// Only the restarted slot survives.
	populated := 0
	for s := 0; s < p.AveragingSlots; s++ {
		if v, _ := f.Slot(0, 0, s); v != 0 {
			populated++
			assert.Equal(t, float32(1100), v)
		}
	}
	assert.Equal(t, 1, populated)
}

func TestTemporalFilter_BigChangeDisabledAccumulates(t *testing.T) {
	p := testParams()
	p.FollowBigChange = false
	f, err := NewTemporalFilter(1, 1, p)
	require.NoError(t, err)

	applyN(t, f, constFrame(1, 1, 1000), 2)
	applyN(t, f, constFrame(1, 1, 1100), 1)
	st, _ := f.Stat(0, 0)
	assert.Equal(t, 3, st.Count)
	assert.InDelta(t, 3100.0/3, st.Mean, 1e-9)
}

func TestTemporalFilter_WindowDropsOldestSample(t *testing.T) {
	p := testParams()
	p.AveragingSlots = 3
	f, err := NewTemporalFilter(1, 1, p)
	require.NoError(t, err)

	applyN(t, f, constFrame(1, 1, 1000), 3)
	applyN(t, f, constFrame(1, 1, 1003), 3)
	st, _ := f.Stat(0, 0)
	assert.Equal(t, 3, st.Count)
	assert.InDelta(t, 1003, st.Mean, 1e-9)
	assert.InDelta(t, 0, st.Variance, 1e-6)
	assert.Equal(t, 0, f.WriteIndex())
}

func TestTemporalFilter_OutsideROIAlwaysSentinel(t *testing.T) {
	p := testParams()
	p.ROI = l2frames.ROI{MinX: 1, MinY: 1, MaxX: 3, MaxY: 2}
	f, err := NewTemporalFilter(4, 3, p)
	require.NoError(t, err)

	raw := l2frames.NewGrid[uint16](4, 3)
	for i := range raw.Values() {
		raw.Values()[i] = uint16(500 + 37*i)
	}
	out := applyN(t, f, raw, 6)

	for y := 0; y < 3; y++ {
		for x := 0; x < 4; x++ {
			v, _ := out.At(x, y)
			if p.ROI.Contains(x, y) {
				assert.NotEqual(t, l2frames.OutsideROIValue, v, "(%d,%d)", x, y)
				continue
			}
			assert.Equal(t, l2frames.OutsideROIValue, v, "(%d,%d)", x, y)
			st, _ := f.Stat(x, y)
			assert.Zero(t, st.Count, "outside pixel (%d,%d) gathered statistics", x, y)
		}
	}
}

func TestTemporalFilter_NoSamplesYieldsInitialValue(t *testing.T) {
	p := testParams()
	p.MaxOffset = 300
	f, err := NewTemporalFilter(2, 1, p)
	require.NoError(t, err)

	raw := l2frames.NewGrid[uint16](2, 1)
	raw.Set(0, 0, 0)   // no reading
	raw.Set(1, 0, 250) // closer than the offset plane
	out := applyN(t, f, raw, 10)

	for _, v := range out.Values() {
		assert.Equal(t, l2frames.InitialValue, v)
	}
	st, _ := f.Stat(1, 0)
	assert.Zero(t, st.Count)
}

func TestTemporalFilter_UnstablePolicy(t *testing.T) {
	run := func(retain bool) float32 {
		p := testParams()
		p.RetainValids = retain
		f, err := NewTemporalFilter(1, 1, p)
		require.NoError(t, err)
		applyN(t, f, constFrame(1, 1, 1000), p.AveragingSlots)
		// Alternate far apart so variance stays above the limit.
		var out *l2frames.Grid[float32]
		for i := 0; i < 2*p.AveragingSlots; i++ {
			v := uint16(900)
			if i%2 == 0 {
				v = 1100
			}
			out = applyN(t, f, constFrame(1, 1, v), 1)
		}
		got, _ := out.At(0, 0)
		return got
	}

	assert.Equal(t, float32(1000), run(true))
	assert.Equal(t, l2frames.InstableValue, run(false))
}

func TestTemporalFilter_HysteresisSuppressesSmallUpdates(t *testing.T) {
	p := testParams()
	p.AveragingSlots = 1
	p.Hysteresis = 5
	f, err := NewTemporalFilter(1, 1, p)
	require.NoError(t, err)

	out := applyN(t, f, constFrame(1, 1, 1000), 1)
	v, _ := out.At(0, 0)
	require.Equal(t, float32(1000), v)

	out = applyN(t, f, constFrame(1, 1, 1003), 1)
	v, _ = out.At(0, 0)
	assert.Equal(t, float32(1000), v)

	out = applyN(t, f, constFrame(1, 1, 1006), 1)
	v, _ = out.At(0, 0)
	assert.Equal(t, float32(1006), v)
}

func TestTemporalFilter_ReconfigureResetsOnGeometryChange(t *testing.T) {
	p := testParams()
	f, err := NewTemporalFilter(4, 4, p)
	require.NoError(t, err)
	applyN(t, f, constFrame(4, 4, 1000), 3)

	q := p
	q.MaxVariance = 9
	require.NoError(t, f.Reconfigure(q))
	assert.Equal(t, 3, f.Frames(), "threshold change must keep history")

	q.AveragingSlots = 7
	require.NoError(t, f.Reconfigure(q))
	assert.Zero(t, f.Frames())
	st, _ := f.Stat(0, 0)
	assert.Zero(t, st.Count)
	v, _ := f.Valid(0, 0)
	assert.Equal(t, l2frames.InitialValue, v)

	q.ROI = l2frames.ROI{MinX: 0, MinY: 0, MaxX: 5, MaxY: 4}
	assert.Error(t, f.Reconfigure(q))
}

func TestTemporalFilter_RejectsMismatchedFrame(t *testing.T) {
	f, err := NewTemporalFilter(4, 4, testParams())
	require.NoError(t, err)
	_, err = f.Apply(constFrame(3, 4, 1), l2frames.NewGrid[float32](4, 4))
	assert.Error(t, err)
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"no slots", func(p *Params) { p.AveragingSlots = 0 }},
		{"min samples above slots", func(p *Params) { p.MinSamples = p.AveragingSlots + 1 }},
		{"negative variance", func(p *Params) { p.MaxVariance = -1 }},
		{"negative hysteresis", func(p *Params) { p.Hysteresis = -1 }},
		{"zero big change", func(p *Params) { p.BigChange = 0 }},
		{"negative offset", func(p *Params) { p.MaxOffset = -1 }},
		{"zero resolution", func(p *Params) { p.GradientResolution = 0 }},
		{"zero max gradient", func(p *Params) { p.MaxGradient = 0 }},
		{"bad roi", func(p *Params) { p.ROI = l2frames.ROI{MinX: 5, MaxX: 2, MaxY: 2} }},
	}
	require.NoError(t, DefaultParams().Validate(640, 480))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			assert.Error(t, p.Validate(640, 480))
		})
	}
	assert.Equal(t, 8, DefaultParams().EffectiveMinSamples())
}
