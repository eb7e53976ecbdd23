package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/sandtable/internal/depth/l2frames"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

func maxPointsParam(r *http.Request, def int) int {
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			return v
		}
	}
	return def
}

func renderHTML(w http.ResponseWriter, ws *WebServer, c components.Charter) {
	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(c)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleDepthChart renders the latest filtered frame as a coloured scatter,
// downsampled by stride to stay under max_points.
func (ws *WebServer) handleDepthChart(w http.ResponseWriter, r *http.Request) {
	f := ws.acq.LatestFiltered()
	if f == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no filtered frame yet")
		return
	}
	roi := f.ROI
	maxPoints := maxPointsParam(r, 8000)
	stride := 1
	if n := roi.Dx() * roi.Dy(); n > maxPoints {
		stride = int(math.Ceil(math.Sqrt(float64(n) / float64(maxPoints))))
	}

	data := make([]opts.ScatterData, 0, maxPoints)
	lo, hi := math.Inf(1), math.Inf(-1)
	for y := roi.MinY; y < roi.MaxY; y += stride {
		for x := roi.MinX; x < roi.MaxX; x += stride {
			d, _ := f.DepthAt(x, y)
			if !l2frames.IsValidDepth(d) {
				continue
			}
			v := float64(d)
			lo, hi = math.Min(lo, v), math.Max(hi, v)
			data = append(data, opts.ScatterData{Value: []interface{}{x, -y, v}})
		}
	}
	if len(data) == 0 {
		lo, hi = 0, 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sandbox Depth", Theme: "dark", Width: "900px", Height: "700px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Filtered Depth", Subtitle: fmt.Sprintf("frame=%d roi=%v points=%d stride=%d", f.Seq, roi, len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: roi.MinX, Max: roi.MaxX, Name: "x (px)"}),
		charts.WithYAxisOpts(opts.YAxis{Min: -roi.MaxY, Max: -roi.MinY, Name: "y (px)"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("depth", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))
	renderHTML(w, ws, scatter)
}

// handleGradientChart renders gradient magnitude per cell.
func (ws *WebServer) handleGradientChart(w http.ResponseWriter, r *http.Request) {
	g := ws.acq.LatestGradient()
	if g == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no gradient field yet")
		return
	}
	cols, rows := g.Cells.Width(), g.Cells.Height()
	data := make([]opts.ScatterData, 0, cols*rows)
	maxMag := 0.0
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			v, _ := g.Cells.At(cx, cy)
			mag := float64(v.Len())
			maxMag = math.Max(maxMag, mag)
			data = append(data, opts.ScatterData{Value: []interface{}{cx, -cy, mag}})
		}
	}
	if maxMag == 0 {
		maxMag = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sandbox Gradient", Theme: "dark", Width: "900px", Height: "700px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Gradient Magnitude", Subtitle: fmt.Sprintf("frame=%d cells=%dx%d res=%d", g.Seq, cols, rows, g.Resolution)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxMag),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("gradient", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 10}))
	renderHTML(w, ws, scatter)
}

// handleMailboxChart renders publish and drop counters of the output
// mailboxes.
func (ws *WebServer) handleMailboxChart(w http.ResponseWriter, r *http.Request) {
	st := ws.acq.Stats()
	x := []string{"filtered", "colour", "gradient"}
	published := []opts.BarData{{Value: st.Filtered.Published}, {Value: st.Colors.Published}, {Value: st.Gradients.Published}}
	dropped := []opts.BarData{{Value: st.Filtered.Dropped}, {Value: st.Colors.Dropped}, {Value: st.Gradients.Dropped}}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Output Mailboxes", Subtitle: "session " + st.SessionID}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("published", published, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"})).
		AddSeries("dropped", dropped, charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}))
	renderHTML(w, ws, bar)
}

// depthGrid adapts the ROI of a filtered frame to plotter.GridXYZ.
// Sentinel depths are NaN and left unpainted.
type depthGrid struct {
	f        *l2frames.FilteredFrame
	roi      l2frames.ROI
	min, max float64
}

func newDepthGrid(f *l2frames.FilteredFrame) (*depthGrid, bool) {
	g := &depthGrid{f: f, roi: f.ROI, min: math.Inf(1), max: math.Inf(-1)}
	for y := g.roi.MinY; y < g.roi.MaxY; y++ {
		for x := g.roi.MinX; x < g.roi.MaxX; x++ {
			if d, _ := f.DepthAt(x, y); l2frames.IsValidDepth(d) {
				g.min = math.Min(g.min, float64(d))
				g.max = math.Max(g.max, float64(d))
			}
		}
	}
	if math.IsInf(g.min, 1) {
		return nil, false
	}
	if g.max <= g.min {
		g.max = g.min + 1
	}
	return g, true
}

func (g *depthGrid) Dims() (c, r int) { return g.roi.Dx(), g.roi.Dy() }
func (g *depthGrid) X(c int) float64  { return float64(g.roi.MinX + c) }

// Y flips rows so the image is drawn top-down.
func (g *depthGrid) Y(r int) float64 { return -float64(g.roi.MinY + r) }
func (g *depthGrid) Z(c, r int) float64 {
	d, _ := g.f.DepthAt(g.roi.MinX+c, g.roi.MinY+r)
	if !l2frames.IsValidDepth(d) {
		return math.NaN()
	}
	return float64(d)
}
func (g *depthGrid) Min() float64 { return g.min }
func (g *depthGrid) Max() float64 { return g.max }

// handleDepthPNG renders the latest filtered frame as a PNG heat map.
func (ws *WebServer) handleDepthPNG(w http.ResponseWriter, r *http.Request) {
	f := ws.acq.LatestFiltered()
	if f == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no filtered frame yet")
		return
	}
	grid, ok := newDepthGrid(f)
	if !ok {
		ws.writeJSONError(w, http.StatusNotFound, "no valid depth in frame")
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Filtered depth, frame %d", f.Seq)
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "-y (px)"
	p.Add(plotter.NewHeatMap(grid, palette.Heat(16, 1)))

	wt, err := p.WriterTo(8*vg.Inch, 6*vg.Inch, "png")
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render plot: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("encode plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
