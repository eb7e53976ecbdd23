package monitor

import (
	"net/http"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sandtable/internal/db"
	"github.com/banshee-data/sandtable/internal/depth/l2frames"
	"github.com/banshee-data/sandtable/internal/httputil"
)

// DepthSummary describes the valid pixels of one filtered frame.
type DepthSummary struct {
	Seq         uint64  `json:"seq"`
	ValidPixels int     `json:"valid_pixels"`
	ROIPixels   int     `json:"roi_pixels"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"std_dev"`
	Min         float64 `json:"min"`
	Median      float64 `json:"median"`
	Max         float64 `json:"max"`
}

// SummarizeDepth computes statistics over the valid depths inside the
// frame's ROI.
func SummarizeDepth(f *l2frames.FilteredFrame) DepthSummary {
	roi := f.ROI
	s := DepthSummary{Seq: f.Seq, ROIPixels: roi.Dx() * roi.Dy()}
	values := make([]float64, 0, s.ROIPixels)
	for y := roi.MinY; y < roi.MaxY; y++ {
		for x := roi.MinX; x < roi.MaxX; x++ {
			if d, _ := f.DepthAt(x, y); l2frames.IsValidDepth(d) {
				values = append(values, float64(d))
			}
		}
	}
	s.ValidPixels = len(values)
	if len(values) == 0 {
		return s
	}
	sort.Float64s(values)
	s.Min, s.Max = values[0], values[len(values)-1]
	s.Median = stat.Quantile(0.5, stat.Empirical, values, nil)
	if len(values) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	} else {
		s.Mean = values[0]
	}
	return s
}

func (ws *WebServer) handleDepthSummary(w http.ResponseWriter, r *http.Request) {
	f := ws.acq.LatestFiltered()
	if f == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no filtered frame yet")
		return
	}
	ws.writeJSON(w, http.StatusOK, SummarizeDepth(f))
}

func (ws *WebServer) handleStatsHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.store == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	rows, err := ws.store.RecentFrameStats(r.Context(), queryLimit(r, 100))
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rows == nil {
		rows = []db.FrameStatsRow{}
	}
	ws.writeJSON(w, http.StatusOK, rows)
}
