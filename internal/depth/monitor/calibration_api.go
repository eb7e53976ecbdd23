package monitor

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/banshee-data/sandtable/internal/calibration"
	"github.com/banshee-data/sandtable/internal/db"
	"github.com/banshee-data/sandtable/internal/httputil"
)

type calibrationResponse struct {
	Calibrated   bool        `json:"calibrated"`
	Coefficients []float64   `json:"coefficients,omitempty"`
	Matrix       [][]float64 `json:"matrix,omitempty"`
	RMSResidual  float64     `json:"rms_residual,omitempty"`
}

type calibrationRequest struct {
	Pairs           []calibration.PointPair `json:"pairs"`
	ProjectorWidth  int                     `json:"projector_width"`
	ProjectorHeight int                     `json:"projector_height"`
}

func (ws *WebServer) handleCalibration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ws.writeJSON(w, http.StatusOK, ws.calibrationSnapshot())
	case http.MethodPost:
		ws.handleCalibrate(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (ws *WebServer) calibrationSnapshot() calibrationResponse {
	t, err := ws.solver.Transform()
	if err != nil {
		return calibrationResponse{}
	}
	m := t.Matrix()
	rows, _ := m.Dims()
	matrix := make([][]float64, rows)
	for i := range matrix {
		matrix[i] = append([]float64(nil), m.RawRowView(i)...)
	}
	return calibrationResponse{
		Calibrated:   true,
		Coefficients: t.Slice(),
		Matrix:       matrix,
		RMSResidual:  ws.solver.Residual(),
	}
}

// handleCalibrate solves a new calibration from posted point pairs, saves
// it, and records it in the history. A failed solve or save keeps the
// previous calibration.
func (ws *WebServer) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	var req calibrationRequest
	if err := httputil.DecodeJSON(w, r, 1<<20, &req, false); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "invalid calibration request: "+err.Error())
		return
	}

	ws.calibMu.Lock()
	defer ws.calibMu.Unlock()

	prev := ws.solver.State()
	if err := ws.solver.Calibrate(req.Pairs); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, calibration.ErrInsufficientPoints) || errors.Is(err, calibration.ErrDegenerateSystem) {
			status = http.StatusUnprocessableEntity
		}
		ws.writeJSONError(w, status, err.Error())
		return
	}

	if ws.calibrationPath != "" {
		if err := ws.solver.Save(ws.calibrationPath); err != nil {
			ws.solver.Rollback(prev)
			ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	resp := ws.calibrationSnapshot()
	if ws.store != nil {
		width, height := req.ProjectorWidth, req.ProjectorHeight
		if ws.surface != nil && width == 0 && height == 0 {
			width, height = ws.surface.ProjectorWidth, ws.surface.ProjectorHeight
		}
		_, err := ws.store.InsertCalibration(r.Context(), db.CalibrationRecord{
			Coefficients:    resp.Coefficients,
			PairCount:       len(req.Pairs),
			RMSResidual:     resp.RMSResidual,
			ProjectorWidth:  width,
			ProjectorHeight: height,
		})
		if err != nil {
			ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("record calibration: %v", err))
			return
		}
	}
	ws.writeJSON(w, http.StatusCreated, resp)
}

func (ws *WebServer) handleCalibrationHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if ws.store == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	recs, err := ws.store.ListCalibrations(r.Context(), queryLimit(r, 20))
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []db.CalibrationRecord{}
	}
	ws.writeJSON(w, http.StatusOK, recs)
}

// handleProject maps a sensor pixel and depth to projector pixels.
// Query params: x, y (sensor pixel) and depth (mm).
func (ws *WebServer) handleProject(w http.ResponseWriter, r *http.Request) {
	if ws.surface == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no surface configured")
		return
	}
	q := r.URL.Query()
	x, errX := strconv.Atoi(q.Get("x"))
	y, errY := strconv.Atoi(q.Get("y"))
	depth, errD := strconv.ParseFloat(q.Get("depth"), 64)
	if errX != nil || errY != nil || errD != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "x, y and depth are required numbers")
		return
	}
	p, err := ws.surface.SensorToProjector(x, y, depth)
	switch {
	case errors.Is(err, calibration.ErrNotCalibrated):
		ws.writeJSONError(w, http.StatusConflict, err.Error())
	case errors.Is(err, calibration.ErrProjectionUndefined):
		ws.writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		ws.writeJSONError(w, http.StatusInternalServerError, err.Error())
	default:
		ws.writeJSON(w, http.StatusOK, map[string]float64{"x": p.X, "y": p.Y})
	}
}

func queryLimit(r *http.Request, def int) int {
	limit := def
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 1000 {
			limit = v
		}
	}
	return limit
}
