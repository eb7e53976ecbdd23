// Package monitor serves the sandbox's HTTP status, tuning and calibration
// API along with a few debug charts.
package monitor

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/banshee-data/sandtable/internal/calibration"
	"github.com/banshee-data/sandtable/internal/db"
	"github.com/banshee-data/sandtable/internal/depth/l2frames"
	"github.com/banshee-data/sandtable/internal/depth/l3grid"
	"github.com/banshee-data/sandtable/internal/depth/l4surface"
	"github.com/banshee-data/sandtable/internal/depth/pipeline"
	"github.com/banshee-data/sandtable/internal/httputil"
	"github.com/banshee-data/sandtable/internal/monitoring"
)

// Acquisition is the part of *pipeline.Grabber the web server drives.
type Acquisition interface {
	Stats() pipeline.Stats
	Params() l3grid.Params
	SetParams(l3grid.Params) error
	ResetBuffers()
	IsImageStabilized() bool
	LatestFiltered() *l2frames.FilteredFrame
	LatestGradient() *l2frames.GradientField
}

// Store is the persistence used for calibration history and stats.
// *db.DB satisfies it.
type Store interface {
	InsertCalibration(ctx context.Context, rec db.CalibrationRecord) (db.CalibrationRecord, error)
	ListCalibrations(ctx context.Context, limit int) ([]db.CalibrationRecord, error)
	RecentFrameStats(ctx context.Context, limit int) ([]db.FrameStatsRow, error)
}

// WebServer handles the HTTP interface of the sandbox.
type WebServer struct {
	address         string
	acq             Acquisition
	solver          *calibration.Solver
	surface         *l4surface.Surface
	store           Store
	calibrationPath string
	server          *http.Server

	// calibMu serialises calibrate, save and record.
	calibMu sync.Mutex
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address     string
	Acquisition Acquisition
	Solver      *calibration.Solver
	// Surface is optional; it enables /api/project.
	Surface *l4surface.Surface
	// Store is optional; history endpoints report 503 without it.
	Store Store
	// CalibrationPath is where a new calibration is saved. Empty disables
	// saving.
	CalibrationPath string
	// Mount, if set, is called with the route mux before serving so callers
	// can attach extra handlers such as database admin routes.
	Mount func(*http.ServeMux) error
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) (*WebServer, error) {
	ws := &WebServer{
		address:         config.Address,
		acq:             config.Acquisition,
		solver:          config.Solver,
		surface:         config.Surface,
		store:           config.Store,
		calibrationPath: config.CalibrationPath,
	}
	if ws.solver == nil {
		ws.solver = calibration.NewSolver()
	}
	mux := ws.setupRoutes()
	if config.Mount != nil {
		if err := config.Mount(mux); err != nil {
			return nil, err
		}
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws, nil
}

// Handler returns the root handler, for tests and embedding.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully. It
// returns an error only if the listener could not be started.
func (ws *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.address)
	if err != nil {
		return err
	}
	monitoring.Logf("[monitor] HTTP server listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("[monitor] HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("[monitor] HTTP server force close error: %v", err)
		}
	}
	monitoring.Logf("[monitor] HTTP server stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/params", ws.handleParams)
	mux.HandleFunc("/api/reset", ws.handleReset)
	mux.HandleFunc("/api/depth/summary", ws.handleDepthSummary)
	mux.HandleFunc("/api/stats/history", ws.handleStatsHistory)
	mux.HandleFunc("/api/calibration", ws.handleCalibration)
	mux.HandleFunc("/api/calibration/history", ws.handleCalibrationHistory)
	mux.HandleFunc("/api/project", ws.handleProject)
	mux.HandleFunc("/charts/depth", ws.handleDepthChart)
	mux.HandleFunc("/charts/gradient", ws.handleGradientChart)
	mux.HandleFunc("/charts/mailboxes", ws.handleMailboxChart)
	mux.HandleFunc("/charts/depth.png", ws.handleDepthPNG)
	return mux
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	httputil.WriteJSON(w, status, data)
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSONError(w, status, msg)
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusResponse struct {
	Acquisition pipeline.Stats `json:"acquisition"`
	Params      l3grid.Params  `json:"params"`
	Stabilized  bool           `json:"stabilized"`
	Calibrated  bool           `json:"calibrated"`
	Residual    float64        `json:"calibration_rms,omitempty"`
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := statusResponse{
		Acquisition: ws.acq.Stats(),
		Params:      ws.acq.Params(),
		Stabilized:  ws.acq.IsImageStabilized(),
		Calibrated:  ws.solver.IsCalibrated(),
	}
	if resp.Calibrated {
		resp.Residual = ws.solver.Residual()
	}
	ws.writeJSON(w, http.StatusOK, resp)
}

// handleParams returns the active filter parameters on GET. POST merges
// the JSON body over them, so a partial object updates only the named
// fields.
func (ws *WebServer) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ws.writeJSON(w, http.StatusOK, ws.acq.Params())
	case http.MethodPost:
		p := ws.acq.Params()
		if err := httputil.DecodeJSON(w, r, 1<<16, &p, true); err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, "invalid params: "+err.Error())
			return
		}
		if err := ws.acq.SetParams(p); err != nil {
			ws.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		// Applied before the next frame; echo what was queued.
		ws.writeJSON(w, http.StatusAccepted, p)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (ws *WebServer) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	ws.acq.ResetBuffers()
	ws.writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset queued"})
}
