package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/sandtable/internal/calibration"
	"github.com/banshee-data/sandtable/internal/config"
	"github.com/banshee-data/sandtable/internal/db"
	"github.com/banshee-data/sandtable/internal/depth/l1sensor"
	"github.com/banshee-data/sandtable/internal/depth/l4surface"
	"github.com/banshee-data/sandtable/internal/depth/monitor"
	"github.com/banshee-data/sandtable/internal/depth/pipeline"
	"github.com/banshee-data/sandtable/internal/healthcheck"
	"github.com/banshee-data/sandtable/internal/version"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", ":50051", "gRPC health listen address (empty disables)")
	dbFile      = flag.String("db", "sandtable.db", "Path to the SQLite database file")
	configFile  = flag.String("config", "", "Path to a tuning JSON file (defaults apply when empty)")
	source      = flag.String("source", "synthetic", "Depth source: synthetic or replay")
	replayFile  = flag.String("replay", "", "Recording to play back when -source=replay")
	replayLoop  = flag.Bool("replay-loop", true, "Restart the recording at its end")
	replayFPS   = flag.Float64("replay-fps", 30, "Replay rate in frames per second (0 = as fast as possible)")
	recordFile  = flag.String("record", "", "Record raw frames to this file while running")
	seed        = flag.Uint64("seed", 1, "Random seed of the synthetic sensor")
	baseDepth   = flag.Float64("base-depth", 1000, "Distance from camera to the flat sand, in millimetres")
	debugLog    = flag.Bool("debug", false, "Enable diagnostic logging")
	traceLog    = flag.Bool("trace", false, "Enable per-frame trace logging")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func openSensor() (l1sensor.Sensor, io.Closer, error) {
	var sensor l1sensor.Sensor
	switch *source {
	case "synthetic":
		cfg := l1sensor.DefaultSyntheticConfig()
		cfg.Seed = *seed
		cfg.BaseDepth = *baseDepth
		sensor = l1sensor.NewSyntheticSensor(cfg)
	case "replay":
		if *replayFile == "" {
			return nil, nil, errors.New("-replay is required with -source=replay")
		}
		sensor = l1sensor.NewReplaySensor(*replayFile,
			l1sensor.WithReplayFPS(*replayFPS), l1sensor.WithReplayLoop(*replayLoop))
	default:
		return nil, nil, errors.New("unknown -source " + *source)
	}
	if *recordFile == "" {
		return sensor, nil, nil
	}

	w, h, err := sensor.Geometry()
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Create(*recordFile)
	if err != nil {
		return nil, nil, err
	}
	rec, err := l1sensor.NewRecorder(f, w, h)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	closer := closerFunc(func() error {
		log.Printf("recorded %d frames to %s", rec.Frames(), *recordFile)
		return errors.Join(rec.Close(), f.Close())
	})
	return &l1sensor.RecordingSensor{
		Sensor:   sensor,
		Recorder: rec,
		OnError:  func(err error) { log.Printf("recording failed: %v", err) },
	}, closer, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func main() {
	flag.Parse()
	if *showVersion {
		log.Print(version.String())
		return
	}
	log.Print(version.String())

	diag, trace := io.Discard, io.Discard
	if *debugLog || *traceLog {
		diag = os.Stderr
	}
	if *traceLog {
		trace = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diag, trace)

	cfg := config.EmptyTuningConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(*configFile); err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	sensor, recorder, err := openSensor()
	if err != nil {
		log.Fatalf("failed to open depth source: %v", err)
	}
	if recorder != nil {
		defer recorder.Close()
	}

	grabber := pipeline.NewGrabber(sensor,
		pipeline.WithParams(pipeline.ParamsFromTuning(cfg)),
		pipeline.WithChannelDepth(cfg.GetChannelDepth()),
	)
	if !grabber.Setup() {
		log.Fatal("depth pipeline setup failed")
	}
	w, h := grabber.Geometry()

	solver := calibration.NewSolver()
	if err := solver.Load(cfg.GetCalibrationPath()); err != nil {
		log.Printf("starting uncalibrated: %v", err)
	}
	plane, err := l4surface.NewBasePlane(r3.Vector{Z: 1}, r3.Vector{Z: *baseDepth})
	if err != nil {
		log.Fatalf("invalid base plane: %v", err)
	}
	surface := &l4surface.Surface{
		Intrinsics:      l4surface.DefaultIntrinsics(w, h),
		Plane:           plane,
		Projector:       solver,
		ProjectorWidth:  cfg.GetProjectorWidth(),
		ProjectorHeight: cfg.GetProjectorHeight(),
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := grabber.Start(ctx); err != nil {
		log.Fatalf("failed to start acquisition: %v", err)
	}
	defer grabber.Stop()

	var wg sync.WaitGroup

	flusher := pipeline.NewStatsFlusher(pipeline.StatsFlusherConfig{
		Source:   grabber,
		Sink:     database,
		Interval: cfg.GetStatsFlushInterval(),
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := flusher.Run(ctx); err != nil {
			log.Printf("stats flusher: %v", err)
		}
	}()

	if *grpcListen != "" {
		health := healthcheck.NewPublisher(*grpcListen)
		if err := health.Start(); err != nil {
			log.Fatalf("failed to start health server: %v", err)
		}
		defer health.Stop()
		wg.Add(1)
		go func() {
			defer wg.Done()
			health.Watch(ctx, grabber, nil, 500*time.Millisecond)
		}()
	}

	// Frame consumer: stands in for the renderer, taking the newest results
	// each tick and acknowledging them.
	wg.Add(1)
	go func() {
		defer wg.Done()
		consume(ctx, grabber)
	}()

	ws, err := monitor.NewWebServer(monitor.WebServerConfig{
		Address:         *listen,
		Acquisition:     grabber,
		Solver:          solver,
		Surface:         surface,
		Store:           database,
		CalibrationPath: cfg.GetCalibrationPath(),
		Mount:           func(mux *http.ServeMux) error { return database.AttachAdminRoutes(mux) },
	})
	if err != nil {
		log.Fatalf("failed to create web server: %v", err)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("HTTP server failed: %v", err)
			stop()
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

func consume(ctx context.Context, g *pipeline.Grabber) {
	ticker := time.NewTicker(time.Second / 60)
	defer ticker.Stop()
	report := time.NewTicker(10 * time.Second)
	defer report.Stop()

	var frames int
	var wasStable bool
	for {
		select {
		case <-ctx.Done():
			return
		case <-report.C:
			if f := g.LatestFiltered(); f != nil {
				s := monitor.SummarizeDepth(f)
				log.Printf("consumed %d frames; depth mean=%.1f sd=%.1f valid=%d/%d",
					frames, s.Mean, s.StdDev, s.ValidPixels, s.ROIPixels)
			}
		case <-ticker.C:
			if !g.IsFrameNew() {
				continue
			}
			if _, ok := g.Filtered.Latest(); ok {
				frames++
			}
			g.Gradients.Latest()
			g.Colors.Latest()
			g.AcknowledgeFrame()
			if stable := g.IsImageStabilized(); stable != wasStable {
				wasStable = stable
				log.Printf("depth image stabilised=%v", stable)
			}
		}
	}
}
