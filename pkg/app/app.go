// Package app wires the line follower together: camera, segmenter,
// control loop, command dispatcher, dashboard and heartbeat.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/teslashibe/go-linefollower/internal/config"
	"github.com/teslashibe/go-linefollower/internal/log"
	"github.com/teslashibe/go-linefollower/internal/tracing"
	"github.com/teslashibe/go-linefollower/pkg/debug"
	"github.com/teslashibe/go-linefollower/pkg/follower"
	"github.com/teslashibe/go-linefollower/pkg/robot"
	"github.com/teslashibe/go-linefollower/pkg/vision"
	"github.com/teslashibe/go-linefollower/pkg/web"
)

// App owns every component and their lifecycle.
type App struct {
	config *config.Config
	logger *slog.Logger

	camera     *vision.Camera
	segmenter  *vision.HSVSegmenter
	dispatcher *robot.Dispatcher
	loop       *follower.Loop

	webServer *web.Server
	heartbeat *Heartbeat

	stopTracing tracing.ShutdownFunc
}

// New validates cfg and applies the process-wide logging settings.
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Init(cfg.LogLevel)
	debug.Enabled = cfg.Debug
	debug.Vision = cfg.DebugVision

	return &App{
		config: cfg,
		logger: log.Component("app"),
	}, nil
}

// Init opens the camera and builds the pipeline.
// Call this after New and before Run.
func (a *App) Init() error {
	cfg := a.config

	if cfg.Tracing.Enabled {
		stop, err := tracing.Init(cfg.Tracing.ServiceName, os.Stderr)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		a.stopTracing = stop
	}

	seg, err := vision.NewHSVSegmenter(cfg.SegmenterConfig())
	if err != nil {
		return fmt.Errorf("segmenter: %w", err)
	}
	a.segmenter = seg

	if cfg.Dashboard != "" {
		a.webServer = web.NewServer(cfg.Dashboard)
	}

	var dopts []robot.DispatcherOption
	if a.webServer != nil {
		dopts = append(dopts, robot.WithDeliveryObserver(a.reportDelivery))
	}
	sink := robot.NewHTTPSink(cfg.ActuatorURL, cfg.SendTimeout)
	a.dispatcher = robot.NewDispatcher(sink, cfg.SendTimeout, dopts...)

	a.logger.Info("opening camera", "stream", cfg.Stream)
	cam, err := vision.OpenCamera(cfg.Stream, cfg.CaptureOptions())
	if err != nil {
		return fmt.Errorf("camera: %w", err)
	}
	a.camera = cam

	var lopts []follower.Option
	if a.webServer != nil {
		a.webServer.DispatcherStats = a.dispatcher.Stats
		overlay := vision.NewOverlay(cfg.Vision.ROIFraction, a.webServer.SendCameraFrame, cfg.OverlayOptions())
		lopts = append(lopts, follower.WithRenderer(overlay), follower.WithStateUpdater(a.webServer))
	}
	a.loop = follower.NewLoop(cfg.LoopConfig(), cam, seg, a.dispatcher, lopts...)

	if cfg.Heartbeat != "" {
		hb, err := NewHeartbeat(cfg.Heartbeat, a.logger, a.report)
		if err != nil {
			return err
		}
		a.heartbeat = hb
	}
	return nil
}

// Run drives the control loop until ctx is cancelled, a dashboard quit
// request arrives, or the camera fails.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.dispatcher.Start()

	if a.webServer != nil {
		a.webServer.OnQuit = cancel
		a.webServer.StartAsync()
		a.webServer.AddLog("info", "run "+a.loop.RunID()+" started")
	}
	if a.heartbeat != nil {
		a.heartbeat.Start()
	}

	a.logger.Info("line follower running",
		"run_id", a.loop.RunID(),
		"actuator", a.config.ActuatorURL,
		"dashboard", a.config.Dashboard)

	return a.loop.Run(ctx)
}

// Shutdown releases everything Run did not already close.
func (a *App) Shutdown() {
	if a.heartbeat != nil {
		a.heartbeat.Stop()
	}
	if a.loop != nil {
		a.report()
	}
	if a.webServer != nil {
		if err := a.webServer.Shutdown(); err != nil {
			a.logger.Warn("dashboard shutdown", "error", err)
		}
	}
	if a.camera != nil {
		a.camera.Close()
	}
	if a.segmenter != nil {
		a.segmenter.Close()
	}
	if a.stopTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.stopTracing(ctx); err != nil {
			a.logger.Warn("trace flush", "error", err)
		}
	}
	a.logger.Info("goodbye")
}

// report logs run and delivery counters.
func (a *App) report() {
	ls := a.loop.Stats()
	ds := a.dispatcher.Stats()
	a.logger.Info("heartbeat",
		"run_id", ls.RunID,
		"state", ls.State,
		"frames", ls.Frames,
		"line_frames", ls.LineFrames,
		"fps", ls.FPS,
		"last_command", ls.LastCommand,
		"safety_stops", ls.SafetyStops,
		"delivered", ds.Delivered,
		"failed", ds.Failed,
		"pending", ds.Pending)
}

// reportDelivery mirrors actuator outcomes into the dashboard event log.
func (a *App) reportDelivery(d robot.Delivery) {
	if d.Err != nil {
		a.webServer.AddLog("error", fmt.Sprintf("%s failed after %s: %v", d.Command, d.Latency.Round(time.Millisecond), d.Err))
		return
	}
	a.webServer.AddLog("delivery", fmt.Sprintf("%s ok in %s", d.Command, d.Latency.Round(time.Millisecond)))
}
