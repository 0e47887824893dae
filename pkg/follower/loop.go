package follower

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-linefollower/internal/log"
	"github.com/teslashibe/go-linefollower/pkg/debug"
	"github.com/teslashibe/go-linefollower/pkg/metrics"
	"github.com/teslashibe/go-linefollower/pkg/steering"
)

// Enqueue triggers, used as metric labels.
const (
	triggerClassify = "classify"
	triggerSafety   = "safety"
	triggerShutdown = "shutdown"
)

// Loop is the per-frame orchestrator: read, segment, smooth, decide,
// dispatch, render. It never performs network I/O itself.
//
// A Loop is single-use: Step and Run must be called from one goroutine.
// Stats may be called from anywhere.
type Loop struct {
	config    Config
	source    FrameSource
	segmenter Segmenter
	queue     CommandQueue
	renderer  Renderer
	state     StateUpdater
	now       func() time.Time
	logger    *slog.Logger
	runID     string

	smoother *Smoother

	// Dispatcher state
	mode         State
	lastCommand  steering.Command
	lastDispatch time.Time
	noLineStreak int

	// Counters
	frames      uint64
	lineFrames  uint64
	enqueued    uint64
	safetyStops uint64

	fpsWindow  time.Time
	fpsCounter int
	fps        int

	statsMu sync.Mutex
	stats   Stats
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock replaces time.Now, for tests and replay.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// WithRenderer attaches an overlay renderer.
func WithRenderer(r Renderer) Option {
	return func(l *Loop) { l.renderer = r }
}

// WithStateUpdater attaches a dashboard.
func WithStateUpdater(s StateUpdater) Option {
	return func(l *Loop) { l.state = s }
}

// WithRunID overrides the generated run id.
func WithRunID(id string) Option {
	return func(l *Loop) { l.runID = id }
}

// NewLoop wires a control loop. The cooldown clock starts now, so the first
// normal command is issued no earlier than one cooldown after construction.
func NewLoop(config Config, source FrameSource, segmenter Segmenter, queue CommandQueue, opts ...Option) *Loop {
	l := &Loop{
		config:    config,
		source:    source,
		segmenter: segmenter,
		queue:     queue,
		now:       time.Now,
		smoother:  NewSmoother(config.HistorySize),
		mode:      StateRunning,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.runID == "" {
		l.runID = uuid.NewString()
	}
	l.logger = log.Component("follower").With("run_id", l.runID)

	start := l.now()
	l.lastDispatch = start
	l.fpsWindow = start
	l.publishStats()
	return l
}

// RunID identifies this run in logs and on the dashboard.
func (l *Loop) RunID() string {
	return l.runID
}

// Stats returns a copy of the run counters.
func (l *Loop) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// Run steps until ctx is cancelled or the frame source fails, then runs the
// termination sequence. Cancellation returns nil; capture failure returns
// the error.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("control loop started",
		"dead_zone", l.config.DeadZone,
		"turn_threshold", l.config.TurnThreshold,
		"history", l.config.HistorySize,
		"cooldown", l.config.Cooldown,
		"reference_ratio", l.config.ReferenceRatio)
	defer l.shutdown()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("quit signal received")
			return nil
		default:
		}

		if _, err := l.Step(); err != nil {
			l.logger.Error("frame source failed", "error", err)
			return err
		}
	}
}

// Step processes exactly one frame.
func (l *Loop) Step() (Snapshot, error) {
	frame, err := l.source.Read()
	if err != nil {
		l.setMode(StateTerminating)
		l.publishStats()
		if errors.Is(err, ErrCapture) {
			return Snapshot{}, err
		}
		return Snapshot{}, fmt.Errorf("%w: %w", ErrCapture, err)
	}
	defer frame.Close()

	now := l.now()
	l.frames++
	l.tickFPS(now)

	width, height := frame.Size()
	centerX := l.config.ReferenceX(width)

	snap := Snapshot{
		RunID:         l.runID,
		Frame:         l.frames,
		Time:          now,
		Width:         width,
		Height:        height,
		ReferenceX:    centerX,
		DeadZone:      l.config.DeadZone,
		TurnThreshold: l.config.TurnThreshold,
	}

	centroid, found := l.segmenter.Segment(frame)
	if found {
		l.noLineStreak = 0
		l.lineFrames++
		snap.LineFound = true
		snap.Centroid = centroid
		snap.Smoothed = l.smoother.Observe(centroid)
		snap.HasSmoothed = true
		metrics.FramesTotal.WithLabelValues("found").Inc()
	} else {
		l.noLineStreak++
		metrics.FramesTotal.WithLabelValues("absent").Inc()
	}

	elapsed := now.Sub(l.lastDispatch)
	cooldownActive := elapsed <= l.config.Cooldown

	switch {
	case l.noLineStreak > l.config.NoLineThreshold:
		if l.mode != StateNoLine {
			l.logger.Warn("line lost", "streak", l.noLineStreak)
		}
		l.setMode(StateNoLine)
		snap.Maneuver = steering.LineLost
		if l.lastCommand != steering.Stop {
			if l.dispatch(steering.Stop, now, triggerSafety) {
				l.safetyStops++
				snap.Dispatched = steering.Stop
			}
		}

	case !cooldownActive && found:
		l.setMode(StateRunning)
		d := Classify(snap.Smoothed.X, centerX, l.config.Bands())
		snap.Classified = true
		snap.Deviation = d.Deviation
		snap.Maneuver = d.Maneuver
		debug.Log("classified", "smoothed_x", snap.Smoothed.X, "deviation", d.Deviation, "maneuver", d.Maneuver)
		if d.Command != l.lastCommand {
			if l.dispatch(d.Command, now, triggerClassify) {
				snap.Dispatched = d.Command
			}
		}
	}

	snap.State = l.mode
	snap.NoLineStreak = l.noLineStreak
	snap.LastCommand = l.lastCommand
	snap.FPS = l.fps
	if cooldownActive && l.config.Cooldown > 0 {
		snap.CooldownActive = true
		snap.CooldownPercent = min(100, int(elapsed*100/l.config.Cooldown))
	}
	metrics.NoLineStreak.Set(float64(l.noLineStreak))

	if l.renderer != nil {
		l.renderer.Render(frame, snap)
	}
	if l.state != nil {
		l.state.UpdateStatus(snap)
	}
	l.publishStats()

	return snap, nil
}

// dispatch hands cmd to the queue and records it as sent.
func (l *Loop) dispatch(cmd steering.Command, now time.Time, trigger string) bool {
	if err := l.queue.Enqueue(cmd); err != nil {
		l.logger.Warn("enqueue failed", "command", cmd, "error", err)
		return false
	}
	l.lastCommand = cmd
	l.lastDispatch = now
	l.enqueued++
	metrics.CommandsEnqueued.WithLabelValues(string(cmd), trigger).Inc()

	l.logger.Info("command enqueued", "command", cmd, "trigger", trigger, "frame", l.frames)
	if l.state != nil {
		l.state.AddLog("command", fmt.Sprintf("%s (%s)", cmd, trigger))
	}
	return true
}

// shutdown sends a final stop, terminates the worker, and releases the
// frame source. The worker wait is bounded.
func (l *Loop) shutdown() {
	l.setMode(StateTerminating)

	if err := l.queue.Enqueue(steering.Stop); err != nil {
		l.logger.Warn("final stop not enqueued", "error", err)
	} else {
		l.lastCommand = steering.Stop
		l.enqueued++
		metrics.CommandsEnqueued.WithLabelValues(string(steering.Stop), triggerShutdown).Inc()
	}
	if err := l.queue.Close(); err != nil {
		l.logger.Warn("dispatcher close failed", "error", err)
	}
	if err := l.source.Close(); err != nil {
		l.logger.Warn("frame source close failed", "error", err)
	}
	if !l.queue.Wait(l.config.ShutdownTimeout) {
		l.logger.Warn("delivery worker did not exit in time", "timeout", l.config.ShutdownTimeout)
	}

	l.publishStats()
	if l.state != nil {
		l.state.UpdateStatus(Snapshot{
			RunID:        l.runID,
			Frame:        l.frames,
			Time:         l.now(),
			State:        StateTerminating,
			LastCommand:  l.lastCommand,
			NoLineStreak: l.noLineStreak,
		})
		l.state.AddLog("info", "control loop stopped")
	}
	l.logger.Info("control loop stopped", "frames", l.frames, "enqueued", l.enqueued, "safety_stops", l.safetyStops)
}

func (l *Loop) setMode(s State) {
	l.mode = s
	metrics.LoopState.Set(float64(s))
}

func (l *Loop) tickFPS(now time.Time) {
	l.fpsCounter++
	if now.Sub(l.fpsWindow) >= time.Second {
		l.fps = l.fpsCounter
		l.fpsCounter = 0
		l.fpsWindow = now
	}
}

func (l *Loop) publishStats() {
	l.statsMu.Lock()
	l.stats = Stats{
		RunID:        l.runID,
		State:        l.mode,
		Frames:       l.frames,
		LineFrames:   l.lineFrames,
		Enqueued:     l.enqueued,
		SafetyStops:  l.safetyStops,
		LastCommand:  l.lastCommand,
		NoLineStreak: l.noLineStreak,
		FPS:          l.fps,
	}
	l.statsMu.Unlock()
}
