// Package web serves the line follower dashboard: live loop status, the
// command event log, the annotated camera feed and prometheus metrics.
package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-linefollower/internal/log"
	"github.com/teslashibe/go-linefollower/pkg/follower"
	"github.com/teslashibe/go-linefollower/pkg/hub"
	"github.com/teslashibe/go-linefollower/pkg/metrics"
	"github.com/teslashibe/go-linefollower/pkg/robot"
)

// maxEvents is how many event log entries are kept for new clients.
const maxEvents = 500

// Event is one entry of the dashboard event log.
type Event struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // command, safety, delivery, error, info
	Message string `json:"message"`
}

// Status is the body of GET /api/status and of /ws/status messages.
type Status struct {
	Loop       *follower.Snapshot `json:"loop,omitempty"`
	Dispatcher *robot.Stats       `json:"dispatcher,omitempty"`
}

// Server is the dashboard HTTP server.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	snap    follower.Snapshot
	hasSnap bool
	snapMu  sync.RWMutex

	events   []Event
	eventsMu sync.RWMutex

	statusHub *hub.Hub
	eventsHub *hub.Hub
	cameraHub *hub.Hub

	// DispatcherStats, when set, is included in status responses.
	DispatcherStats func() robot.Stats

	// OnQuit is called once when a client requests shutdown.
	OnQuit   func()
	quitOnce sync.Once
}

var _ follower.StateUpdater = (*Server)(nil)

// NewServer creates a dashboard listening on addr (e.g. ":8080").
func NewServer(addr string) *Server {
	s := &Server{
		addr:      addr,
		logger:    log.Component("web"),
		events:    make([]Event, 0, maxEvents),
		statusHub: hub.New("status"),
		eventsHub: hub.New("events"),
		cameraHub: hub.New("camera"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "Line Follower Dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/events", s.handleEvents)
	api.Post("/quit", s.handleQuit)

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))
	app.Get("/ws/events", websocket.New(s.handleEventsWS))
	app.Get("/ws/camera", websocket.New(s.handleCameraWS))

	s.app = app
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// StartHubs starts the websocket fan-out goroutines.
// Start calls it; it is exported for callers that serve the app themselves.
func (s *Server) StartHubs() {
	go s.statusHub.Run()
	go s.eventsHub.Run()
	go s.cameraHub.Run()
}

// Start runs the server until Shutdown.
func (s *Server) Start() error {
	s.StartHubs()
	s.logger.Info("dashboard listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// StartAsync runs Start on its own goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("dashboard stopped", "error", err)
		}
	}()
}

// Shutdown disconnects clients and stops the listener.
func (s *Server) Shutdown() error {
	s.statusHub.Stop()
	s.eventsHub.Stop()
	s.cameraHub.Stop()
	return s.app.ShutdownWithTimeout(2 * time.Second)
}

// UpdateStatus stores the latest loop snapshot and pushes it to clients.
func (s *Server) UpdateStatus(snap follower.Snapshot) {
	s.snapMu.Lock()
	s.snap = snap
	s.hasSnap = true
	s.snapMu.Unlock()

	if err := s.statusHub.BroadcastJSON(s.status()); err != nil {
		s.logger.Warn("status encode failed", "error", err)
	}
}

// AddLog appends an event and pushes it to clients.
func (s *Server) AddLog(logType, message string) {
	e := Event{
		Time:    time.Now().Format("15:04:05.000"),
		Type:    logType,
		Message: message,
	}

	s.eventsMu.Lock()
	if len(s.events) == maxEvents {
		copy(s.events, s.events[1:])
		s.events = s.events[:maxEvents-1]
	}
	s.events = append(s.events, e)
	s.eventsMu.Unlock()

	if err := s.eventsHub.BroadcastJSON(e); err != nil {
		s.logger.Warn("event encode failed", "error", err)
	}
}

// SendCameraFrame pushes an annotated JPEG to camera clients.
func (s *Server) SendCameraFrame(jpeg []byte) {
	if s.cameraHub.ClientCount() == 0 {
		return
	}
	s.cameraHub.BroadcastBinary(jpeg)
}

// Events returns a copy of the buffered event log.
func (s *Server) Events() []Event {
	s.eventsMu.RLock()
	defer s.eventsMu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Server) status() Status {
	var st Status
	s.snapMu.RLock()
	if s.hasSnap {
		snap := s.snap
		st.Loop = &snap
	}
	s.snapMu.RUnlock()

	if s.DispatcherStats != nil {
		ds := s.DispatcherStats()
		st.Dispatcher = &ds
	}
	return st
}

// requestQuit runs OnQuit at most once. It reports whether a handler exists.
func (s *Server) requestQuit() bool {
	if s.OnQuit == nil {
		return false
	}
	s.quitOnce.Do(func() {
		s.logger.Info("quit requested from dashboard")
		s.AddLog("info", "quit requested")
		s.OnQuit()
	})
	return true
}
