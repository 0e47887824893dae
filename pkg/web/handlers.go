package web

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-linefollower/pkg/hub"
)

// handleStatus returns the latest loop snapshot and dispatcher counters.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleEvents returns the buffered event log, oldest first.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	return c.JSON(s.Events())
}

// handleQuit asks the control loop to stop.
func (s *Server) handleQuit(c *fiber.Ctx) error {
	if !s.requestQuit() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "quit not configured",
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "stopping",
	})
}

// handleStatusWS sends the current status, then every update.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	var initial []hub.Message
	if data, err := json.Marshal(s.status()); err == nil {
		initial = append(initial, hub.NewJSONMessage(data))
	}
	hub.NewClient(s.statusHub, conn).Run(initial...)
}

// handleEventsWS replays the event buffer, then streams new events.
func (s *Server) handleEventsWS(conn *websocket.Conn) {
	events := s.Events()
	initial := make([]hub.Message, 0, len(events))
	for _, e := range events {
		if data, err := json.Marshal(e); err == nil {
			initial = append(initial, hub.NewJSONMessage(data))
		}
	}
	hub.NewClient(s.eventsHub, conn).Run(initial...)
}

// handleCameraWS streams overlay frames as binary messages.
func (s *Server) handleCameraWS(conn *websocket.Conn) {
	hub.NewClient(s.cameraHub, conn).Run()
}
