// Actuator simulator: stands in for the motor controller on the bench.
// It accepts GET /{command} for the steering alphabet, optionally adding
// latency and random failures, and reports what it received on /status.
package main

import (
	"flag"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-linefollower/internal/log"
	"github.com/teslashibe/go-linefollower/pkg/steering"
)

func main() {
	addr := flag.String("addr", ":8081", "Listen address")
	latency := flag.Duration("latency", 0, "Delay before answering each command")
	failRate := flag.Float64("fail-rate", 0, "Fraction of commands answered with 503 (0-1)")
	level := flag.String("log-level", "info", "Log level")
	flag.Parse()

	log.Init(*level)
	sim := newSimulator(*latency, *failRate, rand.Float64)

	log.Info("actuator simulator listening", "addr", *addr, "latency", *latency, "fail_rate", *failRate)
	if err := newApp(sim).Listen(*addr); err != nil {
		log.Error("simulator stopped", "error", err)
		os.Exit(1)
	}
}

// simulator records commands like the real controller would apply them.
type simulator struct {
	latency  time.Duration
	failRate float64
	roll     func() float64

	mu       sync.Mutex
	counts   map[steering.Command]int
	rejected int
	last     steering.Command
}

func newSimulator(latency time.Duration, failRate float64, roll func() float64) *simulator {
	return &simulator{
		latency:  latency,
		failRate: failRate,
		roll:     roll,
		counts:   make(map[steering.Command]int),
	}
}

type simStatus struct {
	Motion   steering.Command         `json:"motion"`
	Counts   map[steering.Command]int `json:"counts"`
	Rejected int                      `json:"rejected"`
}

func newApp(sim *simulator) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Actuator Simulator",
		DisableStartupMessage: true,
	})
	app.Get("/status", sim.handleStatus)
	app.Get("/:command", sim.handleCommand)
	return app
}

func (s *simulator) handleCommand(c *fiber.Ctx) error {
	cmd, err := steering.Parse(c.Params("command"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).SendString("unknown command")
	}

	if s.latency > 0 {
		time.Sleep(s.latency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failRate > 0 && s.roll() < s.failRate {
		s.rejected++
		log.Warn("command rejected", "command", cmd)
		return c.Status(fiber.StatusServiceUnavailable).SendString("motor busy")
	}

	s.counts[cmd]++
	s.last = cmd
	log.Info("command applied", "command", cmd)
	return c.SendString("OK " + string(cmd))
}

func (s *simulator) handleStatus(c *fiber.Ctx) error {
	s.mu.Lock()
	st := simStatus{Motion: s.last, Counts: make(map[steering.Command]int, len(s.counts)), Rejected: s.rejected}
	for k, v := range s.counts {
		st.Counts[k] = v
	}
	s.mu.Unlock()
	return c.JSON(st)
}
