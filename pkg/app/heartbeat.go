package app

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Heartbeat runs a periodic status report on a cron schedule.
type Heartbeat struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// NewHeartbeat schedules report. schedule is a standard cron spec or a
// descriptor such as "@every 5s".
func NewHeartbeat(schedule string, logger *slog.Logger, report func()) (*Heartbeat, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, report); err != nil {
		return nil, fmt.Errorf("heartbeat schedule %q: %w", schedule, err)
	}
	return &Heartbeat{cron: c, logger: logger.With("component", "heartbeat")}, nil
}

// Start begins firing in the background.
func (h *Heartbeat) Start() {
	h.cron.Start()
	h.logger.Debug("heartbeat started")
}

// Stop prevents new reports and waits for a running one to finish.
func (h *Heartbeat) Stop() {
	<-h.cron.Stop().Done()
	h.logger.Debug("heartbeat stopped")
}
