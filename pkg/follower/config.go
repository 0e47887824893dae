package follower

import "time"

// Config holds all tunable parameters for line following
type Config struct {
	// Decision bands (pixels of lateral deviation)
	DeadZone      int // Below this: keep going forward
	TurnThreshold int // Above this: sharp turn (display only)

	// Smoothing
	HistorySize int // Centroids averaged per estimate

	// Dispatch gating
	Cooldown        time.Duration // Minimum spacing between normal commands
	NoLineThreshold int           // Stop after more than this many lineless frames

	// Steering reference line as a fraction of frame width from the left
	ReferenceRatio float64

	// How long to wait for the delivery worker on exit
	ShutdownTimeout time.Duration
}

// DefaultConfig returns the tuning used on the track: wide bands and a long
// cooldown so a slow two-pin motor driver can keep up.
func DefaultConfig() Config {
	return Config{
		DeadZone:        40,
		TurnThreshold:   80,
		HistorySize:     5,
		Cooldown:        800 * time.Millisecond,
		NoLineThreshold: 10,
		ReferenceRatio:  0.25,
		ShutdownTimeout: time.Second,
	}
}

// ResponsiveConfig trades stability for reaction time on tight tracks.
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.DeadZone = 30
	cfg.TurnThreshold = 60
	cfg.HistorySize = 3
	cfg.Cooldown = 400 * time.Millisecond
	return cfg
}

// Bands returns the classification bands.
func (c Config) Bands() Bands {
	return Bands{DeadZone: c.DeadZone, TurnThreshold: c.TurnThreshold}
}

// ReferenceX returns the steering reference column for a frame width.
func (c Config) ReferenceX(width int) int {
	return int(float64(width) * c.ReferenceRatio)
}
