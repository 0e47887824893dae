// Package debug provides global verbose logging gates
package debug

import "github.com/teslashibe/go-linefollower/internal/log"

// Enabled controls whether debug logging is active
var Enabled bool

// Vision controls per-frame segmentation logs (blob area, centroid).
// Use --debug-vision to enable; it logs on every frame.
var Vision bool

// Log emits a debug-level message only if debug mode is enabled
func Log(msg string, args ...any) {
	if Enabled {
		log.Debug(msg, args...)
	}
}

// VisionLog emits a message only if vision debug mode is enabled
func VisionLog(msg string, args ...any) {
	if Vision {
		log.Info(msg, args...)
	}
}
