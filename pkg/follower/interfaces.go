// Package follower turns line detections into steering commands.
//
// The vision backend, the frame source and the command transport are all
// behind small interfaces so the control loop can be driven by fakes in
// tests and by gocv plus HTTP in production.
package follower

import (
	"errors"
	"time"

	"github.com/teslashibe/go-linefollower/pkg/steering"
)

// Sentinel errors for frame acquisition.
var (
	// ErrConnection is returned when a frame source cannot be opened.
	ErrConnection = errors.New("follower: frame source connection failed")

	// ErrCapture is returned when a frame cannot be read.
	ErrCapture = errors.New("follower: frame capture failed")
)

// Centroid is a point in full-frame pixel coordinates.
type Centroid struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Frame is a captured image. The loop only cares about its size; the
// segmenter that produced it knows the concrete type.
type Frame interface {
	Size() (width, height int)
	Close() error
}

// FrameSource yields frames until it fails.
type FrameSource interface {
	Read() (Frame, error)
	Close() error
}

// Segmenter locates the line in a frame.
// It returns false when no qualifying line is visible.
type Segmenter interface {
	Segment(frame Frame) (Centroid, bool)
}

// CommandQueue is the non-blocking hand-off to the delivery worker.
type CommandQueue interface {
	// Enqueue must return immediately.
	Enqueue(cmd steering.Command) error
	// Close enqueues the termination sentinel.
	Close() error
	// Wait blocks until the worker exits or timeout elapses.
	Wait(timeout time.Duration) bool
}

// Renderer draws a debug overlay for a processed frame.
type Renderer interface {
	Render(frame Frame, snap Snapshot)
}

// StateUpdater receives loop state for the dashboard.
type StateUpdater interface {
	UpdateStatus(snap Snapshot)
	AddLog(logType, message string)
}
