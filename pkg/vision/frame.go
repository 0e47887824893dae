// Package vision is the gocv backend for the line follower: camera capture,
// HSV line segmentation and the debug overlay.
package vision

import (
	"gocv.io/x/gocv"

	"github.com/teslashibe/go-linefollower/pkg/follower"
)

// Frame is a captured BGR image.
type Frame struct {
	Mat gocv.Mat
}

var _ follower.Frame = (*Frame)(nil)

// NewFrame takes ownership of mat.
func NewFrame(mat gocv.Mat) *Frame {
	return &Frame{Mat: mat}
}

// Size returns the frame width and height in pixels.
func (f *Frame) Size() (width, height int) {
	return f.Mat.Cols(), f.Mat.Rows()
}

// Close releases the underlying Mat.
func (f *Frame) Close() error {
	return f.Mat.Close()
}
