package vision

import (
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-linefollower/internal/log"
	"github.com/teslashibe/go-linefollower/pkg/follower"
)

// CaptureOptions are applied to the capture device after it opens.
// Zero values leave the backend default in place.
type CaptureOptions struct {
	Width      int
	Height     int
	BufferSize int // 1 keeps only the newest frame
}

// DefaultCaptureOptions returns 640x480 with a single-frame buffer.
func DefaultCaptureOptions() CaptureOptions {
	return CaptureOptions{Width: 640, Height: 480, BufferSize: 1}
}

// Camera is a FrameSource over a gocv VideoCapture: a device index
// ("0"), a file, or a network stream URL.
type Camera struct {
	uri    string
	cap    *gocv.VideoCapture
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

var _ follower.FrameSource = (*Camera)(nil)

// OpenCamera opens uri and applies opts.
func OpenCamera(uri string, opts CaptureOptions) (*Camera, error) {
	capture, err := gocv.OpenVideoCapture(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", follower.ErrConnection, uri, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("%w: %s did not open", follower.ErrConnection, uri)
	}

	if opts.BufferSize > 0 {
		capture.Set(gocv.VideoCaptureBufferSize, float64(opts.BufferSize))
	}
	if opts.Width > 0 {
		capture.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
	}
	if opts.Height > 0 {
		capture.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}

	logger := log.Component("camera").With("uri", uri)
	logger.Info("capture opened",
		"width", int(capture.Get(gocv.VideoCaptureFrameWidth)),
		"height", int(capture.Get(gocv.VideoCaptureFrameHeight)))

	return &Camera{uri: uri, cap: capture, logger: logger}, nil
}

// Read grabs the next frame. The caller owns the returned frame.
func (c *Camera) Read() (follower.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("%w: camera closed", follower.ErrCapture)
	}

	mat := gocv.NewMat()
	if ok := c.cap.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		return nil, fmt.Errorf("%w: no frame from %s", follower.ErrCapture, c.uri)
	}
	return NewFrame(mat), nil
}

// Close releases the capture device. It is safe to call more than once.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Info("capture released")
	return c.cap.Close()
}
