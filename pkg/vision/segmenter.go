package vision

import (
	"fmt"
	"image"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-linefollower/pkg/debug"
	"github.com/teslashibe/go-linefollower/pkg/follower"
)

// SegmenterConfig holds the line segmentation thresholds.
type SegmenterConfig struct {
	LowerHSV    [3]float64 // OpenCV ranges: H 0-180, S 0-255, V 0-255
	UpperHSV    [3]float64
	MinArea     float64 // Smaller blobs are treated as noise (px²)
	KernelSize  int     // Square morphology kernel side
	ROIFraction float64 // Bottom share of the frame that is searched
}

// DefaultSegmenterConfig returns thresholds for a dark line on a light floor.
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		LowerHSV:    [3]float64{0, 0, 0},
		UpperHSV:    [3]float64{180, 255, 50},
		MinArea:     500,
		KernelSize:  5,
		ROIFraction: 0.5,
	}
}

// Validate checks the thresholds are usable.
func (c SegmenterConfig) Validate() error {
	for i := range c.LowerHSV {
		if c.LowerHSV[i] > c.UpperHSV[i] {
			return fmt.Errorf("vision: hsv channel %d lower %.0f above upper %.0f", i, c.LowerHSV[i], c.UpperHSV[i])
		}
	}
	if c.KernelSize < 1 {
		return fmt.Errorf("vision: kernel size %d must be positive", c.KernelSize)
	}
	if c.ROIFraction <= 0 || c.ROIFraction > 1 {
		return fmt.Errorf("vision: roi fraction %.2f out of (0,1]", c.ROIFraction)
	}
	if c.MinArea < 0 {
		return fmt.Errorf("vision: min area %.0f is negative", c.MinArea)
	}
	return nil
}

// HSVSegmenter finds the line as the largest blob inside an HSV range in the
// lower part of the frame.
type HSVSegmenter struct {
	cfg    SegmenterConfig
	lower  gocv.Scalar
	upper  gocv.Scalar
	kernel gocv.Mat
	mu     sync.Mutex
}

var _ follower.Segmenter = (*HSVSegmenter)(nil)

// NewHSVSegmenter creates a segmenter. Call Close to free the kernel.
func NewHSVSegmenter(cfg SegmenterConfig) (*HSVSegmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &HSVSegmenter{
		cfg:    cfg,
		lower:  gocv.NewScalar(cfg.LowerHSV[0], cfg.LowerHSV[1], cfg.LowerHSV[2], 0),
		upper:  gocv.NewScalar(cfg.UpperHSV[0], cfg.UpperHSV[1], cfg.UpperHSV[2], 0),
		kernel: gocv.GetStructuringElement(gocv.MorphRect, image.Pt(cfg.KernelSize, cfg.KernelSize)),
	}, nil
}

// Config returns the active thresholds.
func (s *HSVSegmenter) Config() SegmenterConfig {
	return s.cfg
}

// ROITop returns the first frame row searched for a frame of the given height.
func (s *HSVSegmenter) ROITop(height int) int {
	return int(float64(height) * (1 - s.cfg.ROIFraction))
}

// Segment returns the line centroid in full-frame coordinates.
func (s *HSVSegmenter) Segment(frame follower.Frame) (follower.Centroid, bool) {
	f, ok := frame.(*Frame)
	if !ok || f.Mat.Empty() {
		return follower.Centroid{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, h := f.Size()
	top := s.ROITop(h)
	if top >= h {
		return follower.Centroid{}, false
	}
	roi := f.Mat.Region(image.Rect(0, top, w, h))
	defer roi.Close()

	c, area, ok := s.locate(roi)
	if !ok {
		debug.VisionLog("no line blob", "area", area)
		return follower.Centroid{}, false
	}
	c.Y += top

	debug.VisionLog("line blob", "area", area, "x", c.X, "y", c.Y)
	return c, true
}

// locate returns the centroid of the largest qualifying blob in roi
// coordinates, plus its contour area.
func (s *HSVSegmenter) locate(roi gocv.Mat) (follower.Centroid, float64, bool) {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(roi, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, s.lower, s.upper, &mask)

	// Open removes speckle, close fills small gaps in the line.
	gocv.MorphologyEx(mask, &mask, gocv.MorphOpen, s.kernel)
	gocv.MorphologyEx(mask, &mask, gocv.MorphClose, s.kernel)

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	best, bestArea := -1, 0.0
	for i := 0; i < contours.Size(); i++ {
		if a := gocv.ContourArea(contours.At(i)); best < 0 || a > bestArea {
			best, bestArea = i, a
		}
	}
	if best < 0 || bestArea < s.cfg.MinArea {
		return follower.Centroid{}, bestArea, false
	}

	// Rasterize the chosen contour so moments cover its filled interior.
	blob := gocv.Zeros(mask.Rows(), mask.Cols(), gocv.MatTypeCV8U)
	defer blob.Close()
	gocv.DrawContours(&blob, contours, best, color.RGBA{255, 255, 255, 0}, -1)

	m := gocv.Moments(blob, true)
	if m["m00"] == 0 {
		return follower.Centroid{}, bestArea, false
	}
	return follower.Centroid{
		X: int(m["m10"] / m["m00"]),
		Y: int(m["m01"] / m["m00"]),
	}, bestArea, true
}

// Close releases the morphology kernel.
func (s *HSVSegmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kernel.Close()
}
