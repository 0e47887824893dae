package vision

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-linefollower/internal/log"
	"github.com/teslashibe/go-linefollower/pkg/follower"
	"github.com/teslashibe/go-linefollower/pkg/steering"
)

// Overlay colors.
var (
	colorROI       = color.RGBA{0, 0, 255, 0}
	colorReference = color.RGBA{255, 0, 0, 0}
	colorDeadZone  = color.RGBA{255, 255, 0, 0}
	colorTurn      = color.RGBA{255, 100, 0, 0}
	colorCentroid  = color.RGBA{255, 0, 0, 0}
	colorStraight  = color.RGBA{0, 255, 0, 0}
	colorGentle    = color.RGBA{255, 165, 0, 0}
	colorSharp     = color.RGBA{255, 0, 0, 0}
	colorLabel     = color.RGBA{0, 200, 200, 0}
	colorFPS       = color.RGBA{0, 255, 0, 0}
	colorLast      = color.RGBA{0, 255, 255, 0}
)

// OverlayOptions control how annotated frames are published.
type OverlayOptions struct {
	Quality int // JPEG quality 1-100
	MaxFPS  int // 0 publishes every frame
}

// DefaultOverlayOptions returns quality 75 at up to 15 fps.
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{Quality: 75, MaxFPS: 15}
}

// Overlay draws the loop state onto each frame and hands the JPEG to a sink.
type Overlay struct {
	roiFraction float64
	opts        OverlayOptions
	sink        func(jpeg []byte)

	mu   sync.Mutex
	last time.Time
}

var _ follower.Renderer = (*Overlay)(nil)

// NewOverlay creates an overlay renderer. roiFraction must match the
// segmenter so the drawn ROI is the searched one.
func NewOverlay(roiFraction float64, sink func(jpeg []byte), opts OverlayOptions) *Overlay {
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultOverlayOptions().Quality
	}
	return &Overlay{roiFraction: roiFraction, opts: opts, sink: sink}
}

// Render annotates frame in place and publishes it.
func (o *Overlay) Render(frame follower.Frame, snap follower.Snapshot) {
	f, ok := frame.(*Frame)
	if !ok || f.Mat.Empty() || o.sink == nil {
		return
	}
	if !o.due(snap.Time) {
		return
	}

	roiTop := int(float64(snap.Height) * (1 - o.roiFraction))
	Annotate(&f.Mat, snap, roiTop)

	jpeg, err := EncodeJPEG(f.Mat, o.opts.Quality)
	if err != nil {
		log.Warn("overlay encode failed", "error", err)
		return
	}
	o.sink(jpeg)
}

func (o *Overlay) due(now time.Time) bool {
	if o.opts.MaxFPS <= 0 {
		return true
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.last.IsZero() && now.Sub(o.last) < time.Second/time.Duration(o.opts.MaxFPS) {
		return false
	}
	o.last = now
	return true
}

// Annotate draws the ROI, the reference and band lines, the centroid and
// the status text onto mat.
func Annotate(mat *gocv.Mat, snap follower.Snapshot, roiTop int) {
	w, h := snap.Width, snap.Height

	gocv.Rectangle(mat, image.Rect(0, roiTop, w, h), colorROI, 2)
	gocv.PutText(mat, "ROI", image.Pt(10, roiTop-10), gocv.FontHersheySimplex, 0.6, colorROI, 2)

	if snap.LineFound {
		gocv.Circle(mat, image.Pt(snap.Centroid.X, snap.Centroid.Y), 10, colorCentroid, -1)
	}
	if snap.State == follower.StateNoLine {
		gocv.PutText(mat, "LINE LOST!", image.Pt(w/2-100, h/2), gocv.FontHersheySimplex, 1, colorSharp, 2)
	}
	if snap.Classified {
		label, c := maneuverLabel(snap.Maneuver)
		gocv.PutText(mat, label, image.Pt(snap.Smoothed.X-50, snap.Centroid.Y-20), gocv.FontHersheySimplex, 0.8, c, 2)
	}

	ref := snap.ReferenceX
	gocv.Line(mat, image.Pt(ref, 0), image.Pt(ref, h), colorReference, 2)
	for _, dx := range []int{-snap.DeadZone, snap.DeadZone} {
		gocv.Line(mat, image.Pt(ref+dx, 0), image.Pt(ref+dx, h), colorDeadZone, 1)
	}
	for _, dx := range []int{-snap.TurnThreshold, snap.TurnThreshold} {
		gocv.Line(mat, image.Pt(ref+dx, 0), image.Pt(ref+dx, h), colorTurn, 1)
	}
	gocv.PutText(mat, fmt.Sprintf("Center: %dpx", ref), image.Pt(ref-70, 60), gocv.FontHersheySimplex, 0.6, colorLabel, 2)

	if snap.CooldownActive {
		gocv.PutText(mat, fmt.Sprintf("CD: %d%%", snap.CooldownPercent), image.Pt(w-120, 30), gocv.FontHersheySimplex, 0.6, colorDeadZone, 2)
	}
	gocv.PutText(mat, fmt.Sprintf("FPS: %d", snap.FPS), image.Pt(10, 30), gocv.FontHersheySimplex, 0.7, colorFPS, 2)
	if snap.LastCommand != steering.None {
		gocv.PutText(mat, "Last: "+snap.LastCommand.String(), image.Pt(10, h-10), gocv.FontHersheySimplex, 0.6, colorLast, 1)
	}
}

func maneuverLabel(m steering.Maneuver) (string, color.RGBA) {
	switch m {
	case steering.Straight:
		return "FORWARD", colorStraight
	case steering.SharpLeft:
		return "SHARP LEFT", colorSharp
	case steering.SharpRight:
		return "SHARP RIGHT", colorSharp
	case steering.GentleLeft:
		return "left", colorGentle
	case steering.GentleRight:
		return "right", colorGentle
	}
	return m.String(), colorSharp
}

// EncodeJPEG returns a copy of mat encoded as JPEG.
func EncodeJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("vision: encode jpeg: %w", err)
	}
	defer buf.Close()

	src := buf.GetBytes()
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}
