package follower

// Smoother averages the most recent line centroids.
// It only ever sees real detections; frames without a line are not fed in.
type Smoother struct {
	window  int
	history []Centroid
}

// NewSmoother creates a moving-average smoother over window observations.
func NewSmoother(window int) *Smoother {
	if window < 1 {
		window = 1
	}
	return &Smoother{
		window:  window,
		history: make([]Centroid, 0, window+1),
	}
}

// Observe records c and returns the truncated mean of the window.
func (s *Smoother) Observe(c Centroid) Centroid {
	s.history = append(s.history, c)
	if len(s.history) > s.window {
		copy(s.history, s.history[1:])
		s.history = s.history[:len(s.history)-1]
	}
	mean, _ := s.Mean()
	return mean
}

// Mean returns the current estimate, or false if nothing was observed.
func (s *Smoother) Mean() (Centroid, bool) {
	n := len(s.history)
	if n == 0 {
		return Centroid{}, false
	}
	var sumX, sumY int
	for _, p := range s.history {
		sumX += p.X
		sumY += p.Y
	}
	return Centroid{X: sumX / n, Y: sumY / n}, true
}

// Len returns the number of held observations.
func (s *Smoother) Len() int {
	return len(s.history)
}

// Reset drops all history.
func (s *Smoother) Reset() {
	s.history = s.history[:0]
}
