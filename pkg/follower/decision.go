package follower

import "github.com/teslashibe/go-linefollower/pkg/steering"

// Bands are the deviation thresholds, in pixels.
type Bands struct {
	DeadZone      int
	TurnThreshold int
}

// Decision is the classification of one smoothed position.
type Decision struct {
	Deviation int
	Maneuver  steering.Maneuver
	Command   steering.Command
}

// Classify maps the smoothed line position to a steering decision.
//
// The camera is mounted so that a line left of the reference column means
// the robot has drifted left of the line, hence negative deviation steers
// right. Bands are checked in order: dead zone, sharp, gentle.
func Classify(smoothedX, centerX int, b Bands) Decision {
	deviation := smoothedX - centerX
	abs := deviation
	if abs < 0 {
		abs = -abs
	}

	var m steering.Maneuver
	switch {
	case abs < b.DeadZone:
		m = steering.Straight
	case abs > b.TurnThreshold:
		if deviation < 0 {
			m = steering.SharpRight
		} else {
			m = steering.SharpLeft
		}
	default:
		if deviation < 0 {
			m = steering.GentleRight
		} else {
			m = steering.GentleLeft
		}
	}

	return Decision{
		Deviation: deviation,
		Maneuver:  m,
		Command:   m.Command(),
	}
}
