package follower

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-linefollower/pkg/steering"
)

// State is the control loop mode.
type State int

const (
	StateRunning State = iota
	StateNoLine
	StateTerminating
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateNoLine:
		return "no-line"
	case StateTerminating:
		return "terminating"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText renders the state by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, v := range []State{StateRunning, StateNoLine, StateTerminating} {
		if v.String() == string(text) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("follower: unknown state %q", text)
}

// Snapshot is the loop's view of one processed frame.
// It is a value; receivers may keep it.
type Snapshot struct {
	RunID string    `json:"run_id"`
	Frame uint64    `json:"frame"`
	Time  time.Time `json:"time"`
	State State     `json:"state"`

	Width         int `json:"width"`
	Height        int `json:"height"`
	ReferenceX    int `json:"reference_x"`
	DeadZone      int `json:"dead_zone"`
	TurnThreshold int `json:"turn_threshold"`

	LineFound    bool     `json:"line_found"`
	Centroid     Centroid `json:"centroid"`
	HasSmoothed  bool     `json:"has_smoothed"`
	Smoothed     Centroid `json:"smoothed"`
	NoLineStreak int      `json:"no_line_streak"`

	// Classified is set when the decision engine ran this frame.
	Classified bool              `json:"classified"`
	Deviation  int               `json:"deviation"`
	Maneuver   steering.Maneuver `json:"maneuver"`

	LastCommand steering.Command `json:"last_command"`
	// Dispatched is the command enqueued on this frame, if any.
	Dispatched steering.Command `json:"dispatched,omitempty"`

	CooldownActive  bool `json:"cooldown_active"`
	CooldownPercent int  `json:"cooldown_percent"`
	FPS             int  `json:"fps"`
}

// Stats summarizes a run for heartbeats.
type Stats struct {
	RunID        string
	State        State
	Frames       uint64
	LineFrames   uint64
	Enqueued     uint64
	SafetyStops  uint64
	LastCommand  steering.Command
	NoLineStreak int
	FPS          int
}
