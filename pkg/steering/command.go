// Package steering defines the discrete command alphabet understood by the
// actuator and the display-only maneuvers that map onto it.
package steering

import (
	"errors"
	"fmt"
	"strings"
)

// Command is a steering token sent verbatim as the actuator URL path.
type Command string

// The complete command alphabet.
const (
	Forward Command = "forward"
	Left    Command = "left"
	Right   Command = "right"
	Stop    Command = "stop"
)

// None is the zero Command: nothing has been sent yet.
const None Command = ""

// ErrUnknownCommand is returned when a token is outside the alphabet.
var ErrUnknownCommand = errors.New("steering: unknown command")

// All returns the alphabet in a stable order.
func All() []Command {
	return []Command{Forward, Left, Right, Stop}
}

// Valid reports whether c belongs to the alphabet.
func (c Command) Valid() bool {
	switch c {
	case Forward, Left, Right, Stop:
		return true
	}
	return false
}

func (c Command) String() string {
	if c == None {
		return "none"
	}
	return string(c)
}

// Parse converts a token (case-insensitive) into a Command.
func Parse(s string) (Command, error) {
	c := Command(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return None, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
	return c, nil
}

// Maneuver is what the robot is doing, at display granularity.
// Sharp and gentle turns share a Command; only the overlay tells them apart.
type Maneuver int

const (
	Straight Maneuver = iota
	GentleLeft
	GentleRight
	SharpLeft
	SharpRight
	LineLost
)

var maneuverNames = [...]string{
	Straight:    "straight",
	GentleLeft:  "gentle-left",
	GentleRight: "gentle-right",
	SharpLeft:   "sharp-left",
	SharpRight:  "sharp-right",
	LineLost:    "line-lost",
}

func (m Maneuver) String() string {
	if m < 0 || int(m) >= len(maneuverNames) {
		return fmt.Sprintf("maneuver(%d)", int(m))
	}
	return maneuverNames[m]
}

// Command returns the network command that executes the maneuver.
func (m Maneuver) Command() Command {
	switch m {
	case Straight:
		return Forward
	case GentleLeft, SharpLeft:
		return Left
	case GentleRight, SharpRight:
		return Right
	default:
		return Stop
	}
}

// Sharp reports whether the maneuver is a hard turn.
func (m Maneuver) Sharp() bool {
	return m == SharpLeft || m == SharpRight
}

// MarshalText lets maneuvers appear by name in JSON status payloads.
func (m Maneuver) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText parses a maneuver name.
func (m *Maneuver) UnmarshalText(text []byte) error {
	for i, name := range maneuverNames {
		if name == string(text) {
			*m = Maneuver(i)
			return nil
		}
	}
	return fmt.Errorf("steering: unknown maneuver %q", text)
}
