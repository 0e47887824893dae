// Package robot delivers steering commands to the line follower's motor
// controller.
//
// Delivery is decoupled from the vision loop: the loop enqueues commands on
// a Dispatcher without blocking, and a single worker sends them one at a
// time to a CommandSink. The motor link is serial, so there is never more
// than one request in flight.
package robot

import (
	"context"

	"github.com/teslashibe/go-linefollower/pkg/follower"
	"github.com/teslashibe/go-linefollower/pkg/steering"
)

// CommandSink sends one command to the actuator.
// It returns the actuator's response text on success.
type CommandSink interface {
	Send(ctx context.Context, cmd steering.Command) (string, error)
}

// Ensure implementations satisfy the interfaces they are wired into.
var (
	_ CommandSink           = (*HTTPSink)(nil)
	_ follower.CommandQueue = (*Dispatcher)(nil)
)
