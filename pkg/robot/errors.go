package robot

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-linefollower/pkg/steering"
)

// Sentinel errors for common error conditions.
var (
	// ErrDispatcherClosed is returned when enqueueing after Close.
	ErrDispatcherClosed = errors.New("robot: dispatcher closed")

	// ErrUnknownCommand is returned for tokens outside the alphabet.
	ErrUnknownCommand = steering.ErrUnknownCommand
)

// StatusError is a non-2xx reply from the actuator.
type StatusError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Command is the command that was rejected.
	Command steering.Command

	// Body is the start of the response body.
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("robot: %s rejected with status %d: %s", e.Command, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("robot: %s rejected with status %d", e.Command, e.StatusCode)
}

// IsServerError returns true for 5xx replies.
func (e *StatusError) IsServerError() bool {
	return e.StatusCode >= 500
}
