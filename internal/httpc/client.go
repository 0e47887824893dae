// Package httpc provides HTTP clients with bounded timeouts.
// Never use http.DefaultClient against the actuator: it has no timeout.
package httpc

import (
	"net"
	"net/http"
	"time"
)

// Default timeouts for HTTP operations.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConnectTimeout  = 10 * time.Second
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second

	// ActuatorTimeout bounds one steering request end to end.
	ActuatorTimeout = 500 * time.Millisecond
)

// NewClient creates an HTTP client whose whole request, including dialing,
// is bounded by timeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	connect := DefaultConnectTimeout
	if timeout < connect {
		connect = timeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   connect,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:          16,
			MaxIdleConnsPerHost:   2,
			IdleConnTimeout:       DefaultIdleConnTimeout,
			TLSHandshakeTimeout:   connect,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// NewActuatorClient returns a client for the steering link. The link is
// serial on the robot side so one idle connection is plenty.
func NewActuatorClient(timeout time.Duration) *http.Client {
	if timeout <= 0 || timeout > ActuatorTimeout {
		timeout = ActuatorTimeout
	}
	c := NewClient(timeout)
	if t, ok := c.Transport.(*http.Transport); ok {
		t.MaxIdleConnsPerHost = 1
	}
	return c
}
