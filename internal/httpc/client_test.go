package httpc

import (
	"net/http"
	"testing"
	"time"
)

func TestNewClient_Timeouts(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    time.Duration
	}{
		{"default", 0, DefaultTimeout},
		{"explicit", 5 * time.Second, 5 * time.Second},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := NewClient(tc.timeout)
			if c.Timeout != tc.want {
				t.Errorf("Timeout = %v, want %v", c.Timeout, tc.want)
			}
		})
	}
}

func TestNewActuatorClient(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, ActuatorTimeout},
		{2 * time.Second, ActuatorTimeout},
		{250 * time.Millisecond, 250 * time.Millisecond},
	}
	for _, tc := range tests {
		c := NewActuatorClient(tc.in)
		if c.Timeout != tc.want {
			t.Errorf("NewActuatorClient(%v).Timeout = %v, want %v", tc.in, c.Timeout, tc.want)
		}
		tr, ok := c.Transport.(*http.Transport)
		if !ok {
			t.Fatal("transport is not *http.Transport")
		}
		if tr.MaxIdleConnsPerHost != 1 {
			t.Errorf("MaxIdleConnsPerHost = %d, want 1", tr.MaxIdleConnsPerHost)
		}
		if tr.TLSHandshakeTimeout > tc.want {
			t.Errorf("TLSHandshakeTimeout %v exceeds request timeout", tr.TLSHandshakeTimeout)
		}
	}
}
