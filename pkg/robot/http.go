package robot

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-linefollower/internal/httpc"
	"github.com/teslashibe/go-linefollower/pkg/steering"
)

// maxResponseBody caps how much of the actuator reply is kept for logs.
const maxResponseBody = 1024

// HTTPSink implements CommandSink against the motor controller's HTTP API:
// GET {BaseURL}/{command}.
type HTTPSink struct {
	BaseURL string
	client  *http.Client
}

// NewHTTPSink creates a sink for the actuator at baseURL
// (e.g. "http://172.20.10.7:80"). timeout is clamped to the actuator limit.
func NewHTTPSink(baseURL string, timeout time.Duration) *HTTPSink {
	return &HTTPSink{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  httpc.NewActuatorClient(timeout),
	}
}

// Send issues the command and returns the reply body.
func (s *HTTPSink) Send(ctx context.Context, cmd steering.Command) (string, error) {
	if !cmd.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, string(cmd))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"/"+string(cmd), nil)
	if err != nil {
		return "", fmt.Errorf("robot: build %s request: %w", cmd, err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("robot: %s request failed: %w", cmd, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	text := strings.TrimSpace(string(body))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return text, &StatusError{
			StatusCode: resp.StatusCode,
			Command:    cmd,
			Body:       text,
		}
	}

	return text, nil
}
