package robot

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/teslashibe/go-linefollower/internal/httpc"
	"github.com/teslashibe/go-linefollower/internal/log"
	"github.com/teslashibe/go-linefollower/pkg/metrics"
	"github.com/teslashibe/go-linefollower/pkg/steering"
)

const tracerName = "github.com/teslashibe/go-linefollower/pkg/robot"

// Delivery describes one completed send attempt.
type Delivery struct {
	Command  steering.Command
	Response string
	Err      error
	Latency  time.Duration // Actuator round trip
	Waited   time.Duration // Time spent queued
}

// Stats are cumulative dispatcher counters.
type Stats struct {
	Enqueued      uint64           `json:"enqueued"`
	Delivered     uint64           `json:"delivered"`
	Failed        uint64           `json:"failed"`
	Pending       int              `json:"pending"`
	LastDelivered steering.Command `json:"last_delivered"`
	LastError     string           `json:"last_error,omitempty"`
	LastErrorTime time.Time        `json:"last_error_time,omitempty"`
}

// Dispatcher owns the pending command queue and its single delivery worker.
// Enqueue is safe to call from the control loop at frame rate; all network
// I/O happens on the worker goroutine.
type Dispatcher struct {
	sink    CommandSink
	queue   *Queue
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer

	onDelivery func(Delivery)

	running atomic.Bool
	started sync.Once
	done    chan struct{}

	mu    sync.Mutex
	stats Stats
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDeliveryObserver registers a callback run on the worker after each
// attempt. It must not block.
func WithDeliveryObserver(fn func(Delivery)) DispatcherOption {
	return func(d *Dispatcher) { d.onDelivery = fn }
}

// WithTracer overrides the global OpenTelemetry tracer.
func WithTracer(t trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

// NewDispatcher creates a dispatcher sending to sink. timeout bounds each
// delivery and is clamped to the actuator limit.
func NewDispatcher(sink CommandSink, timeout time.Duration, opts ...DispatcherOption) *Dispatcher {
	if timeout <= 0 || timeout > httpc.ActuatorTimeout {
		timeout = httpc.ActuatorTimeout
	}
	d := &Dispatcher{
		sink:    sink,
		queue:   NewQueue(),
		timeout: timeout,
		logger:  log.Component("dispatcher"),
		tracer:  otel.Tracer(tracerName),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Enqueue appends cmd for delivery. It never blocks.
func (d *Dispatcher) Enqueue(cmd steering.Command) error {
	if !cmd.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, string(cmd))
	}
	if err := d.queue.Push(cmd); err != nil {
		return err
	}

	d.mu.Lock()
	d.stats.Enqueued++
	d.mu.Unlock()
	metrics.QueueDepth.Set(float64(d.queue.Len()))
	return nil
}

// Close enqueues the termination sentinel. Commands enqueued before it are
// still delivered; later Enqueue calls fail with ErrDispatcherClosed.
func (d *Dispatcher) Close() error {
	return d.queue.PushSentinel()
}

// Start runs the worker on its own goroutine. Extra calls are no-ops.
func (d *Dispatcher) Start() {
	d.started.Do(func() {
		go d.Run()
	})
}

// Run is the delivery worker loop. It blocks until the sentinel is
// dequeued. Only one Run may be active.
func (d *Dispatcher) Run() {
	if !d.running.CompareAndSwap(false, true) {
		d.logger.Warn("delivery worker already running")
		return
	}
	defer close(d.done)

	d.logger.Info("delivery worker started", "timeout", d.timeout)
	for {
		env := d.queue.Pop()
		metrics.QueueDepth.Set(float64(d.queue.Len()))
		if env.sentinel {
			s := d.Stats()
			d.logger.Info("delivery worker stopped",
				"delivered", s.Delivered, "failed", s.Failed)
			return
		}
		d.deliver(env)
	}
}

// Wait blocks until the worker exits or timeout elapses.
// It reports whether the worker exited.
func (d *Dispatcher) Wait(timeout time.Duration) bool {
	select {
	case <-d.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done is closed when the worker exits.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Stats returns a copy of the counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	s := d.stats
	d.mu.Unlock()
	s.Pending = d.queue.Len()
	return s
}

// deliver sends one command. Failures are recorded and dropped; a stale
// steering command is worth less than the next one.
func (d *Dispatcher) deliver(env envelope) {
	cmd := env.cmd
	waited := time.Since(env.queuedAt)

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	ctx, span := d.tracer.Start(ctx, "robot.deliver",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("steering.command", string(cmd)),
			attribute.Int64("queue.wait_ms", waited.Milliseconds()),
		))
	defer span.End()

	start := time.Now()
	resp, err := d.sink.Send(ctx, cmd)
	latency := time.Since(start)
	metrics.DeliveryDuration.WithLabelValues(string(cmd)).Observe(latency.Seconds())

	d.mu.Lock()
	if err != nil {
		d.stats.Failed++
		d.stats.LastError = err.Error()
		d.stats.LastErrorTime = time.Now()
	} else {
		d.stats.Delivered++
		d.stats.LastDelivered = cmd
	}
	d.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		metrics.CommandDeliveries.WithLabelValues(string(cmd), "failed").Inc()
		d.logger.Warn("command delivery failed", "command", cmd, "latency", latency, "error", err)
	} else {
		metrics.CommandDeliveries.WithLabelValues(string(cmd), "ok").Inc()
		d.logger.Info("command delivered", "command", cmd, "latency", latency, "waited", waited, "response", resp)
	}

	if d.onDelivery != nil {
		d.onDelivery(Delivery{
			Command:  cmd,
			Response: resp,
			Err:      err,
			Latency:  latency,
			Waited:   waited,
		})
	}
}
