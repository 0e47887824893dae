// Package metrics exposes prometheus collectors for the follower pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linefollower"

var (
	// FramesTotal counts processed frames, split by whether a line was found.
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frames processed by the control loop.",
		},
		[]string{"line"}, // found / absent
	)

	// CommandsEnqueued counts commands handed to the dispatcher.
	CommandsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_enqueued_total",
			Help:      "Steering commands enqueued for delivery.",
		},
		[]string{"command", "trigger"}, // trigger: classify / safety / shutdown
	)

	// CommandDeliveries counts delivery attempts to the actuator.
	CommandDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "command_deliveries_total",
			Help:      "Steering command delivery attempts by outcome.",
		},
		[]string{"command", "status"}, // status: ok / failed
	)

	// DeliveryDuration observes actuator round trips.
	DeliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_delivery_seconds",
			Help:      "Actuator request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"command"},
	)

	// QueueDepth is the number of commands waiting for the delivery worker.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_commands",
		Help:      "Commands waiting in the dispatch queue.",
	})

	// LoopState mirrors follower.State (0 running, 1 no-line, 2 terminating).
	LoopState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "loop_state",
		Help:      "Control loop state: 0 running, 1 no-line, 2 terminating.",
	})

	// NoLineStreak is the current run of frames without a detected line.
	NoLineStreak = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "no_line_streak",
		Help:      "Consecutive frames without a detected line.",
	})

	// DashboardClients counts open websocket connections per hub.
	DashboardClients = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dashboard_clients",
			Help:      "Connected dashboard websocket clients.",
		},
		[]string{"hub"},
	)

	// DashboardDropped counts messages dropped for full buffers or slow clients.
	DashboardDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_dropped_total",
			Help:      "Dashboard messages dropped by reason.",
		},
		[]string{"hub", "reason"}, // reason: broadcast_full / slow_client
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
