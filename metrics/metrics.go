// Package metrics exposes Prometheus instrumentation for a Retransmitter.
// It is mounted optionally through retransmitter.Config.Metrics: the
// retransmitter package updates these collectors directly when that
// field is set and skips them when it is nil. This package imports
// nothing from the engine and never takes part in protocol decisions.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors for one Retransmitter instance.
// Register it with a prometheus.Registerer of the caller's choosing.
type Metrics struct {
	PendingAckDepth   prometheus.Gauge
	PendingAckBytes   prometheus.Gauge
	AcksSentByTrigger *prometheus.CounterVec
	CloseTimeouts     prometheus.Counter
	ReconnectAttempts prometheus.Counter
	ReconnectFailures prometheus.Counter
	FramesSent        *prometheus.CounterVec
	FramesReceived    *prometheus.CounterVec
}

// New builds a Metrics instance labeled by peerID, so one process running
// Retransmitters against several peers can tell them apart in one
// registry.
func New(peerID string) *Metrics {
	constLabels := prometheus.Labels{"peer_id": peerID}
	return &Metrics{
		PendingAckDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "retransmit",
			Name:        "pending_ack_depth",
			Help:        "Number of buffer slots awaiting acknowledgement.",
			ConstLabels: constLabels,
		}),
		PendingAckBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "retransmit",
			Name:        "pending_ack_bytes",
			Help:        "Total payload bytes awaiting acknowledgement.",
			ConstLabels: constLabels,
		}),
		AcksSentByTrigger: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "retransmit",
			Name:        "acks_sent_total",
			Help:        "DATA_ACK frames sent, labeled by the condition that triggered them.",
			ConstLabels: constLabels,
		}, []string{"trigger"}),
		CloseTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "retransmit",
			Name:        "close_timeouts_total",
			Help:        "Times the close timer fired before a CLOSE_ACK arrived.",
			ConstLabels: constLabels,
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "retransmit",
			Name:        "reconnect_attempts_total",
			Help:        "Dial attempts made while the transport slot was empty.",
			ConstLabels: constLabels,
		}),
		ReconnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "retransmit",
			Name:        "reconnect_failures_total",
			Help:        "Dial attempts that did not reach OPEN.",
			ConstLabels: constLabels,
		}),
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "retransmit",
			Name:        "frames_sent_total",
			Help:        "Frames sent, labeled by tag.",
			ConstLabels: constLabels,
		}, []string{"tag"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "retransmit",
			Name:        "frames_received_total",
			Help:        "Frames received, labeled by tag.",
			ConstLabels: constLabels,
		}, []string{"tag"}),
	}
}

// MustRegister registers every collector in m with reg, panicking on
// failure (duplicate registration is a startup-time bug, not a runtime
// condition to recover from).
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.PendingAckDepth,
		m.PendingAckBytes,
		m.AcksSentByTrigger,
		m.CloseTimeouts,
		m.ReconnectAttempts,
		m.ReconnectFailures,
		m.FramesSent,
		m.FramesReceived,
	)
}
