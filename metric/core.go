package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CoreMetrics contains the process-wide metrics every Matrix process
// exports regardless of which components it hosts.
type CoreMetrics struct {
	// Component lifecycle
	ComponentState *prometheus.GaugeVec // 0=Standby 1=Ready 2=Running

	// Keymaster RPC (recorded by both the client and the server)
	KeymasterRPCTotal    *prometheus.CounterVec
	KeymasterRPCErrors   *prometheus.CounterVec
	KeymasterRPCDuration *prometheus.HistogramVec

	// Keymaster publish fan-out (server side)
	KeymasterPublishTotal *prometheus.CounterVec

	// Transport
	TransportPublishTotal *prometheus.CounterVec
	TransportDropTotal    *prometheus.CounterVec

	// Cross-cutting
	ErrorsTotal *prometheus.CounterVec
}

// NewCoreMetrics creates the core metric collectors. They are not
// registered with any Prometheus registry until Registry.registerCore
// runs.
func NewCoreMetrics() *CoreMetrics {
	return &CoreMetrics{
		ComponentState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "matrix",
				Subsystem: "component",
				Name:      "state",
				Help:      "Component lifecycle state (0=Standby, 1=Ready, 2=Running)",
			},
			[]string{"component"},
		),

		KeymasterRPCTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "matrix",
				Subsystem: "keymaster",
				Name:      "rpc_total",
				Help:      "Total number of Keymaster RPCs issued",
			},
			[]string{"command"},
		),

		KeymasterRPCErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "matrix",
				Subsystem: "keymaster",
				Name:      "rpc_errors_total",
				Help:      "Total number of Keymaster RPCs that failed",
			},
			[]string{"command"},
		),

		KeymasterRPCDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "matrix",
				Subsystem: "keymaster",
				Name:      "rpc_duration_seconds",
				Help:      "Keymaster RPC round-trip latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"command"},
		),

		KeymasterPublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "matrix",
				Subsystem: "keymaster",
				Name:      "publish_total",
				Help:      "Total number of topic publications emitted by the state manager",
			},
			[]string{"topic"},
		),

		TransportPublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "matrix",
				Subsystem: "transport",
				Name:      "publish_total",
				Help:      "Total number of messages published on a transport",
			},
			[]string{"scheme"},
		),

		TransportDropTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "matrix",
				Subsystem: "transport",
				Name:      "drop_total",
				Help:      "Total number of messages dropped by a lossy transport",
			},
			[]string{"scheme"},
		),

		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "matrix",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of classified errors observed, by class",
			},
			[]string{"component", "class"},
		),
	}
}

// RecordComponentState updates the lifecycle state gauge for a component.
func (c *CoreMetrics) RecordComponentState(component string, state int) {
	c.ComponentState.WithLabelValues(component).Set(float64(state))
}

// RecordKeymasterRPC records one RPC attempt, its outcome, and its latency.
func (c *CoreMetrics) RecordKeymasterRPC(command string, err error, duration time.Duration) {
	c.KeymasterRPCTotal.WithLabelValues(command).Inc()
	if err != nil {
		c.KeymasterRPCErrors.WithLabelValues(command).Inc()
	}
	c.KeymasterRPCDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordKeymasterPublish increments the publish counter for a topic.
func (c *CoreMetrics) RecordKeymasterPublish(topic string) {
	c.KeymasterPublishTotal.WithLabelValues(topic).Inc()
}

// RecordTransportPublish increments the publish counter for a transport scheme.
func (c *CoreMetrics) RecordTransportPublish(scheme string) {
	c.TransportPublishTotal.WithLabelValues(scheme).Inc()
}

// RecordTransportDrop increments the drop counter for a transport scheme.
func (c *CoreMetrics) RecordTransportDrop(scheme string) {
	c.TransportDropTotal.WithLabelValues(scheme).Inc()
}

// RecordError increments the classified-error counter.
func (c *CoreMetrics) RecordError(component, class string) {
	c.ErrorsTotal.WithLabelValues(component, class).Inc()
}
