// Package metrics provides a quicmux.Tracer collecting Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/quicmux/quicmux"
)

const metricNamespace = "quicmux"

var (
	packetsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "received_packets_dropped_total",
			Help:      "Received packets dropped",
		},
		[]string{"reason"},
	)
	flushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "flushes_total",
			Help:      "Physical flushes of the transport",
		},
		[]string{"trigger"},
	)
	flushedPackets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Name:      "flushed_packets_total",
			Help:      "Packets handed to the transport by flushes",
		},
	)
	connections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Name:      "connections",
			Help:      "Number of registered connections",
		},
	)
)

// NewTracer creates a Tracer using the default Prometheus registerer.
// Set it on the Tracer field of the quicmux.Config.
func NewTracer() quicmux.Tracer {
	return NewTracerWithRegisterer(prometheus.DefaultRegisterer)
}

// NewTracerWithRegisterer creates a Tracer using a given Prometheus registerer.
func NewTracerWithRegisterer(registerer prometheus.Registerer) quicmux.Tracer {
	for _, c := range [...]prometheus.Collector{
		packetsDropped,
		flushes,
		flushedPackets,
		connections,
	} {
		if err := registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
	return &tracer{}
}

type tracer struct{}

var _ quicmux.Tracer = &tracer{}

func (t *tracer) DroppedPacket(reason quicmux.DropReason) {
	packetsDropped.WithLabelValues(reason.String()).Inc()
}

func (t *tracer) Flushed(trigger quicmux.FlushTrigger, packets int, _ quicmux.ByteCount) {
	flushes.WithLabelValues(trigger.String()).Inc()
	flushedPackets.Add(float64(packets))
}

func (t *tracer) ConnectionAdded()   { connections.Inc() }
func (t *tracer) ConnectionRemoved() { connections.Dec() }
