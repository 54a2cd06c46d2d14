// Package metrics exposes the engine's prometheus counters and gauges.
//
// Nothing in the protocol state machine depends on this package being wired
// up: every call here is safe against a nil *Registry (the Inc*/Set*
// methods no-op, and Handler falls back to the global promhttp handler), so
// the core can run headless in tests without a metrics server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the engine emits.
type Registry struct {
	DatagramsSent         prometheus.Counter
	DatagramsReceived     prometheus.Counter
	AcksSent              prometheus.Counter
	Retransmissions       prometheus.Counter
	ReliabilityExhausted  prometheus.Counter
	TurnsCompleted        prometheus.Counter
	DiscrepancyResolved   prometheus.Counter
	SpectatorsConnected   prometheus.Gauge
	CodecErrors           prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewRegistry builds and registers the engine's metrics under the given
// registerer. Pass prometheus.NewRegistry() for an isolated registry (the
// default used by the bootstrap), or nil to use prometheus' global default.
func NewRegistry(reg prometheus.Registerer) *Registry {
	gatherer := prometheus.Gatherer(prometheus.DefaultGatherer)
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	factory := prometheus.WrapRegistererWith(prometheus.Labels{"component": "pokeproto"}, reg)

	r := &Registry{
		gatherer: gatherer,
		DatagramsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pokeproto_datagrams_sent_total",
			Help: "Total datagrams handed to the transport for send.",
		}),
		DatagramsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pokeproto_datagrams_received_total",
			Help: "Total datagrams read off the transport.",
		}),
		AcksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pokeproto_acks_sent_total",
			Help: "Total ACK datagrams emitted by the reliability layer.",
		}),
		Retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pokeproto_retransmissions_total",
			Help: "Total retransmissions performed by the reliability layer.",
		}),
		ReliabilityExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pokeproto_reliability_exhausted_total",
			Help: "Total pending records that exceeded max retries.",
		}),
		TurnsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pokeproto_turns_completed_total",
			Help: "Total turns that reached CALCULATION_CONFIRM.",
		}),
		DiscrepancyResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pokeproto_discrepancies_resolved_total",
			Help: "Total turns that required a RESOLUTION_REQUEST.",
		}),
		SpectatorsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pokeproto_spectators_connected",
			Help: "Current number of registered spectators (host only).",
		}),
		CodecErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pokeproto_codec_errors_total",
			Help: "Total datagrams dropped for failing to decode.",
		}),
	}

	factory.MustRegister(
		r.DatagramsSent,
		r.DatagramsReceived,
		r.AcksSent,
		r.Retransmissions,
		r.ReliabilityExhausted,
		r.TurnsCompleted,
		r.DiscrepancyResolved,
		r.SpectatorsConnected,
		r.CodecErrors,
	)

	return r
}

// Handler returns the promhttp handler to mount at /metrics, serving the
// registry this Registry was built against.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// The Inc* helpers tolerate a nil *Registry so protocol/reliability code can
// call them unconditionally whether or not a metrics server was wired up.

func (r *Registry) IncSent() {
	if r != nil {
		r.DatagramsSent.Inc()
	}
}

func (r *Registry) IncReceived() {
	if r != nil {
		r.DatagramsReceived.Inc()
	}
}

func (r *Registry) IncAck() {
	if r != nil {
		r.AcksSent.Inc()
	}
}

func (r *Registry) IncRetransmission() {
	if r != nil {
		r.Retransmissions.Inc()
	}
}

func (r *Registry) IncExhausted() {
	if r != nil {
		r.ReliabilityExhausted.Inc()
	}
}

func (r *Registry) IncTurnCompleted() {
	if r != nil {
		r.TurnsCompleted.Inc()
	}
}

func (r *Registry) IncDiscrepancyResolved() {
	if r != nil {
		r.DiscrepancyResolved.Inc()
	}
}

func (r *Registry) IncCodecError() {
	if r != nil {
		r.CodecErrors.Inc()
	}
}

func (r *Registry) SetSpectators(n int) {
	if r != nil {
		r.SpectatorsConnected.Set(float64(n))
	}
}
