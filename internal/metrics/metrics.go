// Package metrics exposes prometheus collectors for block verification and
// the remote node adapter. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chainguard"

type Metrics struct {
	verifications   *prometheus.CounterVec
	powHashDuration prometheus.Histogram
	rpcCalls        *prometheus.CounterVec
	rpcInFlight     prometheus.Gauge
	rpcPoisoned     prometheus.Counter
}

// New registers the collectors on reg. A nil reg creates unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verifier",
			Name:      "blocks_total",
			Help:      "count of block verifications by outcome",
		}, []string{"outcome"}),

		powHashDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "verifier",
			Name:      "pow_hash_seconds",
			Help:      "time spent computing pow hashes on the offload pool",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),

		rpcCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "count of remote node calls by method and outcome",
		}, []string{"method", "outcome"}),

		rpcInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "in_flight",
			Help:      "number of remote node calls currently in flight",
		}),

		rpcPoisoned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "poisoned_total",
			Help:      "number of node connections disabled by a transport error",
		}),
	}
}

func (m *Metrics) BlockVerified(outcome string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PowHashed(d time.Duration) {
	if m == nil {
		return
	}
	m.powHashDuration.Observe(d.Seconds())
}

// RPCStarted marks a call as in flight and returns the function that ends it.
func (m *Metrics) RPCStarted(method string) func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	m.rpcInFlight.Inc()
	return func(outcome string) {
		m.rpcInFlight.Dec()
		m.rpcCalls.WithLabelValues(method, outcome).Inc()
	}
}

func (m *Metrics) RPCPoisoned() {
	if m == nil {
		return
	}
	m.rpcPoisoned.Inc()
}
