// Package metrics exposes Prometheus collectors for the settlement core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "paysplit"

// Metrics wraps the collectors recorded by the orchestrator and services.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	settlements *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	transfers   *prometheus.CounterVec
	inFlight    prometheus.Gauge
	distributed *prometheus.CounterVec
	conflicts   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "attempts_total",
			Help:      "Settlement attempts segmented by action and outcome.",
		}, []string{"action", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "duration_seconds",
			Help:      "Time from hand-off to recorded outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "transitions_total",
			Help:      "Escrow state transitions segmented by source and target state.",
		}, []string{"from", "to"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "transfers_total",
			Help:      "Transfers handed to the chain adapter segmented by result.",
		}, []string{"result"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "in_flight",
			Help:      "Settlements currently claimed and not yet recorded.",
		}),
		distributed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "distributions_total",
			Help:      "Completed settlements segmented by token.",
		}, []string{"token"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escrow",
			Name:      "conflicts_total",
			Help:      "Rejected transition requests segmented by reason.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.settlements,
			m.latency,
			m.transitions,
			m.transfers,
			m.inFlight,
			m.distributed,
			m.conflicts,
		)
	}
	return m
}

// ObserveSettlement records a finished attempt and its duration.
func (m *Metrics) ObserveSettlement(action, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(action, outcome).Inc()
	m.latency.WithLabelValues(action).Observe(d.Seconds())
}

// ObserveDistribution counts a completed settlement of token.
func (m *Metrics) ObserveDistribution(token string) {
	if m == nil {
		return
	}
	if token == "" {
		token = "unknown"
	}
	m.distributed.WithLabelValues(token).Inc()
}

// ObserveTransition counts an applied escrow transition.
func (m *Metrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// ObserveTransfer counts a transfer result such as "confirmed" or "submit_error".
func (m *Metrics) ObserveTransfer(result string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(result).Inc()
}

// ObserveConflict counts a rejected request, e.g. "stale_version" or "in_flight".
func (m *Metrics) ObserveConflict(reason string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(reason).Inc()
}

// SettlementStarted increments the in-flight gauge.
func (m *Metrics) SettlementStarted() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// SettlementFinished decrements the in-flight gauge.
func (m *Metrics) SettlementFinished() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}
