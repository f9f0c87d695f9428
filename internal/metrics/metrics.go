// Package metrics holds the Prometheus collectors of the checkout service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "checkout"

// Outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
	OutcomeSettled   = "settled"
	OutcomeInvalid   = "invalid"
	OutcomeCancelled = "cancelled"
	OutcomeExpired   = "expired"
)

type Metrics struct {
	paymentRequests *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	watcherPolls    prometheus.Counter
	activeWatchers  prometheus.Gauge
}

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		paymentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_requests_total",
			Help:      "Transaction requests handled, by outcome.",
		}, []string{"outcome"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Finished settlement watches, by outcome.",
		}, []string{"outcome"}),
		watcherPolls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watcher_polls_total",
			Help:      "Ledger lookups made by settlement watchers.",
		}),
		activeWatchers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_watchers",
			Help:      "Settlement watchers currently polling.",
		}),
	}
	reg.MustRegister(m.paymentRequests, m.settlements, m.watcherPolls, m.activeWatchers)
	return m
}

// Nil receivers are no-ops so callers can run without metrics.

func (m *Metrics) PaymentRequest(outcome string) {
	if m == nil {
		return
	}
	m.paymentRequests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Settlement(outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

func (m *Metrics) WatcherPoll() {
	if m == nil {
		return
	}
	m.watcherPolls.Inc()
}

func (m *Metrics) WatcherStarted() {
	if m == nil {
		return
	}
	m.activeWatchers.Inc()
}

func (m *Metrics) WatcherStopped() {
	if m == nil {
		return
	}
	m.activeWatchers.Dec()
}
