// Package metrics exposes prometheus instrumentation for reconciliation
// ticks and user actions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	ticks        *prometheus.CounterVec
	tickDuration prometheus.Histogram
	arrivals     prometheus.Counter
	actions      *prometheus.CounterVec
	loops        prometheus.Gauge
	sessions     prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syncd",
			Name:      "reconcile_ticks_total",
			Help:      "Reconciliation ticks by outcome.",
		}, []string{"outcome"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "syncd",
			Name:      "reconcile_tick_seconds",
			Help:      "Duration of reconciliation ticks.",
			Buckets:   prometheus.DefBuckets,
		}),
		arrivals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "syncd",
			Name:      "messages_arrived_total",
			Help:      "Messages first seen by a reconciliation tick.",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syncd",
			Name:      "actions_total",
			Help:      "User actions by name and outcome.",
		}, []string{"action", "outcome"}),
		loops: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "syncd",
			Name:      "reconcile_loops",
			Help:      "Running reconciliation loops.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "syncd",
			Name:      "sessions",
			Help:      "Connected user sessions.",
		}),
	}
	reg.MustRegister(m.ticks, m.tickDuration, m.arrivals, m.actions, m.loops, m.sessions)
	return m
}

// Tick outcomes
const (
	TickOK        = "ok"
	TickFailed    = "failed"
	TickDiscarded = "discarded"
)

// Action outcomes
const (
	ActionOK          = "ok"
	ActionAlreadyDone = "already_done"
	ActionDenied      = "denied"
	ActionFailed      = "failed"
)

// ObserveTick records one tick
func (m *Metrics) ObserveTick(outcome string, d time.Duration, arrived int) {
	if m == nil {
		return
	}
	m.ticks.WithLabelValues(outcome).Inc()
	m.tickDuration.Observe(d.Seconds())
	if arrived > 0 {
		m.arrivals.Add(float64(arrived))
	}
}

// ObserveAction records the outcome of a user action
func (m *Metrics) ObserveAction(action, outcome string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, outcome).Inc()
}

// LoopStarted and LoopStopped track running reconciliation loops
func (m *Metrics) LoopStarted() {
	if m != nil {
		m.loops.Inc()
	}
}

func (m *Metrics) LoopStopped() {
	if m != nil {
		m.loops.Dec()
	}
}

// SessionOpened and SessionClosed track connected users
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

// TicksCounter returns the tick counter for outcome
func (m *Metrics) TicksCounter(outcome string) prometheus.Counter {
	return m.ticks.WithLabelValues(outcome)
}

// ActionsCounter returns the counter for action and outcome
func (m *Metrics) ActionsCounter(action, outcome string) prometheus.Counter {
	return m.actions.WithLabelValues(action, outcome)
}

// SessionsGauge returns the connected sessions gauge
func (m *Metrics) SessionsGauge() prometheus.Gauge {
	return m.sessions
}
