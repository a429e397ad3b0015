package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	Connections    prometheus.Gauge
	IntentsTotal   *prometheus.CounterVec
	RejectsTotal   *prometheus.CounterVec
	EventsTotal    *prometheus.CounterVec
	EventsDropped  prometheus.Counter
	IntentDuration prometheus.Histogram
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cardroom",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		IntentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardroom",
			Name:      "intents_total",
			Help:      "Intents processed, by type.",
		}, []string{"type"}),
		RejectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardroom",
			Name:      "rejects_total",
			Help:      "Intents rejected, by code.",
		}, []string{"code"}),
		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cardroom",
			Name:      "events_total",
			Help:      "Events delivered to clients, by type.",
		}, []string{"type"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cardroom",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a client send queue was full.",
		}),
		IntentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cardroom",
			Name:      "intent_duration_seconds",
			Help:      "Time from intent receipt to processed result.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.Connections, m.IntentsTotal, m.RejectsTotal,
		m.EventsTotal, m.EventsDropped, m.IntentDuration)
	return m
}
