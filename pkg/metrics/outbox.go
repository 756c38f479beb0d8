package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics counts how the relay settled each order event.
type OutboxMetrics struct {
	events *prometheus.CounterVec
}

// NewOutboxMetrics registers the relay counters. A nil registerer yields a
// no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "events_total",
		Help:      "Outbox events handled by the relay, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(events)
	return &OutboxMetrics{events: events}
}

// IncEvent counts one row; outcome is published, retry, held, non_retryable
// or max_attempts.
func (m *OutboxMetrics) IncEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
