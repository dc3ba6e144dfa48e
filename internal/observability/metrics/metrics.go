package metrics

import "github.com/prometheus/client_golang/prometheus"

// WorkflowMetrics exposes counters/histograms for the conversational booking engine.
type WorkflowMetrics struct {
	transitionsTotal *prometheus.CounterVec
	bookingsTotal    *prometheus.CounterVec
	turnLatency      *prometheus.HistogramVec
}

func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	m := &WorkflowMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Workflow state transitions by workflow type and resulting state",
		}, []string{"workflow", "state"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "concierge",
			Subsystem: "workflow",
			Name:      "bookings_total",
			Help:      "Slot booking attempts by outcome",
		}, []string{"outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "concierge",
			Subsystem: "workflow",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one workflow turn, including collaborator calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"workflow"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitionsTotal, m.bookingsTotal, m.turnLatency)
	return m
}

func (m *WorkflowMetrics) ObserveTransition(workflow, state string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(workflow, state).Inc()
}

func (m *WorkflowMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

func (m *WorkflowMetrics) ObserveTurnLatency(workflow string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(workflow).Observe(seconds)
}
