package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for the voice webhook,
// calendar mirroring and reconciliation flows.
type SchedulingMetrics struct {
	functionCalls  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
	calendarMirror *prometheus.CounterVec
	reconcile      *prometheus.CounterVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		functionCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "voice",
			Name:      "function_calls_total",
			Help:      "Voice assistant function calls by function and outcome",
		}, []string{"function", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scheduling",
			Subsystem: "voice",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of voice function-call webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"function"}),
		calendarMirror: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "calendar",
			Name:      "mirror_total",
			Help:      "Best-effort calendar mirror attempts by provider, operation and outcome",
		}, []string{"provider", "op", "outcome"}),
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduling",
			Subsystem: "calendar",
			Name:      "reconcile_changes_total",
			Help:      "Appointments imported or cancelled by calendar reconciliation",
		}, []string{"provider", "change"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.functionCalls, m.webhookLatency, m.calendarMirror, m.reconcile)
	return m
}

func (m *SchedulingMetrics) ObserveFunctionCall(function, outcome string) {
	if m == nil {
		return
	}
	m.functionCalls.WithLabelValues(function, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveWebhookLatency(function string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(function).Observe(seconds)
}

// ObserveCalendarMirror records a best-effort provider write; err == nil counts as success.
func (m *SchedulingMetrics) ObserveCalendarMirror(provider, op string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.calendarMirror.WithLabelValues(provider, op, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveReconcile(provider string, imported, cancelled int) {
	if m == nil {
		return
	}
	if imported > 0 {
		m.reconcile.WithLabelValues(provider, "imported").Add(float64(imported))
	}
	if cancelled > 0 {
		m.reconcile.WithLabelValues(provider, "cancelled").Add(float64(cancelled))
	}
}
