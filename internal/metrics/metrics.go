// Package metrics records payment and generation counters for Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Approval sources.
const (
	SourcePoll    = "poll"
	SourceWebhook = "webhook"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	preferences      *prometheus.CounterVec
	gatewayErrors    *prometheus.CounterVec
	approvals        *prometheus.CounterVec
	webhooks         *prometheus.CounterVec
	generation       *prometheus.HistogramVec
	generationErrors *prometheus.CounterVec
}

// New registers the service metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		preferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcano_preferences_created_total",
			Help: "Checkout preferences created, by consultation kind.",
		}, []string{"kind"}),
		gatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcano_gateway_errors_total",
			Help: "Failed Mercado Pago calls, by operation.",
		}, []string{"operation"}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcano_payments_approved_total",
			Help: "Local payments moved to approved, by source.",
		}, []string{"source"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcano_webhooks_total",
			Help: "Webhook deliveries, by outcome.",
		}, []string{"outcome"}),
		generation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arcano_generation_duration_seconds",
			Help:    "Duration of consultation finalize calls.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"kind"}),
		generationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arcano_generation_failures_total",
			Help: "Failed consultation generations, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.preferences, m.gatewayErrors, m.approvals, m.webhooks, m.generation, m.generationErrors)
	return m
}

func (m *Metrics) PreferenceCreated(kind string) {
	if m == nil || m.preferences == nil {
		return
	}
	m.preferences.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Metrics) GatewayError(operation string) {
	if m == nil || m.gatewayErrors == nil {
		return
	}
	m.gatewayErrors.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *Metrics) PaymentApproved(source string) {
	if m == nil || m.approvals == nil {
		return
	}
	m.approvals.WithLabelValues(normalizeLabel(source)).Inc()
}

// Webhook counts a delivery outcome: processed, duplicate, ignored, invalid_signature, error.
func (m *Metrics) Webhook(outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveGeneration(kind string, d time.Duration, err error) {
	if m == nil || m.generation == nil {
		return
	}
	kind = normalizeLabel(kind)
	m.generation.WithLabelValues(kind).Observe(d.Seconds())
	if err != nil {
		m.generationErrors.WithLabelValues(kind).Inc()
	}
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
