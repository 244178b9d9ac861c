package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCountByLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.PreferenceCreated("tarot")
	m.PreferenceCreated("tarot")
	m.PaymentApproved(SourceWebhook)
	m.Webhook("")
	m.GatewayError("search")
	m.ObserveGeneration("oracle", 2*time.Second, errors.New("boom"))
	m.ObserveGeneration("oracle", time.Second, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.preferences.WithLabelValues("tarot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.approvals.WithLabelValues("webhook")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhooks.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gatewayErrors.WithLabelValues("search")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generationErrors.WithLabelValues("oracle")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.generation))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PreferenceCreated("tarot")
		m.PaymentApproved(SourcePoll)
		m.Webhook("processed")
		m.GatewayError("get")
		m.ObserveGeneration("tarot", time.Second, nil)
	})

	empty := New(nil)
	assert.NotPanics(t, func() { empty.ObserveGeneration("tarot", time.Second, errors.New("x")) })
}
