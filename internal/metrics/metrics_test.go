package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Activation("success")
	m.Activation("success")
	m.Activation("resource_exhausted")
	m.Validation(true)
	m.ForceLogout()
	m.HTTPRequest("GET", 200)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.activations.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activations.WithLabelValues("resource_exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.forceLogouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "200")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Activation("success")
		m.Validation(false)
		m.ForceLogout()
		m.HTTPRequest("POST", 500)
	})
}
