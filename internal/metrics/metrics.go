// Package metrics holds the prometheus counters exported at /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the service counters. A nil *Metrics is valid and records
// nothing, which keeps unit tests free of registries.
type Metrics struct {
	activations  *prometheus.CounterVec
	validations  *prometheus.CounterVec
	forceLogouts prometheus.Counter
	httpRequests *prometheus.CounterVec
}

// New creates the counters and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensehub_license_activations_total",
			Help: "License activation attempts by result.",
		}, []string{"result"}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensehub_license_validations_total",
			Help: "License validation checks by outcome.",
		}, []string{"valid"}),
		forceLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "licensehub_force_logouts_total",
			Help: "Clinic-wide force logouts triggered by subscription status.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "licensehub_http_requests_total",
			Help: "HTTP requests by method and status.",
		}, []string{"method", "status"}),
	}
	reg.MustRegister(m.activations, m.validations, m.forceLogouts, m.httpRequests)
	return m
}

// Activation records one activation attempt. result is "success" or the
// error kind that rejected it.
func (m *Metrics) Activation(result string) {
	if m == nil {
		return
	}
	m.activations.WithLabelValues(result).Inc()
}

func (m *Metrics) Validation(valid bool) {
	if m == nil {
		return
	}
	m.validations.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

func (m *Metrics) ForceLogout() {
	if m == nil {
		return
	}
	m.forceLogouts.Inc()
}

func (m *Metrics) HTTPRequest(method string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}
