package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	registry         *prometheus.Registry
	LoginOutcomes    *prometheus.CounterVec
	LeaseRequests    *prometheus.CounterVec
	DocumentUploads  *prometheus.CounterVec
	StepSubmissions  *prometheus.CounterVec
	HTTPRequestTotal *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LoginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcs_frontend_login_total",
			Help: "OIDC login flow outcomes by stage.",
		}, []string{"stage", "outcome"}),
		LeaseRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcs_frontend_s2s_lease_total",
			Help: "S2S lease lookups by source (cache, lease) and outcome.",
		}, []string{"source", "outcome"}),
		DocumentUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcs_frontend_document_total",
			Help: "Document upload and case association outcomes.",
		}, []string{"stage", "outcome"}),
		StepSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcs_frontend_step_submissions_total",
			Help: "Journey step submissions by step and outcome.",
		}, []string{"step", "outcome"}),
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pcs_frontend_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}
	m.registry.MustRegister(
		m.LoginOutcomes,
		m.LeaseRequests,
		m.DocumentUploads,
		m.StepSubmissions,
		m.HTTPRequestTotal,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
