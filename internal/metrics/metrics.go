// Package metrics provides Prometheus metrics for the document gateway.
package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "doc_gateway"

// transferBuckets span quick HEAD probes up to multi-minute document streams.
var transferBuckets = []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// Metrics holds the gateway's collectors and the registry they live in.
type Metrics struct {
	Registry *prometheus.Registry

	// Inbound traffic, labeled by method, status_code and path_prefix.
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Upstream fetches, labeled by method (and status_code for responses).
	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	// Document outcomes, labeled by gateway (download|viewer).
	Failures     *prometheus.CounterVec
	BytesRelayed *prometheus.CounterVec
}

// New creates a Metrics instance on a private registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	httpLabels := []string{"method", "status_code", "path_prefix"}

	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_total",
			Help: "Inbound requests by method, status and route.",
		}, httpLabels),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "Time from request arrival until the last document byte is written.",
			Buckets: transferBuckets,
		}, httpLabels),
		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "http", Name: "requests_in_flight",
			Help: "Requests currently being served, open document streams included.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "upstream", Name: "request_duration_seconds",
			Help:    "Time until the document origin returned response headers.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "upstream", Name: "responses_total",
			Help: "Document origin responses by method and status.",
		}, []string{"method", "status_code"}),

		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "failures_total",
			Help: "Document requests that ended in an error or a truncated stream, by reason.",
		}, []string{"gateway", "reason"}),
		BytesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "relayed_bytes_total",
			Help: "Document body bytes written to clients.",
		}, []string{"gateway"}),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.Failures,
		m.BytesRelayed,
	)

	return m
}

// NormalizeMethod maps anything but the standard methods to "other".
func NormalizeMethod(method string) string {
	switch method {
	case "GET", "HEAD", "POST", "PUT", "DELETE", "PATCH", "OPTIONS":
		return method
	}
	return "other"
}

// routes are the only path_prefix label values besides "other". The
// document URL travels in the query string and never reaches a label.
var routes = [...]string{
	"/api/download",
	"/api/viewer",
	"/healthz",
	"/proxy/status",
	"/metrics",
}

// NormalizePath returns the route a request path belongs to, or "other".
func NormalizePath(path string) string {
	path, _, _ = strings.Cut(path, "?")
	for _, route := range routes {
		if path == route || strings.HasPrefix(path, route+"/") {
			return route
		}
	}
	return "other"
}
