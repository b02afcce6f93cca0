package promexporter

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter serves the metrics of one client on a dedicated registry,
// along with the Go runtime metrics.
type Exporter struct {
	registry *prometheus.Registry
}

// NewExporter creates an Exporter for source.
func NewExporter(source Source) *Exporter {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		NewCollector(source),
		collectors.NewGoCollector(),
	)
	return &Exporter{registry: registry}
}

// Registry returns the registry, for registering more collectors.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler returns an HTTP handler for the /metrics endpoint
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// ListenAndServe serves /metrics on addr until the server fails.
func (e *Exporter) ListenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	return http.ListenAndServe(addr, mux)
}
