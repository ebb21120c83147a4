// Package metrics exposes Prometheus metrics for message adaptation and context assembly.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the kirabridge collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	AdaptTotal          *prometheus.CounterVec
	SourceTotal         *prometheus.CounterVec
	SourceDuration      *prometheus.HistogramVec
	AssemblyTotal       *prometheus.CounterVec
	AssemblyDuration    prometheus.Histogram
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	PersonasLoaded      prometheus.Gauge
	PersonaReloadsTotal *prometheus.CounterVec
	ServerStartTime     time.Time
}

// New creates and registers all metrics, plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry:        reg,
		ServerStartTime: time.Now(),

		AdaptTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kirabridge_adapt_total",
			Help: "Inbound payloads processed by the adapter router",
		}, []string{"source_tag", "outcome"}),

		SourceTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kirabridge_context_source_total",
			Help: "Context source invocations by outcome",
		}, []string{"source", "outcome"}),

		SourceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kirabridge_context_source_duration_seconds",
			Help:    "Duration of context source invocations",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),

		AssemblyTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kirabridge_context_assembly_total",
			Help: "Context assemblies by outcome (ok, fallback, error)",
		}, []string{"outcome"}),

		AssemblyDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "kirabridge_context_assembly_duration_seconds",
			Help:    "Duration of whole context assemblies",
			Buckets: prometheus.DefBuckets,
		}),

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kirabridge_requests_total",
			Help: "Chat requests handled by the pipeline",
		}, []string{"source_tag", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kirabridge_request_duration_seconds",
			Help:    "End-to-end pipeline duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_tag"}),

		PersonasLoaded: f.NewGauge(prometheus.GaugeOpts{
			Name: "kirabridge_personas_loaded",
			Help: "Personas in the current catalog snapshot",
		}),

		PersonaReloadsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "kirabridge_persona_reloads_total",
			Help: "Persona catalog reloads by status",
		}, []string{"status"}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAdapt implements adapter.Observer.
func (m *Metrics) ObserveAdapt(tag, outcome string) {
	if tag == "" {
		tag = "unknown"
	}
	m.AdaptTotal.WithLabelValues(tag, outcome).Inc()
}

// ObserveSource implements assembler.Observer.
func (m *Metrics) ObserveSource(source, outcome string, d time.Duration) {
	m.SourceTotal.WithLabelValues(source, outcome).Inc()
	m.SourceDuration.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveAssembly implements assembler.Observer.
func (m *Metrics) ObserveAssembly(outcome string, d time.Duration) {
	m.AssemblyTotal.WithLabelValues(outcome).Inc()
	m.AssemblyDuration.Observe(d.Seconds())
}

// ObserveRequest records one pipeline request.
func (m *Metrics) ObserveRequest(tag, status string, d time.Duration) {
	if tag == "" {
		tag = "unknown"
	}
	m.RequestsTotal.WithLabelValues(tag, status).Inc()
	m.RequestDuration.WithLabelValues(tag).Observe(d.Seconds())
}

// ObservePersonaReload records a catalog reload and the resulting size.
func (m *Metrics) ObservePersonaReload(count int, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.PersonaReloadsTotal.WithLabelValues(status).Inc()
	m.PersonasLoaded.Set(float64(count))
}
