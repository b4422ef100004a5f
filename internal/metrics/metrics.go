// Package metrics exposes the correlator's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the Prometheus scrape endpoint for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics bundles the counters and gauges the ingress, dispatcher, and
// queue components record against.
type Metrics struct {
	IngestRequestsTotal *prometheus.CounterVec
	IngestDuration      *prometheus.HistogramVec
	DispatchTotal       *prometheus.CounterVec
	DispatchDuration    *prometheus.HistogramVec
	QueueDepth          prometheus.Gauge
	ErrorsTotal         *prometheus.CounterVec
}

// New registers and returns a Metrics bundle against the default registerer.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry registers against a specific registerer, useful in tests.
func NewWithRegistry(serviceName string, reg prometheus.Registerer) *Metrics {
	factory := promauto(reg)

	m := &Metrics{
		IngestRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "correlator", Subsystem: "ingest", Name: "requests_total",
			Help:        "Total ingest requests by status code.",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"status"}),
		IngestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "correlator", Subsystem: "ingest", Name: "duration_seconds",
			Help:        "Ingest request handling latency.",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"status"}),
		DispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "correlator", Subsystem: "dispatch", Name: "total",
			Help:        "Total dispatcher passes by task and resulting status.",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"task", "status"}),
		DispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "correlator", Subsystem: "dispatch", Name: "duration_seconds",
			Help:        "Dispatcher pass latency.",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"task"}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "correlator", Subsystem: "queue", Name: "depth",
			Help:        "Number of tasks currently queued.",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}),
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "correlator", Subsystem: "", Name: "errors_total",
			Help:        "Total errors by component.",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"component"}),
	}
	return m
}

// promautoFactory wraps prometheus.Registerer with auto-registration,
// matching the infrastructure metrics package's constructor shape.
type promautoFactory struct {
	reg prometheus.Registerer
}

func promauto(reg prometheus.Registerer) promautoFactory {
	return promautoFactory{reg: reg}
}

func (f promautoFactory) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	v := prometheus.NewCounterVec(opts, labels)
	f.reg.MustRegister(v)
	return v
}

func (f promautoFactory) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	v := prometheus.NewHistogramVec(opts, labels)
	f.reg.MustRegister(v)
	return v
}

func (f promautoFactory) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	v := prometheus.NewGauge(opts)
	f.reg.MustRegister(v)
	return v
}
