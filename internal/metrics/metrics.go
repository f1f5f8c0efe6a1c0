// Package metrics exposes Prometheus collectors for the integrations gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	MetricsNamespace        = "integrations"
	MetricsSubsystemHTTP    = "http"
	MetricsSubsystemAPI     = "api"
	MetricsSubsystemConnect = "connect"
	MetricsSubsystemSources = "sources"
	MetricsSubsystemCache   = "cache"
)

type Metrics interface {
	GetRegistry() *prometheus.Registry

	ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64)

	IncrementHTTPRequests()
	IncrementHTTPErrors()

	ObserveConnectOutcome(operation, outcome string)
	IncrementDegradedStatusReads()
	ObserveCacheLookup(key string, hit bool)
}

type metrics struct {
	registry *prometheus.Registry

	apiTime *prometheus.HistogramVec

	httpRequestsTotal prometheus.Counter
	httpErrorsTotal   prometheus.Counter

	connectOutcomes     *prometheus.CounterVec
	degradedStatusReads prometheus.Counter
	cacheLookups        *prometheus.CounterVec
}

// NewMetrics creates a collector set on its own registry.
func NewMetrics() Metrics {
	m := &metrics{}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: MetricsNamespace}))
	m.registry.MustRegister(collectors.NewGoCollector())

	m.apiTime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystemAPI,
			Name:      "time_seconds",
			Help:      "Time to execute the api handler",
		},
		[]string{"handler", "method", "status_code"},
	)
	m.registry.MustRegister(m.apiTime)

	m.httpRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemHTTP,
		Name:      "requests_total",
		Help:      "The total number of http API requests.",
	})
	m.registry.MustRegister(m.httpRequestsTotal)

	m.httpErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemHTTP,
		Name:      "errors_total",
		Help:      "The total number of http API errors.",
	})
	m.registry.MustRegister(m.httpErrorsTotal)

	m.connectOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemConnect,
		Name:      "outcomes_total",
		Help:      "Connection operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	m.registry.MustRegister(m.connectOutcomes)

	m.degradedStatusReads = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemSources,
		Name:      "degraded_status_reads_total",
		Help:      "Status source reads that failed and were treated as nothing connected.",
	})
	m.registry.MustRegister(m.degradedStatusReads)

	m.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Subsystem: MetricsSubsystemCache,
		Name:      "lookups_total",
		Help:      "Source cache lookups by key and result.",
	}, []string{"key", "result"})
	m.registry.MustRegister(m.cacheLookups)

	return m
}

func (m *metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

func (m *metrics) ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64) {
	m.apiTime.With(prometheus.Labels{"handler": handler, "method": method, "status_code": statusCode}).Observe(elapsed)
}

func (m *metrics) IncrementHTTPRequests() {
	m.httpRequestsTotal.Inc()
}

func (m *metrics) IncrementHTTPErrors() {
	m.httpErrorsTotal.Inc()
}

func (m *metrics) ObserveConnectOutcome(operation, outcome string) {
	m.connectOutcomes.With(prometheus.Labels{"operation": operation, "outcome": outcome}).Inc()
}

func (m *metrics) IncrementDegradedStatusReads() {
	m.degradedStatusReads.Inc()
}

func (m *metrics) ObserveCacheLookup(key string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.With(prometheus.Labels{"key": key, "result": result}).Inc()
}
