package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NoopMetrics is a no-operation implementation of the Metrics interface for testing.
type NoopMetrics struct{}

func NewNoopMetrics() Metrics {
	return &NoopMetrics{}
}

// GetRegistry returns a new empty registry.
func (m *NoopMetrics) GetRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func (m *NoopMetrics) ObserveAPIEndpointDuration(handler, method, statusCode string, elapsed float64) {}

func (m *NoopMetrics) IncrementHTTPRequests() {}

func (m *NoopMetrics) IncrementHTTPErrors() {}

func (m *NoopMetrics) ObserveConnectOutcome(operation, outcome string) {}

func (m *NoopMetrics) IncrementDegradedStatusReads() {}

func (m *NoopMetrics) ObserveCacheLookup(key string, hit bool) {}
