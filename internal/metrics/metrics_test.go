package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectOutcomesAreCounted(t *testing.T) {
	m := NewMetrics().(*metrics)

	m.ObserveConnectOutcome("connect", "redirecting")
	m.ObserveConnectOutcome("connect", "redirecting")
	m.ObserveConnectOutcome("disconnect", "failed")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.connectOutcomes.WithLabelValues("connect", "redirecting")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectOutcomes.WithLabelValues("disconnect", "failed")))
}

func TestCacheLookupsSplitByResult(t *testing.T) {
	m := NewMetrics().(*metrics)

	m.ObserveCacheLookup("config", true)
	m.ObserveCacheLookup("config", false)
	m.ObserveCacheLookup("config", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("config", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("config", "miss")))
}

func TestRegistryGathers(t *testing.T) {
	m := NewMetrics()
	m.IncrementHTTPRequests()
	m.IncrementDegradedStatusReads()

	families, err := m.GetRegistry().Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, family := range families {
		names[family.GetName()] = true
	}
	assert.True(t, names["integrations_http_requests_total"])
	assert.True(t, names["integrations_sources_degraded_status_reads_total"])
}
