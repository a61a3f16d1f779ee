package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLLMRequestCountsByStatus(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordLLMRequest("openai", "generateFullStory", true, time.Second)
	m.RecordLLMRequest("openai", "generateFullStory", false, time.Second)
	m.RecordLLMRequest("openai", "generateFullStory", false, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("openai", "generateFullStory", "success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.llmRequests.WithLabelValues("openai", "generateFullStory", "error")))
}

func TestGaugesAndOutcomes(t *testing.T) {
	m := NewMetricsCollector()
	m.SetActiveSessions(3)
	m.RecordGameOutcome("victory")
	m.IncWSClients()
	m.IncWSClients()
	m.DecWSClients()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.gameOutcomes.WithLabelValues("victory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.wsClients))
}

func TestRegistryExposesNamespacedMetrics(t *testing.T) {
	m := NewMetricsCollector()
	m.RecordAPIRequest("/api/health", "GET", 200, 10*time.Millisecond)

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "jade_api_requests_total") {
			found = true
		}
	}
	assert.True(t, found)
}
