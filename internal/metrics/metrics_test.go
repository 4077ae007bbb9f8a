package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func getTestMetrics() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry(), zap.NewNop())
}

func TestWebSocketConnectionGauge(t *testing.T) {
	m := getTestMetrics()

	m.RecordWebSocketConnection()
	m.RecordWebSocketConnection()
	m.RecordWebSocketDisconnection()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.WSConnectionsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WSActiveConnections))
}

func TestLabelledCounters(t *testing.T) {
	m := getTestMetrics()

	m.RecordRateLimited("message")
	m.RecordRateLimited("message")
	m.RecordRateLimited("connection")
	m.RecordMessageSent("text")
	m.RecordPresenceTransition("offline")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RateLimitRejectionsTotal.WithLabelValues("message")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RateLimitRejectionsTotal.WithLabelValues("connection")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.MessagesSentTotal.WithLabelValues("text")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PresenceTransitionsTotal.WithLabelValues("offline")))
}

func TestRecordCleanup_IgnoresZero(t *testing.T) {
	m := getTestMetrics()

	m.RecordCleanup("typing", 0)
	m.RecordCleanup("delivery", 3)

	assert.Equal(t, 1, testutil.CollectAndCount(m.CleanupRemovedTotal))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.CleanupRemovedTotal.WithLabelValues("delivery")))
}

func TestRecordHTTPRequest(t *testing.T) {
	m := getTestMetrics()

	m.HTTPStarted()
	m.RecordHTTPRequest("GET", "/health", 200, 10*time.Millisecond)
	m.HTTPFinished()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.HTTPRequestsInFlight))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordWebSocketConnection()
		m.SetActiveRooms(3)
		m.RecordCleanup("typing", 2)
	})
}

func TestShouldSkipEndpoint(t *testing.T) {
	assert.True(t, ShouldSkipEndpoint("/metrics"))
	assert.True(t, ShouldSkipEndpoint("/api/realtime/health"))
	assert.True(t, ShouldSkipEndpoint("/ready"))
	assert.False(t, ShouldSkipEndpoint("/api/realtime/rooms/task:42"))
}
