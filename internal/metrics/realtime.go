package metrics

import (
	"strconv"
	"strings"
	"time"
)

// RecordWebSocketConnection increments WebSocket connection counters
func (m *Metrics) RecordWebSocketConnection() {
	m.safeExecute("RecordWebSocketConnection", func() {
		m.WSConnectionsTotal.Inc()
		m.WSActiveConnections.Inc()
	})
}

// RecordWebSocketDisconnection decrements active WebSocket connection gauge
func (m *Metrics) RecordWebSocketDisconnection() {
	m.safeExecute("RecordWebSocketDisconnection", func() {
		m.WSActiveConnections.Dec()
	})
}

func (m *Metrics) RecordWebSocketRejected(reason string) {
	m.safeExecute("RecordWebSocketRejected", func() {
		m.WSRejectedTotal.WithLabelValues(reason).Inc()
	})
}

// RecordEvent counts an inbound event; outcome is "ok" or an error code.
func (m *Metrics) RecordEvent(event, outcome string) {
	m.safeExecute("RecordEvent", func() {
		m.WSEventsTotal.WithLabelValues(event, outcome).Inc()
	})
}

func (m *Metrics) RecordMessageSent(messageType string) {
	m.safeExecute("RecordMessageSent", func() {
		m.MessagesSentTotal.WithLabelValues(messageType).Inc()
	})
}

func (m *Metrics) RecordPersistFailure() {
	m.safeExecute("RecordPersistFailure", func() {
		m.PersistFailuresTotal.Inc()
	})
}

// SetActiveRooms sets the number of live rooms
func (m *Metrics) SetActiveRooms(count int) {
	m.safeExecute("SetActiveRooms", func() {
		m.RoomsActive.Set(float64(count))
	})
}

func (m *Metrics) RecordPresenceTransition(status string) {
	m.safeExecute("RecordPresenceTransition", func() {
		m.PresenceTransitionsTotal.WithLabelValues(status).Inc()
	})
}

func (m *Metrics) RecordRateLimited(rule string) {
	m.safeExecute("RecordRateLimited", func() {
		m.RateLimitRejectionsTotal.WithLabelValues(rule).Inc()
	})
}

// RecordCleanup adds the number of records a sweep removed.
func (m *Metrics) RecordCleanup(kind string, removed int) {
	if removed <= 0 {
		return
	}
	m.safeExecute("RecordCleanup", func() {
		m.CleanupRemovedTotal.WithLabelValues(kind).Add(float64(removed))
	})
}

// RecordHTTPRequest records one completed HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.safeExecute("RecordHTTPRequest", func() {
		m.HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	})
}

func (m *Metrics) HTTPStarted() {
	m.safeExecute("HTTPStarted", func() { m.HTTPRequestsInFlight.Inc() })
}

func (m *Metrics) HTTPFinished() {
	m.safeExecute("HTTPFinished", func() { m.HTTPRequestsInFlight.Dec() })
}

// ShouldSkipEndpoint checks if endpoint should be excluded from metrics
func ShouldSkipEndpoint(path string) bool {
	return strings.HasSuffix(path, "/metrics") ||
		strings.HasSuffix(path, "/health") ||
		strings.HasSuffix(path, "/ready")
}
