package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"realtime-service/internal/metrics"
)

// Metrics returns a middleware that records HTTP metrics. The websocket
// upgrade route is skipped since its duration is the connection lifetime.
func Metrics(m *metrics.Metrics, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		skipped[path] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skipped[c.FullPath()]; ok || metrics.ShouldSkipEndpoint(c.Request.URL.Path) {
			c.Next()
			return
		}

		start := time.Now()
		m.HTTPStarted()

		c.Next()

		m.HTTPFinished()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, endpoint, c.Writer.Status(), time.Since(start))
	}
}
