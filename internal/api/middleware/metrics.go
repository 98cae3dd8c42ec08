package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jstittsworth/matchup-engine/pkg/metrics"
)

// Metrics records request counters and latency for Prometheus.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// Route template, not the raw path, to keep label cardinality down.
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(path, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
