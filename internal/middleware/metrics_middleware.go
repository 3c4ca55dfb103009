package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"dcawallet-api/internal/monitoring"
)

// HTTPMetrics records request counts and latency per route.
func HTTPMetrics(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
