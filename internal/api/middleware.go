package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/driftstack/driftgate/internal/metrics"
)

// requestMetrics records per-route request counts and latencies.
func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTPRequest(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
