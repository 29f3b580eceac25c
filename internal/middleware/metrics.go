package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/campus-dev/sis-api/internal/service"
)

// Metrics records per-route request counts and latency. The route template
// (e.g. /sections/:id) is used as the path label so cardinality stays
// bounded.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
