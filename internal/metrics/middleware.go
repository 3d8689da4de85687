package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware records request counts and durations for every route. It uses
// the route template (c.FullPath) rather than the raw URL so path parameters
// do not explode the label space.
func Middleware(collector *Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		collector.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status())
		collector.RecordHTTPDuration(c.Request.Method, path, time.Since(start).Seconds())
	}
}
