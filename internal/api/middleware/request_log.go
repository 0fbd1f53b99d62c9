package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eventagg/aggregator/internal/logging"
)

// RequestLog logs method/path/status/duration for every request.
func RequestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logging.Info("request completed", logging.F{
			"method":      c.Request.Method,
			"path":        path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}
}
