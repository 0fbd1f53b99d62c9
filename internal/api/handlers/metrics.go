package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eventagg/aggregator/internal/metrics"
)

// Metrics handles GET /metrics, refreshing the gauges that can only be
// computed on demand before handing off to the Prometheus exposition
// format, mirroring the teacher's updateSystemMetricsForPrometheus.
func (d *Dependencies) Metrics(c *gin.Context) {
	metrics.ApplicationUptime.Set(time.Since(d.StartedAt).Seconds())

	if queueSize, err := d.Broker.QueueSize(c.Request.Context()); err == nil {
		metrics.IngestQueueDepth.Set(float64(queueSize))
	}

	promhttp.Handler().ServeHTTP(c.Writer, c.Request)
}
