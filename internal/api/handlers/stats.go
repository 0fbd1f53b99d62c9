package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type statsResponse struct {
	Received         int64            `json:"received"`
	UniqueProcessed  int64            `json:"unique_processed"`
	DuplicateDropped int64            `json:"duplicate_dropped"`
	Topics           []string         `json:"topics"`
	TopicCounts      map[string]int64 `json:"topic_counts"`
	UptimeSeconds    float64          `json:"uptime_seconds"`
	UptimeFormatted  string           `json:"uptime_formatted"`
	WorkersActive    int32            `json:"workers_active"`
	QueueSize        int64            `json:"queue_size"`
}

// Stats handles GET /stats.
func (d *Dependencies) Stats(c *gin.Context) {
	stats, err := d.Store.GetStatistics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	queueSize, err := d.Broker.QueueSize(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	if stats.Topics == nil {
		stats.Topics = []string{}
	}
	if stats.TopicCounts == nil {
		stats.TopicCounts = map[string]int64{}
	}

	uptime := time.Since(d.StartedAt)

	c.JSON(http.StatusOK, statsResponse{
		Received:         stats.Received,
		UniqueProcessed:  stats.UniqueProcessed,
		DuplicateDropped: stats.DuplicateDropped,
		Topics:           stats.Topics,
		TopicCounts:      stats.TopicCounts,
		UptimeSeconds:    uptime.Seconds(),
		UptimeFormatted:  formatUptime(uptime),
		WorkersActive:    d.Workers.ActiveCount(),
		QueueSize:        queueSize,
	})
}

// formatUptime renders a duration as "Dd Hh Mm Ss".
func formatUptime(d time.Duration) string {
	total := int64(d.Seconds())
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}
