package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status        string  `json:"status"`
	Database      string  `json:"database"`
	Broker        string  `json:"broker"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Version       string  `json:"version"`
}

// Health handles GET /health.
func (d *Dependencies) Health(c *gin.Context) {
	database := "connected"
	if err := d.Store.HealthCheck(c.Request.Context()); err != nil {
		database = "disconnected"
	}

	broker := "connected"
	if err := d.Broker.HealthCheck(c.Request.Context()); err != nil {
		broker = "disconnected"
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if database != "connected" || broker != "connected" {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, healthResponse{
		Status:        status,
		Database:      database,
		Broker:        broker,
		UptimeSeconds: time.Since(d.StartedAt).Seconds(),
		Version:       d.Version,
	})
}
