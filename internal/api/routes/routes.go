// Package routes wires the Ingest Surface's middleware chain and endpoints.
package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/eventagg/aggregator/internal/api/handlers"
	"github.com/eventagg/aggregator/internal/api/middleware"
	"github.com/eventagg/aggregator/internal/config"
)

// Register wires every endpoint from spec.md §6.1 behind the ambient
// middleware chain (CORS, Prometheus, request logging).
func Register(router *gin.Engine, cfg config.CORSConfig, deps *handlers.Dependencies) {
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.Prometheus())
	router.Use(middleware.RequestLog())

	router.POST("/publish", deps.Publish)
	router.POST("/publish/batch", deps.PublishBatch)
	router.POST("/publish/queue", deps.PublishQueue)
	router.GET("/events", deps.ListEvents)
	router.DELETE("/events", deps.ResetEvents)
	router.GET("/stats", deps.Stats)
	router.GET("/health", deps.Health)
	router.GET("/metrics", deps.Metrics)
}
