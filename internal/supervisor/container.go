// Package supervisor implements the Lifecycle/Supervisor (C6): startup
// ordering, graceful shutdown, and the process-wide state spec.md §5
// confines to it (stop-flag, worker handles, start time).
package supervisor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eventagg/aggregator/internal/api/handlers"
	"github.com/eventagg/aggregator/internal/api/routes"
	"github.com/eventagg/aggregator/internal/audit"
	"github.com/eventagg/aggregator/internal/config"
	"github.com/eventagg/aggregator/internal/ingest"
	"github.com/eventagg/aggregator/internal/logging"
	"github.com/eventagg/aggregator/internal/queue"
	"github.com/eventagg/aggregator/internal/store"
	"github.com/eventagg/aggregator/internal/worker"
)

// Container holds every long-lived component and wires them together in
// the order spec.md §4.6 requires: store -> broker -> audit publisher ->
// workers -> router/server.
type Container struct {
	Config   *config.Config
	Store    *store.Gateway
	Broker   *queue.Broker
	Audit    audit.Publisher
	Workers  *worker.Pool
	Router   *gin.Engine
	Server   *http.Server
	started  time.Time
	stopping atomic.Bool
}

var (
	instance     *Container
	instanceOnce sync.Once
	instanceErr  error
)

// GetInstance returns the process-wide singleton container.
func GetInstance() (*Container, error) {
	instanceOnce.Do(func() {
		instance, instanceErr = newContainer()
	})
	return instance, instanceErr
}

// New is an alias kept for call-site symmetry with the teacher's
// components.New().
func New() (*Container, error) {
	return GetInstance()
}

func newContainer() (*Container, error) {
	c := &Container{started: time.Now()}

	c.Config = config.Load()
	logging.Init(c.Config.Logging)
	logging.Info("configuration loaded", logging.F{"log_level": c.Config.Logging.Level})

	ctx := context.Background()

	gateway, err := store.New(ctx, c.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	c.Store = gateway
	logging.Info("store gateway connected", logging.F{"database": c.Config.Database.Database})

	broker, err := queue.New(c.Config.Broker)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize queue broker: %w", err)
	}
	c.Broker = broker
	logging.Info("queue broker connected", logging.F{"event_queue": c.Config.Broker.EventQueueName})

	auditPublisher, err := audit.NewPublisher(c.Config.Kafka)
	if err != nil {
		logging.Warn("failed to initialize audit publisher, falling back to no-op", logging.F{"error": err.Error()})
		auditPublisher = audit.NoOpPublisher{}
	}
	c.Audit = auditPublisher

	pipeline := ingest.New(c.Store, c.Audit)

	c.Workers = worker.New(c.Broker, pipeline, c.Config.Worker)
	c.Workers.Run(ctx)
	logging.Info("worker pool started", logging.F{"worker_count": c.Config.Worker.Count})

	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	c.Router = gin.New()
	c.Router.Use(gin.Recovery())

	deps := &handlers.Dependencies{
		Store:     c.Store,
		Broker:    c.Broker,
		Pipeline:  pipeline,
		Workers:   c.Workers,
		Version:   c.Config.Version,
		StartedAt: c.started,
		Stopping:  &c.stopping,
	}
	routes.Register(c.Router, c.Config.CORS, deps)

	c.Server = &http.Server{
		Addr:           ":" + c.Config.Server.Port,
		Handler:        c.Router,
		ReadTimeout:    c.Config.Server.ReadTimeout,
		WriteTimeout:   c.Config.Server.WriteTimeout,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	logging.Info("all components initialized", nil)
	return c, nil
}

// Start begins serving HTTP and blocks until a shutdown signal arrives.
func (c *Container) Start() error {
	logging.Info("starting HTTP server", logging.F{"address": c.Server.Addr})

	go func() {
		if err := c.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("server failed to start", err, nil)
			os.Exit(1)
		}
	}()

	c.waitForShutdown()
	return nil
}

func (c *Container) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info("shutting down", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.Shutdown(ctx); err != nil {
		logging.Error("forced shutdown", err, nil)
	}

	logging.Info("shutdown complete", nil)
}

// Shutdown reverses startup order: HTTP server -> workers -> queue -> store
// -> audit publisher, matching spec.md §4.6.
func (c *Container) Shutdown(ctx context.Context) error {
	c.stopping.Store(true)

	if err := c.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	c.Workers.Stop()
	workersDone := make(chan struct{})
	go func() {
		c.Workers.Wait()
		close(workersDone)
	}()
	select {
	case <-workersDone:
	case <-ctx.Done():
		logging.Warn("timed out waiting for workers to drain", nil)
	}

	if err := c.Broker.Close(); err != nil {
		logging.Error("failed to close broker", err, nil)
	}

	c.Store.Close()

	if err := c.Audit.Close(); err != nil {
		logging.Error("failed to close audit publisher", err, nil)
	}

	return nil
}

// Uptime reports how long the container has been running.
func (c *Container) Uptime() time.Duration {
	return time.Since(c.started)
}
