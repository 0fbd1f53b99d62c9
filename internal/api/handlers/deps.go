// Package handlers implements the Ingest Surface (C5) HTTP endpoints.
package handlers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/eventagg/aggregator/internal/ingest"
	"github.com/eventagg/aggregator/internal/model"
)

// StoreGateway is the subset of the Store Gateway the HTTP surface calls
// directly: reads, the batch insert, and the fixture reset (single-event
// writes go through the ingest pipeline).
type StoreGateway interface {
	GetEvents(ctx context.Context, topic string, limit, offset int) ([]model.Record, error)
	GetStatistics(ctx context.Context) (model.Statistics, error)
	HealthCheck(ctx context.Context) error
	ResetFixtures(ctx context.Context) error
	BatchInsertEventsAtomic(ctx context.Context, events []model.Event, workerID string) (total, newCount, duplicateCount int, err error)
}

// QueueBroker is the subset of the Queue Broker the HTTP surface uses.
type QueueBroker interface {
	PublishEvent(ctx context.Context, ev model.Event) error
	QueueSize(ctx context.Context) (int64, error)
	HealthCheck(ctx context.Context) error
}

// Workers reports worker pool liveness to /stats and /health.
type Workers interface {
	ActiveCount() int32
}

// Pipeline is the subset of the ingest pipeline used for the direct
// /publish path.
type Pipeline interface {
	Process(ctx context.Context, ev model.Event, workerID string) (ingest.Result, error)
}

// Dependencies are the dependencies handlers need; the Supervisor
// constructs these and hands references in, per spec.md §9's "explicitly
// passed dependencies" design note.
type Dependencies struct {
	Store     StoreGateway
	Broker    QueueBroker
	Pipeline  Pipeline
	Workers   Workers
	Version   string
	StartedAt time.Time
	Stopping  *atomic.Bool
}

const directWorkerID = "http-direct"

func (d *Dependencies) isShuttingDown() bool {
	return d.Stopping != nil && d.Stopping.Load()
}
