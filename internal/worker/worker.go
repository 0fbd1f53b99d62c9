// Package worker runs the cooperative consumer pool (C3) that drains the
// queue broker and invokes the ingest pipeline with retry+DLQ policy.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eventagg/aggregator/internal/apperr"
	"github.com/eventagg/aggregator/internal/config"
	"github.com/eventagg/aggregator/internal/ingest"
	"github.com/eventagg/aggregator/internal/logging"
	"github.com/eventagg/aggregator/internal/metrics"
	"github.com/eventagg/aggregator/internal/model"
)

const dequeueTimeout = 1 * time.Second

// Broker is the subset of the Queue Broker the pool depends on.
type Broker interface {
	ConsumeEvent(ctx context.Context, timeout time.Duration) (*model.QueueEvent, error)
	Ack(ctx context.Context, qe model.QueueEvent) error
	Requeue(ctx context.Context, qe model.QueueEvent) error
	MoveToDeadLetter(ctx context.Context, qe model.QueueEvent, errMsg string) error
}

// Pipeline is the subset of the ingest pipeline the pool depends on.
type Pipeline interface {
	Process(ctx context.Context, ev model.Event, workerID string) (ingest.Result, error)
}

// Pool is the Worker Pool (C3): N cooperative consumers, a shared stop-flag,
// and no persistent state of its own.
type Pool struct {
	broker   Broker
	pipeline Pipeline
	cfg      config.WorkerConfig

	stop   atomic.Bool
	active atomic.Int32
	wg     sync.WaitGroup
}

func New(broker Broker, pipeline Pipeline, cfg config.WorkerConfig) *Pool {
	return &Pool{broker: broker, pipeline: pipeline, cfg: cfg}
}

// Run launches cfg.Count workers. It returns immediately; workers stop when
// ctx is cancelled or Stop is called.
func (p *Pool) Run(ctx context.Context) {
	for i := 0; i < p.cfg.Count; i++ {
		workerID := fmt.Sprintf("worker-%d", i)
		p.wg.Add(1)
		go func(id string) {
			defer p.wg.Done()
			p.active.Add(1)
			metrics.IngestWorkersActive.Inc()
			defer p.active.Add(-1)
			defer metrics.IngestWorkersActive.Dec()
			p.runOne(ctx, id)
		}(workerID)
	}
}

// Stop flips the shared stop-flag; workers observe it between dequeue
// attempts and exit on their own.
func (p *Pool) Stop() {
	p.stop.Store(true)
}

// Wait blocks until every worker goroutine has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// ActiveCount reports the number of currently-running workers.
func (p *Pool) ActiveCount() int32 {
	return p.active.Load()
}

func (p *Pool) runOne(ctx context.Context, workerID string) {
	for !p.stop.Load() {
		if ctx.Err() != nil {
			return
		}

		qe, err := p.broker.ConsumeEvent(ctx, dequeueTimeout)
		if err != nil {
			logging.Warn("dequeue error", logging.F{"worker_id": workerID, "error": err.Error()})
			time.Sleep(1 * time.Second)
			continue
		}
		if qe == nil {
			continue // timeout, poll the stop-flag again
		}

		// A dequeued event is always carried to completion on a background
		// context so a shutdown mid-dequeue never drops already-popped work.
		p.process(context.Background(), workerID, *qe)
	}
}

func (p *Pool) process(ctx context.Context, workerID string, qe model.QueueEvent) {
	_, err := p.pipeline.Process(ctx, qe.Event, workerID)
	if err == nil {
		if aerr := p.broker.Ack(ctx, qe); aerr != nil {
			logging.Error("ack failed", aerr, logging.F{"worker_id": workerID, "topic": qe.Topic, "event_id": qe.EventID})
		}
		metrics.RecordIngestOutcome(qe.Topic, "processed")
		return
	}

	if apperr.KindOf(err) == apperr.ValidationError {
		logging.Error("dropping invalid queued event", err, logging.F{"worker_id": workerID, "topic": qe.Topic, "event_id": qe.EventID})
		if aerr := p.broker.Ack(ctx, qe); aerr != nil {
			logging.Error("ack failed", aerr, logging.F{"worker_id": workerID, "topic": qe.Topic, "event_id": qe.EventID})
		}
		metrics.RecordIngestOutcome(qe.Topic, "invalid")
		return
	}

	if qe.Retries < p.cfg.MaxRetries {
		qe.Retries++
		if rerr := p.broker.Requeue(ctx, qe); rerr != nil {
			logging.Error("requeue failed", rerr, logging.F{"worker_id": workerID, "topic": qe.Topic, "event_id": qe.EventID})
		}
		backoff := backoffDuration(p.cfg.RetryDelaySeconds, p.cfg.RetryBackoffMultiplier, qe.Retries)
		logging.Warn("event processing failed, retrying", logging.F{"worker_id": workerID, "topic": qe.Topic, "event_id": qe.EventID, "retries": qe.Retries, "backoff_seconds": backoff.Seconds()})
		metrics.RecordIngestOutcome(qe.Topic, "retry")
		// The backoff sleeps inside this failing worker, intentionally
		// shedding load from this worker rather than scheduling a delayed
		// redelivery elsewhere.
		time.Sleep(backoff)
		return
	}

	if derr := p.broker.MoveToDeadLetter(ctx, qe, err.Error()); derr != nil {
		logging.Error("move to dead letter failed", derr, logging.F{"worker_id": workerID, "topic": qe.Topic, "event_id": qe.EventID})
	}
	logging.Error("event exceeded max retries, dead-lettered", err, logging.F{"worker_id": workerID, "topic": qe.Topic, "event_id": qe.EventID})
	metrics.RecordIngestOutcome(qe.Topic, "dead_letter")
}

// backoffDuration computes retry_delay_seconds * retry_backoff_multiplier^(retries-1).
func backoffDuration(delaySeconds, multiplier float64, retries int) time.Duration {
	d := delaySeconds
	for i := 1; i < retries; i++ {
		d *= multiplier
	}
	return time.Duration(d * float64(time.Second))
}
