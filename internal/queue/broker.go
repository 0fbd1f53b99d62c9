// Package queue is the sole owner of the Redis-backed FIFO queue and its
// dead-letter sink (C2). No other package touches these keys directly.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventagg/aggregator/internal/apperr"
	"github.com/eventagg/aggregator/internal/config"
	"github.com/eventagg/aggregator/internal/model"
)

// Broker is the Queue Broker (C2): primary FIFO queue, a visibility
// processing queue entries sit on while a worker holds them, and a
// dead-letter list.
type Broker struct {
	client          *redis.Client
	eventQueue      string
	processingQueue string
	deadLetterQueue string
}

// New creates a Broker from a redis:// URL.
func New(cfg config.BrokerConfig) (*Broker, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, apperr.Wrap(apperr.BrokerUnavailable, "parse broker url", err)
	}
	if cfg.MaxConnections > 0 {
		opts.PoolSize = cfg.MaxConnections
	}
	return NewWithClient(redis.NewClient(opts), cfg), nil
}

// NewWithClient wraps an already-constructed client (used by tests against
// miniredis).
func NewWithClient(client *redis.Client, cfg config.BrokerConfig) *Broker {
	return &Broker{
		client:          client,
		eventQueue:      cfg.EventQueueName,
		processingQueue: cfg.ProcessingQueue,
		deadLetterQueue: cfg.DeadLetterQueue,
	}
}

// Close releases the underlying Redis client.
func (b *Broker) Close() error {
	return b.client.Close()
}

// PublishEvent pushes a single event onto the head of the primary queue.
func (b *Broker) PublishEvent(ctx context.Context, ev model.Event) error {
	payload, err := json.Marshal(model.QueueEvent{Event: ev})
	if err != nil {
		return apperr.Wrap(apperr.BrokerUnavailable, "marshal event", err)
	}
	if err := b.client.LPush(ctx, b.eventQueue, payload).Err(); err != nil {
		return apperr.Wrap(apperr.BrokerUnavailable, "publish event", err)
	}
	return nil
}

// publishRaw re-publishes an already-serialised queue entry (used for
// retry re-enqueue, where _retries/_error must be preserved verbatim).
func (b *Broker) publishRaw(ctx context.Context, payload []byte) error {
	if err := b.client.LPush(ctx, b.eventQueue, payload).Err(); err != nil {
		return apperr.Wrap(apperr.BrokerUnavailable, "re-publish event", err)
	}
	return nil
}

// PublishBatch pushes every event atomically using a transactional pipeline
// so the whole batch becomes visible together.
func (b *Broker) PublishBatch(ctx context.Context, events []model.Event) (int, error) {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, ev := range events {
			payload, merr := json.Marshal(model.QueueEvent{Event: ev})
			if merr != nil {
				return merr
			}
			pipe.LPush(ctx, b.eventQueue, payload)
		}
		return nil
	})
	if err != nil {
		return 0, apperr.Wrap(apperr.BrokerUnavailable, "publish batch", err)
	}
	return len(events), nil
}

// ConsumeEvent blocking-moves an entry from the tail of the primary queue
// onto the processing queue (a classic RPOPLPUSH reliable-queue pattern),
// returning nil on timeout (not an error). The entry stays visible on the
// processing queue until Ack, Requeue, or MoveToDeadLetter clears it, so a
// worker crash mid-processing leaves evidence of in-flight work rather than
// silently dropping it.
func (b *Broker) ConsumeEvent(ctx context.Context, timeout time.Duration) (*model.QueueEvent, error) {
	result, err := b.client.BRPopLPush(ctx, b.eventQueue, b.processingQueue, timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.BrokerUnavailable, "consume event", err)
	}

	var qe model.QueueEvent
	if err := json.Unmarshal([]byte(result), &qe); err != nil {
		return nil, apperr.Wrap(apperr.BrokerUnavailable, "unmarshal queue event", err)
	}
	qe.Raw = []byte(result)
	return &qe, nil
}

// Ack clears a successfully processed (or deliberately discarded) entry from
// the processing queue.
func (b *Broker) Ack(ctx context.Context, qe model.QueueEvent) error {
	return b.removeFromProcessing(ctx, qe.Raw)
}

// Requeue re-publishes a queue event with its retry count as given (the
// caller increments it and sleeps the backoff afterward), and clears its
// processing-queue copy.
func (b *Broker) Requeue(ctx context.Context, qe model.QueueEvent) error {
	raw := qe.Raw
	qe.Raw = nil
	payload, err := json.Marshal(qe)
	if err != nil {
		return apperr.Wrap(apperr.BrokerUnavailable, "marshal requeue event", err)
	}
	if err := b.publishRaw(ctx, payload); err != nil {
		return err
	}
	return b.removeFromProcessing(ctx, raw)
}

// removeFromProcessing drops one copy of raw from the processing queue. A
// nil/empty raw means the entry never went through ConsumeEvent (e.g. a test
// constructing a QueueEvent by hand); there is nothing to clear.
func (b *Broker) removeFromProcessing(ctx context.Context, raw []byte) error {
	if len(raw) == 0 {
		return nil
	}
	if err := b.client.LRem(ctx, b.processingQueue, 1, raw).Err(); err != nil {
		return apperr.Wrap(apperr.BrokerUnavailable, "remove from processing queue", err)
	}
	return nil
}

// QueueSize returns the length of the primary queue.
func (b *Broker) QueueSize(ctx context.Context) (int64, error) {
	n, err := b.client.LLen(ctx, b.eventQueue).Result()
	if err != nil {
		return 0, apperr.Wrap(apperr.BrokerUnavailable, "queue size", err)
	}
	return n, nil
}

// MoveToDeadLetter annotates the event with the failure, pushes it onto the
// dead-letter list, and clears its processing-queue copy.
func (b *Broker) MoveToDeadLetter(ctx context.Context, qe model.QueueEvent, errMsg string) error {
	raw := qe.Raw
	qe.Raw = nil
	qe.Error = errMsg
	qe.FailedAt = time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(qe)
	if err != nil {
		return apperr.Wrap(apperr.BrokerUnavailable, "marshal dead letter event", err)
	}
	if err := b.client.LPush(ctx, b.deadLetterQueue, payload).Err(); err != nil {
		return apperr.Wrap(apperr.BrokerUnavailable, "move to dead letter", err)
	}
	return b.removeFromProcessing(ctx, raw)
}

// HealthCheck pings the broker.
func (b *Broker) HealthCheck(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return apperr.Wrap(apperr.BrokerUnavailable, "broker health check", err)
	}
	return nil
}
