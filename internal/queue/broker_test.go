package queue_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/eventagg/aggregator/internal/config"
	"github.com/eventagg/aggregator/internal/model"
	"github.com/eventagg/aggregator/internal/queue"
)

func newTestBroker(t *testing.T) (*queue.Broker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := config.BrokerConfig{
		EventQueueName:  "events",
		ProcessingQueue: "events:processing",
		DeadLetterQueue: "events:dead",
	}
	return queue.NewWithClient(client, cfg), mr
}

func testEvent(id string) model.Event {
	return model.Event{
		Topic:     "app-logs",
		EventID:   id,
		Timestamp: time.Now().UTC(),
		Source:    "web-server",
		Payload:   []byte(`{}`),
	}
}

func TestBroker_PublishAndConsume_FIFOOrder(t *testing.T) {
	broker, _ := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, broker.PublishEvent(ctx, testEvent("evt-00000001")))
	require.NoError(t, broker.PublishEvent(ctx, testEvent("evt-00000002")))

	first, err := broker.ConsumeEvent(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	require.Equal(t, "evt-00000001", first.EventID)

	second, err := broker.ConsumeEvent(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, "evt-00000002", second.EventID)
}

func TestBroker_ConsumeEvent_TimeoutReturnsNilNotError(t *testing.T) {
	broker, _ := newTestBroker(t)

	qe, err := broker.ConsumeEvent(context.Background(), 10*time.Millisecond)

	require.NoError(t, err)
	require.Nil(t, qe)
}

func TestBroker_QueueSize(t *testing.T) {
	broker, _ := newTestBroker(t)
	ctx := context.Background()

	size, err := broker.QueueSize(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, size)

	require.NoError(t, broker.PublishEvent(ctx, testEvent("evt-00000003")))

	size, err = broker.QueueSize(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, size)
}

func TestBroker_PublishBatch(t *testing.T) {
	broker, _ := newTestBroker(t)
	ctx := context.Background()

	events := []model.Event{testEvent("evt-00000004"), testEvent("evt-00000005"), testEvent("evt-00000006")}
	n, err := broker.PublishBatch(ctx, events)

	require.NoError(t, err)
	require.Equal(t, 3, n)

	size, err := broker.QueueSize(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, size)
}

func TestBroker_Requeue_PreservesRetryMetadata(t *testing.T) {
	broker, _ := newTestBroker(t)
	ctx := context.Background()

	qe := model.QueueEvent{Event: testEvent("evt-00000007"), Retries: 2}
	require.NoError(t, broker.Requeue(ctx, qe))

	dequeued, err := broker.ConsumeEvent(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, dequeued)
	require.Equal(t, 2, dequeued.Retries)
}

func TestBroker_MoveToDeadLetter(t *testing.T) {
	broker, mr := newTestBroker(t)
	ctx := context.Background()

	qe := model.QueueEvent{Event: testEvent("evt-00000008")}
	require.NoError(t, broker.MoveToDeadLetter(ctx, qe, "boom"))

	raw, err := mr.Lpop("events:dead")
	require.NoError(t, err)

	var stored model.QueueEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	require.Equal(t, "boom", stored.Error)
	require.NotEmpty(t, stored.FailedAt)
}

func TestBroker_ConsumeEvent_HoldsEntryOnProcessingQueueUntilAck(t *testing.T) {
	broker, mr := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, broker.PublishEvent(ctx, testEvent("evt-00000009")))

	qe, err := broker.ConsumeEvent(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, qe)

	depth, err := mr.Llen("events:processing")
	require.NoError(t, err)
	require.Equal(t, 1, depth, "entry should be visible on the processing queue while held by the worker")

	require.NoError(t, broker.Ack(ctx, *qe))

	depth, err = mr.Llen("events:processing")
	require.NoError(t, err)
	require.Equal(t, 0, depth, "ack should clear the processing-queue copy")
}

func TestBroker_Requeue_ClearsProcessingQueueCopy(t *testing.T) {
	broker, mr := newTestBroker(t)
	ctx := context.Background()

	require.NoError(t, broker.PublishEvent(ctx, testEvent("evt-00000010")))

	qe, err := broker.ConsumeEvent(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, qe)

	qe.Retries++
	require.NoError(t, broker.Requeue(ctx, *qe))

	depth, err := mr.Llen("events:processing")
	require.NoError(t, err)
	require.Equal(t, 0, depth)

	requeued, err := broker.ConsumeEvent(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, requeued)
	require.Equal(t, 1, requeued.Retries)
}

func TestBroker_HealthCheck(t *testing.T) {
	broker, mr := newTestBroker(t)

	require.NoError(t, broker.HealthCheck(context.Background()))

	mr.Close()
	require.Error(t, broker.HealthCheck(context.Background()))
}
