package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventagg/aggregator/internal/apperr"
	"github.com/eventagg/aggregator/internal/config"
	"github.com/eventagg/aggregator/internal/ingest"
	"github.com/eventagg/aggregator/internal/model"
	"github.com/eventagg/aggregator/internal/worker"
)

type fakeBroker struct {
	mu         sync.Mutex
	queue      []model.QueueEvent
	acked      []model.QueueEvent
	requeued   []model.QueueEvent
	deadLetter []model.QueueEvent
}

func (f *fakeBroker) push(qe model.QueueEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, qe)
}

func (f *fakeBroker) ConsumeEvent(ctx context.Context, timeout time.Duration) (*model.QueueEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	qe := f.queue[0]
	f.queue = f.queue[1:]
	return &qe, nil
}

func (f *fakeBroker) Ack(ctx context.Context, qe model.QueueEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, qe)
	return nil
}

func (f *fakeBroker) Requeue(ctx context.Context, qe model.QueueEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued = append(f.requeued, qe)
	f.queue = append(f.queue, qe)
	return nil
}

func (f *fakeBroker) MoveToDeadLetter(ctx context.Context, qe model.QueueEvent, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLetter = append(f.deadLetter, qe)
	return nil
}

func (f *fakeBroker) ackedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acked)
}

func (f *fakeBroker) requeuedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requeued)
}

func (f *fakeBroker) deadLetterCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deadLetter)
}

type fakePipeline struct {
	mu        sync.Mutex
	processed []model.Event
	err       error
}

func (f *fakePipeline) Process(ctx context.Context, ev model.Event, workerID string) (ingest.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, ev)
	if f.err != nil {
		return ingest.Result{}, f.err
	}
	return ingest.Result{IsNew: true}, nil
}

func (f *fakePipeline) processedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processed)
}

func testQueueEvent(id string) model.QueueEvent {
	return model.QueueEvent{Event: model.Event{
		Topic:   "app-logs",
		EventID: id,
		Source:  "web-server",
		Payload: []byte(`{}`),
	}}
}

func TestPool_Run_ProcessesQueuedEvents(t *testing.T) {
	broker := &fakeBroker{}
	broker.push(testQueueEvent("evt-00000001"))
	broker.push(testQueueEvent("evt-00000002"))
	pipeline := &fakePipeline{}

	pool := worker.New(broker, pipeline, config.WorkerConfig{Count: 2, MaxRetries: 3, RetryDelaySeconds: 0.01, RetryBackoffMultiplier: 2})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Run(ctx)

	require.Eventually(t, func() bool { return pipeline.processedCount() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return broker.ackedCount() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	pool.Stop()
	pool.Wait()
}

func TestPool_Stop_HaltsWorkersCleanly(t *testing.T) {
	broker := &fakeBroker{}
	pipeline := &fakePipeline{}

	pool := worker.New(broker, pipeline, config.WorkerConfig{Count: 3, MaxRetries: 3, RetryDelaySeconds: 0.01, RetryBackoffMultiplier: 2})

	ctx := context.Background()
	pool.Run(ctx)

	require.Eventually(t, func() bool { return pool.ActiveCount() == 3 }, time.Second, 5*time.Millisecond)

	pool.Stop()
	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("workers did not stop in time")
	}

	assert.Equal(t, int32(0), pool.ActiveCount())
}

func TestPool_RetriesThenDeadLettersOnPersistentFailure(t *testing.T) {
	broker := &fakeBroker{}
	broker.push(testQueueEvent("evt-00000003"))
	pipeline := &fakePipeline{err: apperr.New(apperr.WorkerProcessFailure, "boom")}

	pool := worker.New(broker, pipeline, config.WorkerConfig{Count: 1, MaxRetries: 1, RetryDelaySeconds: 0.001, RetryBackoffMultiplier: 1})

	ctx := context.Background()
	pool.Run(ctx)

	require.Eventually(t, func() bool { return broker.deadLetterCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, broker.requeuedCount())

	pool.Stop()
	pool.Wait()
}
