//go:build integration

package store_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eventagg/aggregator/internal/config"
	"github.com/eventagg/aggregator/internal/model"
	"github.com/eventagg/aggregator/internal/store"
)

// setupGateway starts a fresh PostgreSQL testcontainer for the calling
// test, applies the init migration, and returns a connected Gateway.
func setupGateway(t *testing.T) *store.Gateway {
	t.Helper()
	ctx := context.Background()

	migrationPath, err := migrationsAbsPath()
	require.NoError(t, err)

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("aggregator"),
		tcpostgres.WithUsername("aggregator"),
		tcpostgres.WithPassword("aggregator_test_pass"),
		tcpostgres.WithInitScripts(migrationPath),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres testcontainer")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		Database:        "aggregator",
		User:            "aggregator",
		Password:        "aggregator_test_pass",
		SSLMode:         "disable",
		PoolMinSize:     1,
		PoolMaxSize:     10,
		ConnMaxLifetime: 30 * time.Minute,
	}

	gateway, err := store.New(ctx, cfg)
	require.NoError(t, err, "failed to connect gateway to testcontainer")
	t.Cleanup(gateway.Close)

	return gateway
}

func migrationsAbsPath() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return wd + "/migrations/0001_init.sql", nil
}

func testEvent(topic, eventID string) model.Event {
	return model.Event{
		Topic:     topic,
		EventID:   eventID,
		Timestamp: time.Now().UTC(),
		Source:    "web-server",
		Payload:   []byte(`{"level":"INFO"}`),
	}
}

// TestInsertEventIdempotent_NewEvent covers scenario 1 of spec.md §8.
func TestInsertEventIdempotent_NewEvent(t *testing.T) {
	gw := setupGateway(t)
	ctx := context.Background()

	isNew, err := gw.InsertEventIdempotent(ctx, testEvent("t", "abcd1234"), "worker-1")

	require.NoError(t, err)
	require.True(t, isNew)

	stats, err := gw.GetStatistics(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Received)
	require.EqualValues(t, 1, stats.UniqueProcessed)
	require.EqualValues(t, 0, stats.DuplicateDropped)
}

// TestInsertEventIdempotent_DuplicateIsSilenced covers scenario 2 of spec.md §8.
func TestInsertEventIdempotent_DuplicateIsSilenced(t *testing.T) {
	gw := setupGateway(t)
	ctx := context.Background()
	ev := testEvent("t", "dupe1234")

	first, err := gw.InsertEventIdempotent(ctx, ev, "worker-1")
	require.NoError(t, err)
	require.True(t, first)

	second, err := gw.InsertEventIdempotent(ctx, ev, "worker-2")
	require.NoError(t, err)
	require.False(t, second)

	events, err := gw.GetEvents(ctx, "t", 100, 0)
	require.NoError(t, err)
	count := 0
	for _, e := range events {
		if e.EventID == "dupe1234" {
			count++
		}
	}
	require.Equal(t, 1, count, "exactly one durable row for the duplicated key")
}

// TestInsertEventIdempotent_ConcurrentStorm covers scenario 3 of spec.md §8 —
// (P1) exactly-once-effective under ten concurrent submissions of the same key.
func TestInsertEventIdempotent_ConcurrentStorm(t *testing.T) {
	gw := setupGateway(t)
	ctx := context.Background()
	ev := testEvent("storm", "storm123")

	const n = 10
	results := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			isNew, err := gw.InsertEventIdempotent(ctx, ev, "worker-storm")
			require.NoError(t, err)
			results[idx] = isNew
		}(i)
	}
	wg.Wait()

	newCount := 0
	for _, r := range results {
		if r {
			newCount++
		}
	}
	require.Equal(t, 1, newCount, "exactly one submission should win the insert")

	events, err := gw.GetEvents(ctx, "storm", 100, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

// TestBatchInsertEventsAtomic_InternalDuplicates covers scenario 4 of spec.md §8.
func TestBatchInsertEventsAtomic_InternalDuplicates(t *testing.T) {
	gw := setupGateway(t)
	ctx := context.Background()

	events := make([]model.Event, 5)
	for i := range events {
		events[i] = testEvent("bt", "dupA1234")
	}

	total, newCount, dupCount, err := gw.BatchInsertEventsAtomic(ctx, events, "worker-batch")

	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Equal(t, 1, newCount)
	require.Equal(t, 4, dupCount)
}

// TestInsertEventIdempotent_CrossTopicSameID covers scenario 5 (P5, topic
// isolation) of spec.md §8.
func TestInsertEventIdempotent_CrossTopicSameID(t *testing.T) {
	gw := setupGateway(t)
	ctx := context.Background()

	isNewA, err := gw.InsertEventIdempotent(ctx, testEvent("A", "xid12345"), "worker-1")
	require.NoError(t, err)
	require.True(t, isNewA)

	isNewB, err := gw.InsertEventIdempotent(ctx, testEvent("B", "xid12345"), "worker-1")
	require.NoError(t, err)
	require.True(t, isNewB)

	eventsA, err := gw.GetEvents(ctx, "A", 100, 0)
	require.NoError(t, err)
	require.Len(t, eventsA, 1)

	eventsB, err := gw.GetEvents(ctx, "B", 100, 0)
	require.NoError(t, err)
	require.Len(t, eventsB, 1)
}

func TestCheckEventExists(t *testing.T) {
	gw := setupGateway(t)
	ctx := context.Background()

	exists, err := gw.CheckEventExists(ctx, "t", "missing1")
	require.NoError(t, err)
	require.False(t, exists)

	_, err = gw.InsertEventIdempotent(ctx, testEvent("t", "present1"), "worker-1")
	require.NoError(t, err)

	exists, err = gw.CheckEventExists(ctx, "t", "present1")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestResetFixtures_ClearsEventsAndStatistics(t *testing.T) {
	gw := setupGateway(t)
	ctx := context.Background()

	_, err := gw.InsertEventIdempotent(ctx, testEvent("t", "reset123"), "worker-1")
	require.NoError(t, err)

	require.NoError(t, gw.ResetFixtures(ctx))

	stats, err := gw.GetStatistics(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, stats.Received)

	events, err := gw.GetEvents(ctx, "t", 100, 0)
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestHealthCheck(t *testing.T) {
	gw := setupGateway(t)
	require.NoError(t, gw.HealthCheck(context.Background()))
}
