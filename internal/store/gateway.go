// Package store is the sole owner of SQL connections and transactions for
// the aggregator. Every durable side effect of a dedup decision goes
// through the Gateway; no other package issues SQL.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventagg/aggregator/internal/apperr"
	"github.com/eventagg/aggregator/internal/config"
	"github.com/eventagg/aggregator/internal/model"
)

const (
	statReceived         = "received"
	statUniqueProcessed  = "unique_processed"
	statDuplicateDropped = "duplicate_dropped"
)

// Gateway is the transactional Store Gateway (C1).
type Gateway struct {
	pool *pgxpool.Pool
}

// New opens a connection pool and verifies connectivity.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Gateway, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.PoolMaxSize)
	poolConfig.MinConns = int32(cfg.PoolMinSize)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Gateway{pool: pool}, nil
}

// Close releases the connection pool.
func (g *Gateway) Close() {
	if g.pool != nil {
		g.pool.Close()
	}
}

// InsertEventIdempotent performs the conflict-aware insert pair described in
// the package's dedup contract: an events row is created only on the first
// successful insert for (topic, event_id); every call updates statistics
// and appends exactly one audit_log row.
func (g *Gateway) InsertEventIdempotent(ctx context.Context, ev model.Event, workerID string) (isNew bool, err error) {
	retryErr := withRetry(ctx, func(ctx context.Context) error {
		tx, txErr := g.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback(ctx)

		tag, insErr := tx.Exec(ctx, `
			INSERT INTO events (topic, event_id, timestamp, source, payload)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (topic, event_id) DO NOTHING
		`, ev.Topic, ev.EventID, ev.Timestamp, ev.Source, payloadOrEmpty(ev.Payload))
		if insErr != nil {
			return insErr
		}

		isNew = tag.RowsAffected() == 1

		if isNew {
			if _, perr := tx.Exec(ctx, `
				INSERT INTO processed_events (topic, event_id, worker_id)
				VALUES ($1, $2, $3)
				ON CONFLICT (topic, event_id) DO NOTHING
			`, ev.Topic, ev.EventID, workerID); perr != nil {
				return perr
			}
			if _, serr := tx.Exec(ctx, `UPDATE statistics SET stat_value = stat_value + 1, updated_at = now() WHERE stat_key = $1`, statUniqueProcessed); serr != nil {
				return serr
			}
			details, _ := json.Marshal(map[string]string{"source": ev.Source, "worker_id": workerID})
			if _, aerr := tx.Exec(ctx, `INSERT INTO audit_log (operation, topic, event_id, details) VALUES ('INSERT', $1, $2, $3)`, ev.Topic, ev.EventID, details); aerr != nil {
				return aerr
			}
		} else {
			if _, serr := tx.Exec(ctx, `UPDATE statistics SET stat_value = stat_value + 1, updated_at = now() WHERE stat_key = $1`, statDuplicateDropped); serr != nil {
				return serr
			}
			details, _ := json.Marshal(map[string]string{"worker_id": workerID})
			if _, aerr := tx.Exec(ctx, `INSERT INTO audit_log (operation, topic, event_id, details) VALUES ('DUPLICATE', $1, $2, $3)`, ev.Topic, ev.EventID, details); aerr != nil {
				return aerr
			}
		}

		if _, serr := tx.Exec(ctx, `UPDATE statistics SET stat_value = stat_value + 1, updated_at = now() WHERE stat_key = $1`, statReceived); serr != nil {
			return serr
		}

		return tx.Commit(ctx)
	})
	if retryErr != nil {
		return false, retryErr
	}
	return isNew, nil
}

// BatchInsertEventsAtomic applies the same conflict-aware insert to every
// event in a single transaction. Per spec.md §4.1 item 2, batch mode omits
// per-row audit_log entries (see DESIGN.md for the rationale) and instead
// applies one aggregate counter update at the end.
func (g *Gateway) BatchInsertEventsAtomic(ctx context.Context, events []model.Event, workerID string) (total, newCount, duplicateCount int, err error) {
	retryErr := withRetry(ctx, func(ctx context.Context) error {
		tx, txErr := g.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if txErr != nil {
			return txErr
		}
		defer tx.Rollback(ctx)

		newCount, duplicateCount = 0, 0

		for _, ev := range events {
			tag, insErr := tx.Exec(ctx, `
				INSERT INTO events (topic, event_id, timestamp, source, payload)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (topic, event_id) DO NOTHING
			`, ev.Topic, ev.EventID, ev.Timestamp, ev.Source, payloadOrEmpty(ev.Payload))
			if insErr != nil {
				return insErr
			}

			if tag.RowsAffected() == 1 {
				newCount++
				if _, perr := tx.Exec(ctx, `
					INSERT INTO processed_events (topic, event_id, worker_id)
					VALUES ($1, $2, $3)
					ON CONFLICT (topic, event_id) DO NOTHING
				`, ev.Topic, ev.EventID, workerID); perr != nil {
					return perr
				}
			} else {
				duplicateCount++
			}
		}

		total = len(events)

		if _, serr := tx.Exec(ctx, `UPDATE statistics SET stat_value = stat_value + $1, updated_at = now() WHERE stat_key = $2`, total, statReceived); serr != nil {
			return serr
		}
		if newCount > 0 {
			if _, serr := tx.Exec(ctx, `UPDATE statistics SET stat_value = stat_value + $1, updated_at = now() WHERE stat_key = $2`, newCount, statUniqueProcessed); serr != nil {
				return serr
			}
		}
		if duplicateCount > 0 {
			if _, serr := tx.Exec(ctx, `UPDATE statistics SET stat_value = stat_value + $1, updated_at = now() WHERE stat_key = $2`, duplicateCount, statDuplicateDropped); serr != nil {
				return serr
			}
		}

		return tx.Commit(ctx)
	})
	if retryErr != nil {
		return 0, 0, 0, retryErr
	}
	return total, newCount, duplicateCount, nil
}

// GetEvents returns events ordered by timestamp descending, optionally
// filtered by topic.
func (g *Gateway) GetEvents(ctx context.Context, topic string, limit, offset int) ([]model.Record, error) {
	var rows pgx.Rows
	var err error
	if topic != "" {
		rows, err = g.pool.Query(ctx, `
			SELECT topic, event_id, timestamp, source, payload, received_at, processed_at
			FROM events WHERE topic = $1
			ORDER BY timestamp DESC
			LIMIT $2 OFFSET $3
		`, topic, limit, offset)
	} else {
		rows, err = g.pool.Query(ctx, `
			SELECT topic, event_id, timestamp, source, payload, received_at, processed_at
			FROM events
			ORDER BY timestamp DESC
			LIMIT $1 OFFSET $2
		`, limit, offset)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "query events failed", err)
	}
	defer rows.Close()

	var records []model.Record
	for rows.Next() {
		var r model.Record
		var payload []byte
		if err := rows.Scan(&r.Topic, &r.EventID, &r.Timestamp, &r.Source, &payload, &r.ReceivedAt, &r.ProcessedAt); err != nil {
			return nil, apperr.Wrap(apperr.StoreUnavailable, "scan event row failed", err)
		}
		r.Payload = payload
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.StoreUnavailable, "iterate events failed", err)
	}
	return records, nil
}

// GetStatistics reads the aggregate counters and topic breakdown. No
// cross-query snapshot consistency is guaranteed, matching spec.md §4.1
// item 4.
func (g *Gateway) GetStatistics(ctx context.Context) (model.Statistics, error) {
	var stats model.Statistics
	stats.TopicCounts = make(map[string]int64)

	rows, err := g.pool.Query(ctx, `SELECT stat_key, stat_value FROM statistics`)
	if err != nil {
		return stats, apperr.Wrap(apperr.StoreUnavailable, "query statistics failed", err)
	}
	for rows.Next() {
		var key string
		var value int64
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return stats, apperr.Wrap(apperr.StoreUnavailable, "scan statistics failed", err)
		}
		switch key {
		case statReceived:
			stats.Received = value
		case statUniqueProcessed:
			stats.UniqueProcessed = value
		case statDuplicateDropped:
			stats.DuplicateDropped = value
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, apperr.Wrap(apperr.StoreUnavailable, "iterate statistics failed", err)
	}

	topicRows, err := g.pool.Query(ctx, `SELECT topic, count(*) FROM events GROUP BY topic`)
	if err != nil {
		return stats, apperr.Wrap(apperr.StoreUnavailable, "query topic counts failed", err)
	}
	defer topicRows.Close()

	for topicRows.Next() {
		var topic string
		var count int64
		if err := topicRows.Scan(&topic, &count); err != nil {
			return stats, apperr.Wrap(apperr.StoreUnavailable, "scan topic counts failed", err)
		}
		stats.Topics = append(stats.Topics, topic)
		stats.TopicCounts[topic] = count
	}
	if err := topicRows.Err(); err != nil {
		return stats, apperr.Wrap(apperr.StoreUnavailable, "iterate topic counts failed", err)
	}

	return stats, nil
}

// CheckEventExists is an advisory pre-check only; callers must still rely on
// InsertEventIdempotent for the dedup guarantee (see spec.md §4.1 item 5).
func (g *Gateway) CheckEventExists(ctx context.Context, topic, eventID string) (bool, error) {
	var exists bool
	err := g.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM events WHERE topic = $1 AND event_id = $2)`, topic, eventID).Scan(&exists)
	if err != nil {
		return false, apperr.Wrap(apperr.StoreUnavailable, "check event exists failed", err)
	}
	return exists, nil
}

// HealthCheck runs a trivial round trip against the pool.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	var one int
	if err := g.pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "health check failed", err)
	}
	return nil
}

// ResetFixtures truncates all event-related tables and re-seeds statistics
// at zero. Used only by DELETE /events for test fixtures.
func (g *Gateway) ResetFixtures(ctx context.Context) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "begin reset failed", err)
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []string{
		`TRUNCATE TABLE audit_log`,
		`TRUNCATE TABLE processed_events`,
		`TRUNCATE TABLE events`,
		`UPDATE statistics SET stat_value = 0, updated_at = now()`,
	} {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return apperr.Wrap(apperr.StoreUnavailable, "reset fixtures failed", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.StoreUnavailable, "commit reset failed", err)
	}
	return nil
}

func payloadOrEmpty(p json.RawMessage) json.RawMessage {
	if len(p) == 0 {
		return json.RawMessage(`{}`)
	}
	return p
}
