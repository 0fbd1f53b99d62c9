// Package model holds the wire and storage representation of ingest events.
package model

import (
	"encoding/json"
	"time"
)

// Event is the producer-supplied tuple identified by (Topic, EventID).
type Event struct {
	Topic     string          `json:"topic"`
	EventID   string          `json:"event_id"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
	Payload   json.RawMessage `json:"payload"`
}

// Key returns the unique dedup key for the event.
func (e Event) Key() string {
	return e.Topic + "/" + e.EventID
}

// Record is the durable projection of an Event as read back from the events table.
type Record struct {
	Topic       string          `json:"topic"`
	EventID     string          `json:"event_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Source      string          `json:"source"`
	Payload     json.RawMessage `json:"payload"`
	ReceivedAt  time.Time       `json:"received_at"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// Statistics is the aggregate view exposed by GET /stats.
type Statistics struct {
	Received         int64            `json:"received"`
	UniqueProcessed  int64            `json:"unique_processed"`
	DuplicateDropped int64            `json:"duplicate_dropped"`
	Topics           []string         `json:"topics"`
	TopicCounts      map[string]int64 `json:"topic_counts"`
}

// QueueEvent is the wire envelope stored on the Redis queue. Reserved keys
// introduced by the broker are prefixed with an underscore; producers must
// not use underscore-prefixed top-level keys of their own.
type QueueEvent struct {
	Event
	Retries  int    `json:"_retries,omitempty"`
	Error    string `json:"_error,omitempty"`
	FailedAt string `json:"_failed_at,omitempty"`

	// Raw is the exact bytes the broker read this entry as, kept only to let
	// the broker find and remove its processing-queue copy on ack/requeue/
	// dead-letter. Never serialised, never set by producers.
	Raw []byte `json:"-"`
}
