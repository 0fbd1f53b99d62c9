// Package ingest is the glue (C4) between a validated event and the Store
// Gateway's idempotent-insert primitive.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/eventagg/aggregator/internal/apperr"
	"github.com/eventagg/aggregator/internal/audit"
	"github.com/eventagg/aggregator/internal/model"
)

const (
	maxFieldLength  = 255
	minEventIDLength = 8
)

// Store is the subset of the Store Gateway the pipeline depends on.
type Store interface {
	InsertEventIdempotent(ctx context.Context, ev model.Event, workerID string) (isNew bool, err error)
}

// Result is the caller-facing translation of a dedup decision.
type Result struct {
	IsNew       bool
	IsDuplicate bool
	ReceivedAt  time.Time
}

// Pipeline validates, normalises, and ingests a single event.
type Pipeline struct {
	store     Store
	publisher audit.Publisher
}

func New(store Store, publisher audit.Publisher) *Pipeline {
	if publisher == nil {
		publisher = audit.NoOpPublisher{}
	}
	return &Pipeline{store: store, publisher: publisher}
}

// Process validates ev, normalises its timestamp, and calls through to the
// Store Gateway, translating (ok, is_new) into the caller-facing Result.
func (p *Pipeline) Process(ctx context.Context, ev model.Event, workerID string) (Result, error) {
	normalised, err := Validate(ev)
	if err != nil {
		return Result{}, err
	}

	receivedAt := time.Now().UTC()

	isNew, err := p.store.InsertEventIdempotent(ctx, normalised, workerID)
	if err != nil {
		return Result{}, err
	}

	operation := "DUPLICATE"
	if isNew {
		operation = "INSERT"
	}
	p.publisher.PublishDecision(audit.DecisionEvent{
		Topic:     normalised.Topic,
		EventID:   normalised.EventID,
		Operation: operation,
		WorkerID:  workerID,
		At:        receivedAt,
	})

	return Result{IsNew: isNew, IsDuplicate: !isNew, ReceivedAt: receivedAt}, nil
}

// Validate enforces the typed contract of spec.md §3/§6.1 and returns a
// normalised copy of ev (trimmed fields).
func Validate(ev model.Event) (model.Event, error) {
	topic := strings.TrimSpace(ev.Topic)
	eventID := strings.TrimSpace(ev.EventID)
	source := strings.TrimSpace(ev.Source)

	if topic == "" {
		return model.Event{}, apperr.New(apperr.ValidationError, "topic must not be empty")
	}
	if len(topic) > maxFieldLength {
		return model.Event{}, apperr.New(apperr.ValidationError, "topic exceeds max length")
	}
	if eventID == "" {
		return model.Event{}, apperr.New(apperr.ValidationError, "event_id must not be empty")
	}
	if len(eventID) > maxFieldLength {
		return model.Event{}, apperr.New(apperr.ValidationError, "event_id exceeds max length")
	}
	if len(eventID) < minEventIDLength {
		return model.Event{}, apperr.New(apperr.ValidationError, "event_id must be at least 8 characters")
	}
	if source == "" {
		return model.Event{}, apperr.New(apperr.ValidationError, "source must not be empty")
	}
	if len(source) > maxFieldLength {
		return model.Event{}, apperr.New(apperr.ValidationError, "source exceeds max length")
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	ev.Topic = topic
	ev.EventID = eventID
	ev.Source = source
	if len(ev.Payload) == 0 {
		ev.Payload = []byte(`{}`)
	}

	return ev, nil
}
