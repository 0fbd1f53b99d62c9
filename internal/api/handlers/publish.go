package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eventagg/aggregator/internal/apperr"
	"github.com/eventagg/aggregator/internal/ingest"
	"github.com/eventagg/aggregator/internal/model"
)

const (
	minBatchSize = 1
	maxBatchSize = 1000
)

type publishResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	EventID     string `json:"event_id"`
	IsDuplicate bool   `json:"is_duplicate"`
	ReceivedAt  string `json:"received_at"`
}

// Publish handles POST /publish: the direct path straight into the ingest
// pipeline (C5 -> C4 -> C1).
func (d *Dependencies) Publish(c *gin.Context) {
	if d.isShuttingDown() {
		writeError(c, apperr.New(apperr.ShuttingDown, "server is shutting down"))
		return
	}

	var ev model.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		writeError(c, apperr.Wrap(apperr.ValidationError, "invalid request body", err))
		return
	}

	result, err := d.Pipeline.Process(c.Request.Context(), ev, directWorkerID)
	if err != nil {
		writeError(c, err)
		return
	}

	message := "Event published successfully"
	if result.IsDuplicate {
		message = "Event already processed (duplicate)"
	}

	c.JSON(http.StatusOK, publishResponse{
		Success:     true,
		Message:     message,
		EventID:     ev.EventID,
		IsDuplicate: result.IsDuplicate,
		ReceivedAt:  result.ReceivedAt.Format(rfc3339),
	})
}

type batchRequest struct {
	Events []model.Event `json:"events"`
}

type batchResponse struct {
	Success           bool `json:"success"`
	TotalReceived     int  `json:"total_received"`
	UniqueProcessed   int  `json:"unique_processed"`
	DuplicatesDropped int  `json:"duplicates_dropped"`
	Failed            int  `json:"failed"`
}

// PublishBatch handles POST /publish/batch: a single atomic transaction
// covering every syntactically-valid event in the batch.
func (d *Dependencies) PublishBatch(c *gin.Context) {
	if d.isShuttingDown() {
		writeError(c, apperr.New(apperr.ShuttingDown, "server is shutting down"))
		return
	}

	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Wrap(apperr.ValidationError, "invalid request body", err))
		return
	}
	if len(req.Events) < minBatchSize || len(req.Events) > maxBatchSize {
		writeError(c, apperr.New(apperr.ValidationError, "events must contain between 1 and 1000 items"))
		return
	}

	valid := make([]model.Event, 0, len(req.Events))
	failed := 0
	for _, ev := range req.Events {
		normalised, err := ingest.Validate(ev)
		if err != nil {
			failed++
			continue
		}
		valid = append(valid, normalised)
	}

	var total, newCount, duplicateCount int
	if len(valid) > 0 {
		var err error
		total, newCount, duplicateCount, err = d.Store.BatchInsertEventsAtomic(c.Request.Context(), valid, directWorkerID)
		if err != nil {
			writeError(c, err)
			return
		}
	}

	c.JSON(http.StatusOK, batchResponse{
		Success:           true,
		TotalReceived:     total,
		UniqueProcessed:   newCount,
		DuplicatesDropped: duplicateCount,
		Failed:            failed,
	})
}

// PublishQueue handles POST /publish/queue: enqueues onto the async path
// (C5 -> C2). The dedup decision happens later in a worker, so is_duplicate
// is always false here by construction (see spec.md §9 design notes).
func (d *Dependencies) PublishQueue(c *gin.Context) {
	if d.isShuttingDown() {
		writeError(c, apperr.New(apperr.ShuttingDown, "server is shutting down"))
		return
	}

	var ev model.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		writeError(c, apperr.Wrap(apperr.ValidationError, "invalid request body", err))
		return
	}

	normalised, err := ingest.Validate(ev)
	if err != nil {
		writeError(c, err)
		return
	}

	if err := d.Broker.PublishEvent(c.Request.Context(), normalised); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, publishResponse{
		Success:     true,
		Message:     "Event queued for processing",
		EventID:     normalised.EventID,
		IsDuplicate: false,
		ReceivedAt:  nowRFC3339(),
	})
}
