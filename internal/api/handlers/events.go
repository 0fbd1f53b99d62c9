package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eventagg/aggregator/internal/apperr"
	"github.com/eventagg/aggregator/internal/model"
)

const (
	defaultLimit = 100
	minLimit     = 1
	maxLimit     = 1000
)

type eventsResponse struct {
	Success bool           `json:"success"`
	Topic   string         `json:"topic"`
	Count   int            `json:"count"`
	Events  []model.Record `json:"events"`
}

// ListEvents handles GET /events?topic=&limit=&offset=.
func (d *Dependencies) ListEvents(c *gin.Context) {
	topic := c.Query("topic")

	limit := defaultLimit
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < minLimit || parsed > maxLimit {
			writeError(c, apperr.New(apperr.ValidationError, "limit must be between 1 and 1000"))
			return
		}
		limit = parsed
	}

	offset := 0
	if v := c.Query("offset"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(c, apperr.New(apperr.ValidationError, "offset must be >= 0"))
			return
		}
		offset = parsed
	}

	events, err := d.Store.GetEvents(c.Request.Context(), topic, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []model.Record{}
	}

	c.JSON(http.StatusOK, eventsResponse{
		Success: true,
		Topic:   topic,
		Count:   len(events),
		Events:  events,
	})
}

type resetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ResetEvents handles DELETE /events. Test fixtures only.
func (d *Dependencies) ResetEvents(c *gin.Context) {
	if err := d.Store.ResetFixtures(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resetResponse{Success: true, Message: "all events and statistics reset"})
}
