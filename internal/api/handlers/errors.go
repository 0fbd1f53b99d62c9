package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eventagg/aggregator/internal/apperr"
)

type errorEnvelope struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Detail    string `json:"detail"`
	Timestamp string `json:"timestamp"`
}

// writeError maps an apperr.Kind to the HTTP status taxonomy of spec.md §7
// and writes the {success, error, detail, timestamp} envelope.
func writeError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)

	status := http.StatusInternalServerError
	switch kind {
	case apperr.ValidationError:
		status = http.StatusUnprocessableEntity
	case apperr.StoreUnavailable, apperr.BrokerUnavailable, apperr.InternalError:
		status = http.StatusInternalServerError
	case apperr.ShuttingDown:
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, errorEnvelope{
		Success:   false,
		Error:     string(kind),
		Detail:    err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
