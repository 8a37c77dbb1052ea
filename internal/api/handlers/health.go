package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labeldispatch/internal/core"
)

// PublishedHealth returns the last snapshot pushed to the health sinks.
type PublishedHealth interface {
	Get() (core.HealthSnapshot, bool)
}

type HealthHandler struct {
	published PublishedHealth
	live      HealthReader
}

func NewHealthHandler(published PublishedHealth, live HealthReader) *HealthHandler {
	return &HealthHandler{published: published, live: live}
}

// Healthz serves the published snapshot, or the live one before the first
// batch has completed.
func (h *HealthHandler) Healthz(c *gin.Context) {
	if h.published != nil {
		if snap, ok := h.published.Get(); ok {
			c.JSON(http.StatusOK, snap)
			return
		}
	}
	c.JSON(http.StatusOK, h.live.Snapshot())
}
