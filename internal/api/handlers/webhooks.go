package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labeldispatch/internal/core"
)

// HealthPublisher pushes a snapshot to every configured health sink.
type HealthPublisher interface {
	Publish(ctx context.Context, snap core.HealthSnapshot) error
}

type PublishHealthResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Health  core.HealthSnapshot `json:"health"`
}

// PublishHandler lets an operator push the live snapshot without waiting
// for a batch to finish, e.g. to check webhook or Redis delivery.
type PublishHandler struct {
	sinks HealthPublisher
	live  HealthReader
}

func NewPublishHandler(sinks HealthPublisher, live HealthReader) *PublishHandler {
	return &PublishHandler{sinks: sinks, live: live}
}

func (h *PublishHandler) PublishNow(c *gin.Context) {
	snap := h.live.Snapshot()
	if err := h.sinks.Publish(c.Request.Context(), snap); err != nil {
		c.JSON(http.StatusBadGateway, PublishHealthResponse{
			Success: false,
			Message: err.Error(),
			Health:  snap,
		})
		return
	}
	c.JSON(http.StatusOK, PublishHealthResponse{
		Success: true,
		Message: "Health snapshot published",
		Health:  snap,
	})
}

func RegisterPublishRoutes(router *gin.RouterGroup, handler *PublishHandler) {
	router.POST("/health/publish", handler.PublishNow)
}
