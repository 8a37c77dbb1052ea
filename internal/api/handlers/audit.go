package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labeldispatch/internal/core"
)

type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]core.AuditEntry, error)
}

type ListAuditQuery struct {
	Limit int `form:"limit" binding:"min=0,max=500"`
}

type AuditHandler struct {
	reader AuditReader
}

func NewAuditHandler(reader AuditReader) *AuditHandler {
	return &AuditHandler{reader: reader}
}

func (h *AuditHandler) ListAudit(c *gin.Context) {
	var q ListAuditQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Limit == 0 {
		q.Limit = 50
	}

	entries, err := h.reader.Recent(c.Request.Context(), q.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit entries"})
		return
	}
	if entries == nil {
		entries = []core.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

func RegisterAuditRoutes(router *gin.RouterGroup, handler *AuditHandler) {
	router.GET("/audit", handler.ListAudit)
}
