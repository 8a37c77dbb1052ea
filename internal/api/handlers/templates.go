package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labeldispatch/internal/render"
)

// PreviewRequest carries a label template as stored with a job, plus the
// placeholder values to fill in.
type PreviewRequest struct {
	Schema    json.RawMessage   `json:"schema" binding:"required"`
	Variables map[string]string `json:"variables"`
}

type PreviewResponse struct {
	TSPLContent string   `json:"tspl_content"`
	Warnings    []string `json:"warnings,omitempty"`
}

type TemplateHandler struct {
	generator *render.Generator
}

func NewTemplateHandler() *TemplateHandler {
	return &TemplateHandler{generator: render.NewGenerator()}
}

// PreviewTemplate renders a template to TSPL without printing it.
func (h *TemplateHandler) PreviewTemplate(c *gin.Context) {
	var req PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "schema is required"})
		return
	}

	schema, err := h.generator.ParseSchema(req.Schema)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid template schema: %v", err)})
		return
	}

	tsplContent, err := h.generator.Generate(schema, req.Variables, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to generate preview: %v", err)})
		return
	}

	c.JSON(http.StatusOK, PreviewResponse{
		TSPLContent: tsplContent,
		Warnings:    schemaWarnings(schema),
	})
}

func schemaWarnings(schema *render.LabelSchema) []string {
	var warnings []string
	if schema.WidthMM <= 0 || schema.HeightMM <= 0 {
		warnings = append(warnings, "width_mm/height_mm not set, printers rely on PAPER_WIDTH and PAPER_HEIGHT")
	}
	if schema.GapMM == 0 {
		warnings = append(warnings, "gap_mm not specified, may cause alignment issues")
	}
	for name, def := range schema.Variables {
		if def.Required && def.Default == "" {
			warnings = append(warnings, fmt.Sprintf("variable '%s' is required with no default", name))
		}
	}
	return warnings
}

func RegisterTemplateRoutes(router *gin.RouterGroup, handler *TemplateHandler) {
	router.POST("/templates/preview", handler.PreviewTemplate)
}
