package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labeldispatch/internal/core"
)

// PendingLister reads the job source's current backlog.
type PendingLister interface {
	FetchPending(ctx context.Context) ([]core.JobOrder, error)
}

type PendingJobResponse struct {
	ID        int64  `json:"id"`
	PrinterNo string `json:"printer_no,omitempty"`
	Command   string `json:"command"`
}

type DestinationQueueResponse struct {
	Destination string               `json:"destination"`
	Active      bool                 `json:"active"`
	Jobs        []PendingJobResponse `json:"jobs"`
}

type QueueResponse struct {
	Total        int                        `json:"total"`
	Destinations []DestinationQueueResponse `json:"destinations"`
}

type JobHandler struct {
	source     PendingLister
	controller ServiceController
}

func NewJobHandler(source PendingLister, controller ServiceController) *JobHandler {
	return &JobHandler{source: source, controller: controller}
}

// ListPending shows the backlog grouped the way the next pass will dispatch
// it. Active marks destinations that already have a worker.
func (h *JobHandler) ListPending(c *gin.Context) {
	orders, err := h.source.FetchPending(c.Request.Context())
	if err != nil {
		msg := err.Error()
		if details := core.ErrorDetails(err); details != "" {
			msg += " Details: " + details
		}
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "job_source_error",
			Message: msg,
		})
		return
	}

	active := make(map[string]bool)
	for _, d := range h.controller.ActiveDestinations() {
		active[d] = true
	}

	resp := QueueResponse{Total: len(orders), Destinations: []DestinationQueueResponse{}}
	for _, batch := range core.GroupByDestination(orders) {
		q := DestinationQueueResponse{
			Destination: batch.Destination,
			Active:      active[batch.Destination],
			Jobs:        make([]PendingJobResponse, 0, len(batch.Jobs)),
		}
		for _, o := range batch.Jobs {
			q.Jobs = append(q.Jobs, PendingJobResponse{ID: o.ID, PrinterNo: o.PrinterNo, Command: o.Command})
		}
		resp.Destinations = append(resp.Destinations, q)
	}
	c.JSON(http.StatusOK, resp)
}

func RegisterJobRoutes(router *gin.RouterGroup, handler *JobHandler) {
	router.GET("/jobs/pending", handler.ListPending)
}
