package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labeldispatch/internal/core"
)

// ServiceController is the start/stop surface of the scheduler.
type ServiceController interface {
	Start()
	Stop()
	Running() bool
	ActiveDestinations() []string
}

type HealthReader interface {
	Snapshot() core.HealthSnapshot
}

type StatusResponse struct {
	Running            bool                `json:"running"`
	ActiveDestinations []string            `json:"active_destinations"`
	Health             core.HealthSnapshot `json:"health"`
	Uptime             string              `json:"uptime"`
}

type ServiceHandler struct {
	controller ServiceController
	health     HealthReader
	now        func() time.Time
}

func NewServiceHandler(controller ServiceController, health HealthReader) *ServiceHandler {
	return &ServiceHandler{controller: controller, health: health, now: time.Now}
}

func (h *ServiceHandler) status() StatusResponse {
	snap := h.health.Snapshot()
	active := h.controller.ActiveDestinations()
	if active == nil {
		active = []string{}
	}
	resp := StatusResponse{
		Running:            h.controller.Running(),
		ActiveDestinations: active,
		Health:             snap,
	}
	if !snap.StartedAt.IsZero() {
		resp.Uptime = h.now().Sub(snap.StartedAt).Round(time.Second).String()
	}
	return resp
}

func (h *ServiceHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.status())
}

func (h *ServiceHandler) Start(c *gin.Context) {
	h.controller.Start()
	c.JSON(http.StatusOK, h.status())
}

func (h *ServiceHandler) Stop(c *gin.Context) {
	h.controller.Stop()
	c.JSON(http.StatusOK, h.status())
}

func (h *ServiceHandler) Restart(c *gin.Context) {
	h.controller.Stop()
	h.controller.Start()
	c.JSON(http.StatusOK, h.status())
}

func RegisterServiceRoutes(router *gin.RouterGroup, handler *ServiceHandler) {
	router.GET("/status", handler.GetStatus)
	service := router.Group("/service")
	{
		service.POST("/start", handler.Start)
		service.POST("/stop", handler.Stop)
		service.POST("/restart", handler.Restart)
	}
}
