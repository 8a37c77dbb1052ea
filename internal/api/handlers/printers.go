package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labeldispatch/internal/core"
	"github.com/orrn/labeldispatch/internal/printer"
	"github.com/orrn/labeldispatch/internal/render"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// PrinterDiagnostics is the part of the printer client the diagnostics routes use.
type PrinterDiagnostics interface {
	CheckStatus(ctx context.Context, addr string) (*printer.Status, error)
	Print(ctx context.Context, addr string, artifact *core.Artifact) (bool, error)
}

type PrinterStatusResponse struct {
	Address      string    `json:"address"`
	Status       string    `json:"status"`
	PrinterState string    `json:"printer_state"`
	Warning      string    `json:"warning"`
	Error        string    `json:"error"`
	MediaError   string    `json:"media_error"`
	IsOnline     bool      `json:"is_online"`
	CanPrint     bool      `json:"can_print"`
	LastChecked  time.Time `json:"last_checked"`
}

type TestPrintRequest struct {
	Name     string  `json:"name"`
	WidthMM  float64 `json:"width_mm" binding:"omitempty,gt=0"`
	HeightMM float64 `json:"height_mm" binding:"omitempty,gt=0"`
}

type PrinterHandler struct {
	printers PrinterDiagnostics
	now   func() time.Time
}

func NewPrinterHandler(printers PrinterDiagnostics) *PrinterHandler {
	return &PrinterHandler{printers: printers, now: time.Now}
}

func (h *PrinterHandler) parseAddress(c *gin.Context) (string, bool) {
	addr := c.Param("address")
	host := addr
	if hostOnly, _, err := net.SplitHostPort(addr); err == nil {
		host = hostOnly
	}
	if net.ParseIP(host) == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_address",
			Message: "Printer address must be an IP, optionally with a port",
		})
		return "", false
	}
	return addr, true
}

func (h *PrinterHandler) GetPrinterStatus(c *gin.Context) {
	addr, ok := h.parseAddress(c)
	if !ok {
		return
	}

	status, err := h.printers.CheckStatus(c.Request.Context(), addr)
	if err != nil {
		if errors.Is(err, printer.ErrConnectionFailed) {
			c.JSON(http.StatusOK, PrinterStatusResponse{
				Address:      addr,
				Status:       printer.StatusOffline,
				PrinterState: "unknown",
				Warning:      "none",
				Error:        "connection_failed",
				MediaError:   "none",
				LastChecked:  h.now(),
			})
			return
		}
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "status_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, PrinterStatusResponse{
		Address:      addr,
		Status:       printer.Summary(status),
		PrinterState: status.PrinterState,
		Warning:      status.Warning,
		Error:        status.Error,
		MediaError:   status.MediaError,
		IsOnline:     status.IsOnline,
		CanPrint:     status.CanPrint,
		LastChecked:  status.LastChecked,
	})
}

// TestPrinter sends a calibration label straight to the printer, outside
// the job source.
func (h *PrinterHandler) TestPrinter(c *gin.Context) {
	addr, ok := h.parseAddress(c)
	if !ok {
		return
	}

	var req TestPrintRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid_request",
				Message: err.Error(),
			})
			return
		}
	}

	artifact, err := render.TestLabel(req.WidthMM, req.HeightMM, req.Name, addr)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "generation_error",
			Message: err.Error(),
		})
		return
	}

	if _, err := h.printers.Print(c.Request.Context(), addr, artifact); err != nil {
		if errors.Is(err, printer.ErrConnectionFailed) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error:   "printer_offline",
				Message: "Printer is offline",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "print_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Test print sent successfully",
	})
}

func RegisterPrinterRoutes(router *gin.RouterGroup, handler *PrinterHandler) {
	printers := router.Group("/printers/:address")
	{
		printers.GET("/status", handler.GetPrinterStatus)
		printers.POST("/test", handler.TestPrinter)
	}
}
