package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/orrn/labeldispatch/internal/api/handlers"
	"github.com/orrn/labeldispatch/internal/api/middleware"
	"github.com/orrn/labeldispatch/internal/config"
)

type Deps struct {
	Controller handlers.ServiceController
	Health     handlers.HealthReader
	Published  handlers.PublishedHealth
	Audit      handlers.AuditReader
	Pending    handlers.PendingLister
	Printers   handlers.PrinterDiagnostics
	Sinks      handlers.HealthPublisher
	Settings   *config.Config
	Control    config.ControlConfig
	Logger     *zap.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	health := handlers.NewHealthHandler(deps.Published, deps.Health)
	router.GET("/healthz", health.Healthz)

	auth := middleware.NewAuthMiddleware(deps.Control)
	apiGroup := router.Group("/api")
	apiGroup.POST("/auth/login", auth.LoginHandler)
	apiGroup.POST("/auth/logout", auth.LogoutHandler)

	protected := apiGroup.Group("")
	protected.Use(auth.RequireAuth())
	handlers.RegisterServiceRoutes(protected, handlers.NewServiceHandler(deps.Controller, deps.Health))
	handlers.RegisterTemplateRoutes(protected, handlers.NewTemplateHandler())
	if deps.Audit != nil {
		handlers.RegisterAuditRoutes(protected, handlers.NewAuditHandler(deps.Audit))
	}
	if deps.Pending != nil {
		handlers.RegisterJobRoutes(protected, handlers.NewJobHandler(deps.Pending, deps.Controller))
	}
	if deps.Printers != nil {
		handlers.RegisterPrinterRoutes(protected, handlers.NewPrinterHandler(deps.Printers))
	}
	if deps.Sinks != nil {
		handlers.RegisterPublishRoutes(protected, handlers.NewPublishHandler(deps.Sinks, deps.Health))
	}
	if deps.Settings != nil {
		handlers.RegisterSettingsRoutes(protected, handlers.NewSettingsHandler(deps.Settings))
	}

	return router
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Server runs the router until Shutdown is called.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(cfg config.ServerConfig, handler http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Start listens in the background. Listen errors other than a clean
// shutdown are reported on the returned channel.
func (s *Server) Start() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control API listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
