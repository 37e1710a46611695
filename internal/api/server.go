package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/workcell-kpi/internal/api/handlers"
	"github.com/platformbuilds/workcell-kpi/internal/api/middleware"
	"github.com/platformbuilds/workcell-kpi/internal/config"
	"github.com/platformbuilds/workcell-kpi/internal/monitoring"
	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

type Server struct {
	config     *config.Config
	logger     logger.Logger
	kpi        handlers.KPIService
	health     handlers.HealthDeps
	router     *gin.Engine
	httpServer *http.Server
}

func NewServer(cfg *config.Config, log logger.Logger, svc handlers.KPIService, health handlers.HealthDeps) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	server := &Server{
		config: cfg,
		logger: log,
		kpi:    svc,
		health: health,
		router: router,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Tracing())
	s.router.Use(middleware.RequestLogger(s.logger))
	s.router.Use(monitoring.HTTPMetricsMiddleware())
	s.router.Use(middleware.CORSMiddleware(s.config.CORS))
	s.router.Use(middleware.NoStore())
	s.router.Use(middleware.ErrorHandler(s.logger))

	if s.config.Monitoring.PrometheusEnabled {
		monitoring.SetupPrometheusMetrics(s.router, s.config.Monitoring.MetricsPath, s.health.Version)
	}
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.health, s.logger)
	s.router.GET("/health", healthHandler.HealthCheck)
	s.router.GET("/ready", healthHandler.ReadinessCheck)

	kpiHandler := handlers.NewKPIHandler(s.kpi, s.logger)

	api := s.router.Group("/api")
	api.GET("/health", healthHandler.APIHealth)
	api.GET("/_whoami", kpiHandler.WhoAmI)

	api.GET("/dashboard", kpiHandler.GetDashboard)
	api.GET("/dashboard_devices", kpiHandler.GetDevices)
	api.GET("/devices", kpiHandler.GetDevices)
	api.GET("/analytics", kpiHandler.GetAnalytics)

	analyze := api.Group("/analyze")
	analyze.GET("/component_types", kpiHandler.GetComponentTypes)
	analyze.GET("/node_names", kpiHandler.GetNodeNames)
	analyze.GET("/nodes", kpiHandler.GetNodes)
	analyze.GET("/timeseries", kpiHandler.GetTimeseries)

	api.GET("/analysis/timeseries", kpiHandler.GetTrend)
}

func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("workcell KPI API server starting", "port", s.config.Port)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		s.logger.Info("Shutting down workcell KPI API gracefully")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler returns the underlying Gin engine so tests (or embedders) can mount it.
func (s *Server) Handler() http.Handler {
	return s.router
}
