package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

// Pinger is a backing store that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheChecker is the health surface of cache.Store.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthDeps lists what readiness depends on. TSDB and Cache may be nil.
type HealthDeps struct {
	SQL     Pinger
	TSDB    Pinger
	Cache   CacheChecker
	Version string
}

type HealthHandler struct {
	deps    HealthDeps
	timeout time.Duration
	logger  logger.Logger
}

func NewHealthHandler(deps HealthDeps, log logger.Logger) *HealthHandler {
	return &HealthHandler{deps: deps, timeout: 5 * time.Second, logger: log}
}

// GET /health - liveness only
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "workcell-kpi",
		"version":   h.deps.Version,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// GET /api/health - relational store reachability, always 200
func (h *HealthHandler) APIHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	dbUp := h.deps.SQL != nil && h.deps.SQL.Ping(ctx) == nil
	c.JSON(http.StatusOK, gin.H{"status": "ok", "db": dbUp})
}

// GET /ready - 503 unless the relational store and cache answer. The TSDB
// only degrades readiness since the trend endpoint is auxiliary.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	check := func(name string, required bool, probe func(context.Context) error) {
		if err := probe(ctx); err != nil {
			h.logger.Warn("readiness probe failed", "dependency", name, "error", err)
			if required {
				checks[name] = "unhealthy"
				ready = false
			} else {
				checks[name] = "degraded"
			}
			return
		}
		checks[name] = "healthy"
	}

	if h.deps.SQL != nil {
		check("sql", true, h.deps.SQL.Ping)
	} else {
		checks["sql"] = "unhealthy"
		ready = false
	}
	if h.deps.Cache != nil {
		check("cache", true, h.deps.Cache.HealthCheck)
	}
	if h.deps.TSDB != nil {
		check("victoria_metrics", false, h.deps.TSDB.Ping)
	}

	status, httpStatus := "healthy", http.StatusOK
	if !ready {
		status, httpStatus = "unhealthy", http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, gin.H{
		"status":    status,
		"service":   "workcell-kpi",
		"version":   h.deps.Version,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
