package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platformbuilds/workcell-kpi/internal/kpi"
	"github.com/platformbuilds/workcell-kpi/pkg/logger"
)

// KPIService is the engine surface the HTTP layer serves.
type KPIService interface {
	Dashboard(ctx context.Context, entity, lookback string, strict bool) (*kpi.DashboardResult, error)
	Devices(ctx context.Context, entity string) (*kpi.DevicesResult, error)
	Analytics(ctx context.Context, entity, rangeName string) (*kpi.AnalyticsResult, error)
	ComponentTypes(ctx context.Context, site string) (*kpi.ComponentTypesResult, error)
	NodeNames(ctx context.Context, site, component string) (*kpi.NodeNamesResult, error)
	Nodes(ctx context.Context, site string) (*kpi.NodesResult, error)
	Timeseries(ctx context.Context, req kpi.TimeseriesRequest) (*kpi.TimeseriesResult, error)
	Trend(ctx context.Context, site, lookback, interval string) (*kpi.TrendResult, error)
	Settings() kpi.Settings
}

// KPIHandler serves the workcell KPI endpoints. Errors are attached to the
// gin context and rendered by middleware.ErrorHandler.
type KPIHandler struct {
	svc    KPIService
	logger logger.Logger
}

func NewKPIHandler(svc KPIService, log logger.Logger) *KPIHandler {
	RegisterValidators()
	return &KPIHandler{svc: svc, logger: log}
}

func bindQuery(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindQuery(dst); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return false
	}
	return true
}

// GetDashboard handles GET /api/dashboard?line_id=&lookback=&force=
func (h *KPIHandler) GetDashboard(c *gin.Context) {
	var q dashboardQuery
	if !bindQuery(c, &q) {
		return
	}
	res, err := h.svc.Dashboard(c.Request.Context(), q.LineID, q.Lookback, q.Force == 1)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetDevices handles GET /api/dashboard_devices and its /api/devices alias.
func (h *KPIHandler) GetDevices(c *gin.Context) {
	var q lineQuery
	if !bindQuery(c, &q) {
		return
	}
	res, err := h.svc.Devices(c.Request.Context(), q.LineID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetAnalytics handles GET /api/analytics?line_id=&range=
func (h *KPIHandler) GetAnalytics(c *gin.Context) {
	var q analyticsQuery
	if !bindQuery(c, &q) {
		return
	}
	res, err := h.svc.Analytics(c.Request.Context(), q.LineID, q.Range)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *KPIHandler) GetComponentTypes(c *gin.Context) {
	var q siteQuery
	if !bindQuery(c, &q) {
		return
	}
	res, err := h.svc.ComponentTypes(c.Request.Context(), q.Site)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *KPIHandler) GetNodeNames(c *gin.Context) {
	var q nodeNamesQuery
	if !bindQuery(c, &q) {
		return
	}
	res, err := h.svc.NodeNames(c.Request.Context(), q.Site, q.Component)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *KPIHandler) GetNodes(c *gin.Context) {
	var q siteQuery
	if !bindQuery(c, &q) {
		return
	}
	res, err := h.svc.Nodes(c.Request.Context(), q.Site)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetTimeseries handles GET /api/analyze/timeseries. component_types and
// node_names are comma-separated filters.
func (h *KPIHandler) GetTimeseries(c *gin.Context) {
	var q timeseriesQuery
	if !bindQuery(c, &q) {
		return
	}
	res, err := h.svc.Timeseries(c.Request.Context(), kpi.TimeseriesRequest{
		Site:       q.Site,
		Metric:     q.Metric,
		Range:      q.Range,
		Components: kpi.SplitList(q.ComponentTypes),
		Nodes:      kpi.SplitList(q.NodeNames),
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetTrend handles GET /api/analysis/timeseries?site=&lookback=&interval=
func (h *KPIHandler) GetTrend(c *gin.Context) {
	var q trendQuery
	if !bindQuery(c, &q) {
		return
	}
	res, err := h.svc.Trend(c.Request.Context(), q.Site, q.Lookback, q.Interval)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// WhoAmI echoes the effective KPI configuration.
func (h *KPIHandler) WhoAmI(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Settings())
}
