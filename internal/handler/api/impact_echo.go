package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	models "AstroSense/internal/domain/models"
	icache "AstroSense/internal/service/cache"
	"AstroSense/internal/service/metrics"
	"AstroSense/internal/service/ratelimit"
	"AstroSense/internal/usecase"
	xhttp "AstroSense/pkg/http"
	xlogger "AstroSense/pkg/logger"
)

// ImpactEchoHandler exposes the prediction pipeline over HTTP.
type ImpactEchoHandler struct {
	logger    *xlogger.Logger
	pipeline  *usecase.ImpactPipeline
	backtests *usecase.BacktestUseCase
	history   *usecase.HistoryUseCase

	cache icache.BytesCache
	rl    *ratelimit.Limiter
}

func NewImpactEchoHandler(
	logger *xlogger.Logger,
	pipeline *usecase.ImpactPipeline,
	backtests *usecase.BacktestUseCase,
	history *usecase.HistoryUseCase,
) *ImpactEchoHandler {
	metrics.Register()
	return &ImpactEchoHandler{
		logger:    logger,
		pipeline:  pipeline,
		backtests: backtests,
		history:   history,
		rl:        ratelimit.New(),
	}
}

// SetCache injects a response cache for the fetch-data endpoint.
func (h *ImpactEchoHandler) SetCache(c icache.BytesCache) { h.cache = c }

func (h *ImpactEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/predict-impact", h.PredictImpact)
	g.GET("/fetch-data", h.FetchData)
	g.GET("/alerts", h.Alerts)
	g.GET("/history", h.History)
	g.POST("/backtest", h.Backtest)
	g.POST("/backtest/control", h.BacktestControl)
	g.GET("/backtest/status", h.BacktestStatus)
	g.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (h *ImpactEchoHandler) PredictImpact(c echo.Context) error {
	start := time.Now()
	endpoint := "predict_impact"
	defer func() { metrics.PredictionLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":predict", 10, 5) {
		h.logger.Warn("predict-impact rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	req := &models.PredictImpactRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.pipeline.PredictImpact(c.Request().Context(), *req)
	if err != nil {
		metrics.PredictionErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("predict-impact usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ImpactEchoHandler) FetchData(c echo.Context) error {
	start := time.Now()
	endpoint := "fetch_data"
	defer func() { metrics.PredictionLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":fetch", 5, 2) {
		h.logger.Warn("fetch-data rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	const cacheKey = "fetch-data"
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(cacheKey); err != nil {
			h.logger.Warn("fetch-data cache_get_error", xlogger.Error(err))
		} else if ok {
			h.logger.Debug("fetch-data cache_hit")
			return c.JSONBlob(http.StatusOK, b)
		}
	}

	snap, err := h.pipeline.FetchData(c.Request().Context())
	if err != nil {
		metrics.PredictionErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("fetch-data error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	if h.cache != nil {
		if b, err := json.Marshal(snap); err == nil {
			if err := h.cache.SetBytes(cacheKey, b, 60*time.Second); err != nil {
				h.logger.Warn("fetch-data cache_set_error", xlogger.Error(err))
			}
		}
	}
	return xhttp.SuccessResponse(c, snap)
}

func (h *ImpactEchoHandler) Alerts(c echo.Context) error {
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.pipeline.Alerts(req.Prioritized, req.History))
}

func (h *ImpactEchoHandler) History(c echo.Context) error {
	p := usecase.GetHistoryParams{
		To:   time.Now().UTC(),
		From: time.Now().UTC().Add(-24 * time.Hour),
	}
	if v := c.QueryParam("from"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return xhttp.BadRequestResponse(c, "invalid from timestamp")
		}
		p.From = ts
	}
	if v := c.QueryParam("to"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return xhttp.BadRequestResponse(c, "invalid to timestamp")
		}
		p.To = ts
	}

	res, err := h.history.GetMeasurements(c.Request().Context(), p)
	if err != nil {
		h.logger.Error("history usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ImpactEchoHandler) Backtest(c echo.Context) error {
	start := time.Now()
	endpoint := "backtest"
	defer func() { metrics.PredictionLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	if !h.rl.Allow(c.RealIP()+":backtest", 2, 0.5) {
		h.logger.Warn("backtest rate_limited", xlogger.String("remote", c.RealIP()))
		return xhttp.DataResponse(c, http.StatusTooManyRequests, "rate limited")
	}

	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.backtests.Run(c.Request().Context(), *req)
	if err != nil {
		metrics.PredictionErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("backtest usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ImpactEchoHandler) BacktestControl(c echo.Context) error {
	req := &models.BacktestControlRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.backtests.Control(*req)
	if err != nil {
		h.logger.Error("backtest control error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

func (h *ImpactEchoHandler) BacktestStatus(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.backtests.Status())
}

func (h *ImpactEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "healthy"})
}
