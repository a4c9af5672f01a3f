// Package debugapi exposes a small HTTP surface for inspecting and driving
// a warmcache layer from outside the host process.
package debugapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	perrors "github.com/jmgilman/go/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/warmcache/coordinator"
	"github.com/IvanBrykalov/warmcache/internal/logger"
	"github.com/IvanBrykalov/warmcache/prefetch"
)

// Deps are the components the routes operate on.
type Deps struct {
	Coordinator *coordinator.Coordinator
	Scheduler   *prefetch.Scheduler
	Network     *prefetch.Connection
	Gatherer    prometheus.Gatherer
	Logger      *zap.Logger
}

// StatsResponse is the body of GET /stats.
type StatsResponse struct {
	coordinator.Stats
	PrefetchInFlight int `json:"prefetch_in_flight"`
	PrefetchRunning  int `json:"prefetch_running"`
}

// PrefetchRequest is the body of POST /prefetch.
type PrefetchRequest struct {
	URL      string `json:"url" binding:"required"`
	Priority string `json:"priority"`
	Cache    *bool  `json:"cache"`
}

// NetworkRequest is the body of PUT /network.
type NetworkRequest struct {
	EffectiveType string `json:"effective_type"`
	SaveData      bool   `json:"save_data"`
}

type handler struct {
	deps Deps
	log  *zap.Logger
}

// NewRouter builds the gin engine serving:
//
//	GET  /healthz
//	GET  /stats
//	POST /clear
//	POST /prefetch   {"url": "...", "priority": "high|low", "cache": true}
//	PUT  /network    {"effective_type": "4g", "save_data": false}
//	GET  /metrics
func NewRouter(deps Deps) *gin.Engine {
	h := &handler{deps: deps, log: logger.OrNop(deps.Logger).Named("debugapi")}

	r := gin.New()
	r.Use(gin.Recovery(), h.requestLogger())

	r.GET("/healthz", h.health)
	r.GET("/stats", h.stats)
	r.POST("/clear", h.clear)
	r.POST("/prefetch", h.prefetch)
	r.PUT("/network", h.network)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handler) stats(c *gin.Context) {
	resp := StatsResponse{Stats: h.deps.Coordinator.Stats(c.Request.Context())}
	if h.deps.Scheduler != nil {
		resp.PrefetchInFlight = h.deps.Scheduler.InFlight()
		resp.PrefetchRunning = h.deps.Scheduler.Running()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handler) clear(c *gin.Context) {
	if err := h.deps.Coordinator.ClearAll(c.Request.Context()); err != nil {
		respondError(c, http.StatusInternalServerError, perrors.Wrap(err, perrors.CodeDatabase, "clear caches"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) prefetch(c *gin.Context) {
	if h.deps.Scheduler == nil {
		respondError(c, http.StatusServiceUnavailable, perrors.New(perrors.CodeUnavailable, "prefetch scheduler not configured"))
		return
	}
	var req PrefetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, perrors.Wrap(err, perrors.CodeInvalidInput, "invalid prefetch request"))
		return
	}

	priority := prefetch.Low
	switch req.Priority {
	case "", "low":
	case "high":
		priority = prefetch.High
	default:
		respondError(c, http.StatusBadRequest, perrors.Newf(perrors.CodeInvalidInput, "unknown priority %q", req.Priority))
		return
	}
	cacheBody := req.Cache == nil || *req.Cache

	task := prefetch.NewTask(req.URL, priority, cacheBody)
	accepted := h.deps.Scheduler.Submit(task)
	c.JSON(http.StatusAccepted, gin.H{"id": task.ID, "accepted": accepted})
}

func (h *handler) network(c *gin.Context) {
	if h.deps.Network == nil {
		respondError(c, http.StatusServiceUnavailable, perrors.New(perrors.CodeUnavailable, "network state not configured"))
		return
	}
	var req NetworkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, perrors.Wrap(err, perrors.CodeInvalidInput, "invalid network request"))
		return
	}
	h.deps.Network.Update(req.EffectiveType, req.SaveData)
	c.JSON(http.StatusOK, gin.H{
		"effective_type": req.EffectiveType,
		"save_data":      req.SaveData,
		"constrained":    prefetch.Constrained(h.deps.Network),
	})
}

func respondError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, perrors.ToJSON(err))
}

// requestLogger logs one structured line per request.
func (h *handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		}
		switch {
		case status >= 500:
			h.log.Error("HTTP request", fields...)
		case status >= 400:
			h.log.Warn("HTTP request", fields...)
		default:
			h.log.Debug("HTTP request", fields...)
		}
	}
}
