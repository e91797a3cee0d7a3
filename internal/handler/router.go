package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/timetable/timetable-sync/internal/middleware"
)

// RouterConfig collects what NewRouter mounts.
type RouterConfig struct {
	Health   *HealthHandler
	Admin    *AdminHandler
	Auth     *middleware.APIKeyAuth
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewRouter builds the HTTP surface: probes and metrics are public, the
// admin API sits behind the API key middleware.
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/health/live", cfg.Health.LivenessProbe)
	r.GET("/health/ready", cfg.Health.ReadinessProbe)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if cfg.Admin != nil {
		api := r.Group("/api/v1")
		if cfg.Auth != nil {
			api.Use(cfg.Auth.Middleware())
		}
		api.POST("/sync", cfg.Admin.TriggerSync)
		api.POST("/gc", cfg.Admin.TriggerGC)
		api.GET("/timetable", cfg.Admin.ListTimetableChannels)
		api.GET("/timetable/:platform/:channel", cfg.Admin.GetTimetable)
		api.GET("/quota", cfg.Admin.GetQuota)
	}
	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Request.URL.Path == "/health/live" || c.Request.URL.Path == "/metrics" {
			return
		}
		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", c.ClientIP()),
		)
	}
}
