package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/mindcare-booking-api/internal/service"
)

// DependencyCheck probes one backing service for readiness.
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// MetricsHandler exposes observability endpoints.
type MetricsHandler struct {
	metrics       *service.MetricsService
	checks        []DependencyCheck
	schemaVersion func(ctx context.Context) (int64, error)
	logger        *zap.Logger
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(metrics *service.MetricsService, schemaVersion func(ctx context.Context) (int64, error), logger *zap.Logger, checks ...DependencyCheck) *MetricsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetricsHandler{metrics: metrics, checks: checks, schemaVersion: schemaVersion, logger: logger}
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *MetricsHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}

// Health responds with a generic OK payload for liveness probes.
func (h *MetricsHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports whether every dependency answers and which schema version
// is applied.
func (h *MetricsHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(gin.H, len(h.checks))
	for _, dep := range h.checks {
		if err := dep.Check(ctx); err != nil {
			h.logger.Warn("readiness check failed", zap.String("dependency", dep.Name), zap.Error(err))
			deps[dep.Name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[dep.Name] = "up"
	}

	body := gin.H{"status": "ready", "dependencies": deps}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if h.schemaVersion != nil {
		if version, err := h.schemaVersion(ctx); err == nil {
			body["schema_version"] = version
		} else {
			h.logger.Warn("schema version unavailable", zap.Error(err))
		}
	}
	c.JSON(status, body)
}
