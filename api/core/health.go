package core

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

const healthTimeout = 3 * time.Second

// HealthChecker 返回各依赖状态，值为 "ok" 表示正常
type HealthChecker interface {
	Health(ctx context.Context) map[string]string
}

// HealthHandler GET /health
type HealthHandler struct {
	checker HealthChecker
	version string
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(checker HealthChecker, version string) *HealthHandler {
	return &HealthHandler{checker: checker, version: version}
}

// Handle 任一依赖异常时返回 503
func (h *HealthHandler) Handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	checks := map[string]string{}
	if h.checker != nil {
		checks = h.checker.Health(ctx)
	}

	status := "ok"
	httpStatus := http.StatusOK
	for _, result := range checks {
		if result != "ok" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":  status,
		"uptime":  time.Since(startTime).Round(time.Second).String(),
		"version": h.version,
		"checks":  checks,
	})
}
