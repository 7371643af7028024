package middleware

import (
	"strconv"
	"time"

	"github.com/anoixa/image-relay/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics 请求计数与耗时中间件
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		// 使用路由模板作为标签，未匹配的路由统一归类，避免标签基数膨胀
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTP(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
