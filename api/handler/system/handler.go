package system

import (
	"net/http"

	"github.com/anoixa/image-relay/cache"
	"github.com/anoixa/image-relay/utils"
	"github.com/gin-gonic/gin"
)

// Handler 主机信息
type Handler struct {
	cacheHelper *cache.Helper
	lookup      func() string
}

// NewHandler 创建处理器，lookup 为 nil 时使用 utils.FirstNonLoopbackIPv4
func NewHandler(cacheHelper *cache.Helper, lookup func() string) *Handler {
	if lookup == nil {
		lookup = utils.FirstNonLoopbackIPv4
	}
	return &Handler{cacheHelper: cacheHelper, lookup: lookup}
}

// ServerIP GET /server-ip
// 返回 {"ip": "..."}，与旧客户端保持兼容，不使用通用响应包装
func (h *Handler) ServerIP(c *gin.Context) {
	var ip string
	if h.cacheHelper != nil {
		ip = h.cacheHelper.ServerIP(c.Request.Context(), h.lookup)
	} else {
		ip = h.lookup()
	}
	c.JSON(http.StatusOK, gin.H{"ip": ip})
}
