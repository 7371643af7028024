package core

import (
	"net/http"

	"github.com/anoixa/image-relay/config"
)

// NewServer 创建 http.Server
// WriteTimeout 不作用于已升级的 WebSocket 连接，写超时由连接自身控制
func NewServer(cfg *config.Config, deps *RouterDependencies) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      NewRouter(deps),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  cfg.ServerIdleTimeout,
	}
}
