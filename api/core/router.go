package core

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/anoixa/image-relay/api/common"
	handlerImages "github.com/anoixa/image-relay/api/handler/images"
	handlerRealtime "github.com/anoixa/image-relay/api/handler/realtime"
	"github.com/anoixa/image-relay/api/handler/system"
	"github.com/anoixa/image-relay/api/middleware"
	"github.com/anoixa/image-relay/cache"
	"github.com/anoixa/image-relay/config"
	"github.com/anoixa/image-relay/internal/metrics"
	"github.com/anoixa/image-relay/internal/realtime"
	"github.com/anoixa/image-relay/storage"
)

// ServerVersion 版本信息
type ServerVersion struct {
	Version    string
	CommitHash string
}

// RouterDependencies 路由注册依赖
type RouterDependencies struct {
	// Context 服务关闭时取消，用于结束 WebSocket 读循环
	Context context.Context

	Config        *config.Config
	Health        HealthChecker
	Hub           *realtime.Hub
	Dispatcher    handlerRealtime.Dispatcher
	ClientConfig  realtime.ClientConfig
	ImagesRepo    handlerImages.Repository
	Artifacts     *storage.ArtifactWriter
	CacheProvider cache.Provider
	Metrics       *metrics.Metrics
	Logger        *zap.SugaredLogger
	ServerVersion ServerVersion

	// IPLookup 替换 /server-ip 的地址探测（测试使用）
	IPLookup func() string
}

// maxConcurrentRequests HTTP API 并发上限
const maxConcurrentRequests = 100

// NewRouter 创建 gin 引擎并注册所有路由
func NewRouter(deps *RouterDependencies) *gin.Engine {
	router := gin.New()

	// 仅在开发版本时启用 gin 日志
	if config.IsDevelopment() {
		router.Use(gin.Logger())
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.Config))
	_ = router.SetTrustedProxies(nil)

	router.Use(middleware.RequestID())
	router.Use(middleware.Metrics(deps.Metrics))

	RegisterRoutes(router, deps)
	return router
}

func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Length", "Content-Type", middleware.RequestIDHeader},
		MaxAge:       12 * time.Hour,
	}

	origins := []string{"*"}
	if cfg != nil {
		if o := cfg.AllowedOrigins(); len(o) > 0 {
			origins = o
		}
	}
	for _, o := range origins {
		if o == "*" {
			corsCfg.AllowAllOrigins = true
			break
		}
	}
	if !corsCfg.AllowAllOrigins {
		corsCfg.AllowOrigins = origins
	}
	return cors.New(corsCfg)
}

// RegisterRoutes 注册所有路由
func RegisterRoutes(router *gin.Engine, deps *RouterDependencies) {
	registerBasicRoutes(router, deps)
	registerRealtimeRoutes(router, deps)
	registerPublicRoutes(router, deps)
}

// registerBasicRoutes 注册基础路由
func registerBasicRoutes(router *gin.Engine, deps *RouterDependencies) {
	healthHandler := NewHealthHandler(deps.Health, deps.ServerVersion.Version)
	router.GET("/health", healthHandler.Handle)

	router.GET("/version", func(context *gin.Context) {
		common.RespondSuccess(context, gin.H{
			"version": deps.ServerVersion.Version,
			"commit":  deps.ServerVersion.CommitHash,
		})
	})

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
}

// registerRealtimeRoutes 注册 WebSocket 路由，不经过并发限制
func registerRealtimeRoutes(router *gin.Engine, deps *RouterDependencies) {
	ctx := deps.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var origins []string
	if deps.Config != nil {
		origins = deps.Config.AllowedOrigins()
	}

	wsHandler := handlerRealtime.NewHandler(ctx, deps.Hub, deps.Dispatcher, deps.ClientConfig, origins, deps.Logger)
	router.GET("/ws", wsHandler.Serve)
}

// registerPublicRoutes 注册公共接口路由
func registerPublicRoutes(router *gin.Engine, deps *RouterDependencies) {
	cacheHelper := cache.NewHelper(deps.CacheProvider, cacheTTL(deps.Config))
	limiter := middleware.NewConcurrencyLimiter(maxConcurrentRequests)

	systemHandler := system.NewHandler(cacheHelper, deps.IPLookup)
	router.GET("/server-ip", limiter.Middleware(), systemHandler.ServerIP)

	if deps.ImagesRepo != nil && deps.Artifacts != nil {
		imageHandler := handlerImages.NewHandler(deps.ImagesRepo, deps.Artifacts, cacheHelper)
		publicGroup := router.Group("/images")
		publicGroup.Use(limiter.Middleware())
		{
			publicGroup.GET("/:id", imageHandler.GetImage) // GET /images/{id}
		}
	}
}

func cacheTTL(cfg *config.Config) time.Duration {
	if cfg == nil {
		return 0
	}
	return cfg.CacheTTL
}
