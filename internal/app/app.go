package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/anoixa/image-relay/cache"
	"github.com/anoixa/image-relay/config"
	"github.com/anoixa/image-relay/database"
	"github.com/anoixa/image-relay/database/repo/images"
	"github.com/anoixa/image-relay/internal/logger"
	"github.com/anoixa/image-relay/internal/metrics"
	"github.com/anoixa/image-relay/internal/realtime"
	"github.com/anoixa/image-relay/internal/services/feed"
	"github.com/anoixa/image-relay/internal/services/mirror"
	"github.com/anoixa/image-relay/internal/worker"
	"github.com/anoixa/image-relay/storage"
	"github.com/anoixa/image-relay/utils"
)

// Container 依赖注入容器 - 管理所有服务的生命周期
type Container struct {
	config          *config.Config
	databaseFactory *database.Factory

	Logger    *zap.SugaredLogger
	Metrics   *metrics.Metrics
	Cache     cache.Provider
	Storage   storage.Provider
	Artifacts *storage.ArtifactWriter
	Pool      *worker.Pool
	Mirror    mirror.Publisher
	Hub       *realtime.Hub

	ImagesRepo *images.Repository
	Feed       *feed.Service
}

// NewContainer 创建新的依赖注入容器
func NewContainer(cfg *config.Config) *Container {
	return &Container{
		config: cfg,
	}
}

// Init 初始化全部依赖，用于 serve
func (c *Container) Init() error {
	if err := c.InitDatabase(); err != nil {
		return err
	}
	if err := c.InitStorage(); err != nil {
		return err
	}
	if err := c.InitServices(); err != nil {
		return err
	}
	return nil
}

// InitDatabase 初始化日志、数据库与仓库
func (c *Container) InitDatabase() error {
	utils.LogIfDev("Initializing DI container...")

	if c.Logger == nil {
		log, err := logger.New(c.config.LogLevel, c.config.LogFormat)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		c.Logger = log
	}

	factory, err := database.NewFactory(c.config)
	if err != nil {
		return fmt.Errorf("failed to initialize database factory: %w", err)
	}
	c.databaseFactory = factory
	c.ImagesRepo = images.NewRepository(factory.GetProvider())

	utils.LogIfDev("Database factory initialized")
	return nil
}

// InitStorage 初始化图片文件存储
func (c *Container) InitStorage() error {
	provider, err := storage.NewProvider(c.config)
	if err != nil {
		return err
	}
	c.Storage = provider
	c.Artifacts = storage.NewArtifactWriter(provider)
	return nil
}

// InitServices 初始化缓存、指标、worker、镜像、Hub 与流水线
func (c *Container) InitServices() error {
	cacheProvider, err := cache.NewProvider(c.config)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	c.Cache = cacheProvider

	c.Metrics = metrics.New()

	c.Pool = worker.NewPool(c.config.GetWorkerCount(), c.config.WorkerQueueSize,
		worker.WithLogger(c.Logger.Named("worker")))
	c.Metrics.TrackPool(c.Pool)

	pub, err := mirror.New(c.config.KafkaBrokers(), c.config.MirrorKafkaTopic, c.Logger.Named("mirror"))
	if err != nil {
		return fmt.Errorf("failed to initialize mirror: %w", err)
	}
	c.Mirror = pub

	c.Hub = realtime.NewHub(
		realtime.WithHubLogger(c.Logger.Named("hub")),
		realtime.WithHubMetrics(c.Metrics),
	)

	c.Feed = feed.NewService(c.ImagesRepo, c.Artifacts, c.Hub,
		feed.WithContentType(c.config.ImageContentType),
		feed.WithMirror(c.Mirror, c.Pool),
		feed.WithMetrics(c.Metrics),
		feed.WithLogger(c.Logger.Named("feed")),
	)

	utils.LogIfDevf("Services initialized (cache: %s, storage: %s, mirror: %s)",
		c.Cache.Name(), c.Storage.Name(), c.Mirror.Name())
	return nil
}

// ClientConfig WebSocket 连接参数
func (c *Container) ClientConfig() realtime.ClientConfig {
	return realtime.ClientConfig{
		SendBuffer:      c.config.WSSendBuffer,
		MaxMessageBytes: c.config.MaxMessageBytes(),
		PingInterval:    c.config.WSPingInterval,
		WriteTimeout:    c.config.WSWriteTimeout,
	}
}

// GetDatabaseProvider 获取数据库提供者
func (c *Container) GetDatabaseProvider() database.Provider {
	if c.databaseFactory == nil {
		return nil
	}
	return c.databaseFactory.GetProvider()
}

// GetDatabaseFactory 获取数据库工厂
func (c *Container) GetDatabaseFactory() *database.Factory {
	return c.databaseFactory
}

// GetConfig 获取配置
func (c *Container) GetConfig() *config.Config {
	return c.config
}

// Health 各依赖的健康状态，"ok" 表示正常
func (c *Container) Health(ctx context.Context) map[string]string {
	checks := map[string]string{
		"database": "not initialized",
		"cache":    "not initialized",
		"storage":  "not initialized",
	}

	if p := c.GetDatabaseProvider(); p != nil {
		checks["database"] = status(p.Ping())
	}
	if c.Cache != nil {
		checks["cache"] = status(c.Cache.Health(ctx))
	}
	if c.Storage != nil {
		checks["storage"] = status(c.Storage.Health(ctx))
	}
	return checks
}

func status(err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}

// Close 按依赖顺序关闭：连接、worker、镜像、缓存、数据库
func (c *Container) Close() error {
	utils.LogIfDev("Closing DI container...")

	var errs []error
	if c.Hub != nil {
		c.Hub.Close()
	}
	if c.Pool != nil {
		c.Pool.Stop()
	}
	if c.Mirror != nil {
		if err := c.Mirror.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close mirror: %w", err))
		}
	}
	if c.Cache != nil {
		if err := c.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if c.databaseFactory != nil {
		if err := c.databaseFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	utils.LogIfDev("DI container closed")
	return errors.Join(errs...)
}
