package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/anoixa/image-relay/api/core"
	"github.com/anoixa/image-relay/config"
	"github.com/anoixa/image-relay/internal/app"
)

const shutdownTimeout = 10 * time.Second

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start relay server",
	Run: func(cmd *cobra.Command, args []string) {
		if err := RunServer(); err != nil {
			log.Fatalf("Server exited with error: %v", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// RunServer 启动服务，收到 SIGINT/SIGTERM 后优雅退出
func RunServer() error {
	config.InitConfig()
	cfg := config.Get()

	container := app.NewContainer(cfg)
	defer func() {
		if err := container.Close(); err != nil {
			log.Printf("Error closing container: %v", err)
		}
	}()

	if err := container.Init(); err != nil {
		return err
	}
	InitDatabase(container)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := core.NewServer(cfg, &core.RouterDependencies{
		Context:       ctx,
		Config:        cfg,
		Health:        container,
		Hub:           container.Hub,
		Dispatcher:    container.Feed,
		ClientConfig:  container.ClientConfig(),
		ImagesRepo:    container.ImagesRepo,
		Artifacts:     container.Artifacts,
		CacheProvider: container.Cache,
		Metrics:       container.Metrics,
		Logger:        container.Logger.Named("ws"),
		ServerVersion: core.ServerVersion{Version: config.Version, CommitHash: config.CommitHash},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Server started on %s", cfg.Addr())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// 已升级的 WebSocket 连接不被 Shutdown 跟踪，先关闭所有连接
		container.Hub.Close()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Println("Server exited successfully")
	return nil
}

// InitDatabase init database using DI container
func InitDatabase(container *app.Container) {
	factory := container.GetDatabaseFactory()
	log.Printf("Initializing database, database type: %s", factory.GetProvider().Name())

	// 自动DDL
	if err := factory.AutoMigrate(); err != nil {
		log.Fatalf("Failed to auto migrate database: %v", err)
	}

	log.Println("Database initialized successfully")
}
