package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"better-share/internal/api"
	"better-share/internal/middleware"
	"better-share/internal/repository"
	"better-share/internal/service"
	"better-share/internal/storage"
	"better-share/internal/websocket"
	"better-share/pkg/config"
	"better-share/pkg/db"
	"better-share/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// 初始化配置
	if err := config.Init(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.GlobalConfig

	if err := logger.InitLogger(cfg.Log.Level, cfg.Log.ProductionMode); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Log.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化数据库连接
	if err := db.InitDB(cfg.Database); err != nil {
		logger.L.Fatal("Failed to initialize database", zap.Error(err))
	}

	store, err := storage.New(cfg.Storage, cfg.Server.BaseURL)
	if err != nil {
		logger.L.Fatal("Failed to initialize object storage", zap.Error(err))
	}

	// 创建并启动观看者Hub
	hub, err := websocket.CreateHub(cfg.Messaging)
	if err != nil {
		logger.L.Fatal("Failed to create hub", zap.Error(err))
	}
	if err := websocket.StartHub(hub); err != nil {
		logger.L.Fatal("Failed to start hub", zap.Error(err))
	}

	shares, err := service.NewShareService(repository.NewShareRepository(db.DB), store, hub, service.ShareServiceOptions{
		BaseURL:    cfg.Server.BaseURL,
		PresignTTL: cfg.Share.PresignTTL,
		SecretCost: cfg.Share.SecretCost,
	})
	if err != nil {
		logger.L.Fatal("Failed to create share service", zap.Error(err))
	}

	deps := api.RouterDeps{
		Shares:         shares,
		Hub:            hub,
		MaxUploadBytes: cfg.Storage.MaxUploadMB << 20,
	}
	// 本地存储时由本服务接收上传
	if local, ok := store.(*storage.LocalStore); ok {
		deps.LocalStore = local
	}
	if cfg.Share.CreateRatePerMinute > 0 {
		deps.RateLimiter = middleware.NewRateLimiter(cfg.Share.CreateRatePerMinute, cfg.Share.CreateBurst)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewRouter(deps),
	}

	go func() {
		logger.L.Info("Share server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("baseURL", cfg.Server.BaseURL),
			zap.String("storage", cfg.Storage.Backend),
			zap.String("messaging", cfg.Messaging.Provider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	logger.L.Info("Shutting down share server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.L.Error("Server forced to shut down", zap.Error(err))
	}
	if err := hub.Close(); err != nil {
		logger.L.Warn("Failed to close hub", zap.Error(err))
	}
}
