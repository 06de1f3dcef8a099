package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/energyingest/internal/api/handlers"
	"github.com/langchou/energyingest/internal/cache"
	"github.com/langchou/energyingest/internal/config"
	"github.com/langchou/energyingest/internal/logging"
	"github.com/langchou/energyingest/internal/metrics"
	"github.com/langchou/energyingest/internal/repository"
	"github.com/langchou/energyingest/internal/service"
	"github.com/langchou/energyingest/pkg/ws"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logger, err := logging.New(cfg.LogLevel, cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting energy ingestion engine", zap.String("port", cfg.ServerPort))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 连接数据库
	db, err := repository.New(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal("Failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database", zap.Error(err))
		}
		logger.Info("Database migrated successfully")
	}

	// 创建 Repository
	telemetryRepo := repository.NewTelemetryRepository(db)
	associationRepo := repository.NewAssociationRepository(db)

	m := metrics.New()

	// 创建 WebSocket Hub
	wsHub := ws.NewHub(logger)
	go wsHub.Run(ctx)

	// 创建服务
	telemetryService := service.NewTelemetryService(logger, telemetryRepo, m)
	telemetryService.AddNotifier("ws", wsHub)

	faultMonitor := service.NewFaultMonitor(logger, m)
	faultMonitor.AddNotifier("ws", wsHub)

	analyticsService := service.NewAnalyticsService(logger, telemetryRepo, associationRepo, m)
	analyticsService.AddObserver(faultMonitor)

	// 新连接的客户端先收到所有车辆的健康状态
	wsHub.SetInitDataProvider(func() any {
		return faultMonitor.AllHealth()
	})

	var publisher *cache.StatusPublisher

	// Redis 可选
	if cfg.RedisEnabled() {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			logger.Fatal("Failed to connect redis", zap.Error(err))
		}
		defer rdb.Close()

		publisher = cache.NewStatusPublisher(rdb, cfg.RedisStatusTTL)
		telemetryService.AddNotifier("redis", publisher)
		faultMonitor.AddNotifier("redis", publisher)
		logger.Info("Redis status publisher enabled", zap.String("addr", cfg.RedisAddr))
	}

	// 创建 HTTP 处理器
	handler := handlers.NewHandler(
		logger,
		telemetryService,
		analyticsService,
		telemetryRepo,
		associationRepo,
		db,
		wsHub,
	)
	handler.SetHealthReader(faultMonitor)
	if publisher != nil {
		handler.SetCache(publisher)
	}

	// 设置 Gin 模式
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handlers.RequestID())
	router.Use(handlers.CORS())
	router.Use(handlers.RequestLogger(logger))
	router.Use(m.Middleware())

	router.GET("/metrics", gin.WrapH(m.Handler()))

	// 注册路由
	handler.RegisterRoutes(router)

	// 启动 HTTP 服务器
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", server.Addr))

	// 等待退出信号
	<-ctx.Done()
	stop()

	logger.Info("Shutting down server...")

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
