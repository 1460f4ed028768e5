package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/postpulse/internal/config"
	"github.com/postpulse/internal/db"
	"github.com/postpulse/internal/handler"
	"github.com/postpulse/internal/router"
	"github.com/postpulse/internal/service"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := config.NewLogger(cfg.LogLevel, false)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	// 初始化数据库
	gdb, err := db.Open(db.Options{
		Driver: cfg.DatabaseDriver,
		Path:   cfg.DatabasePath,
		DSN:    cfg.DatabaseDSN,
		Silent: cfg.GinMode == gin.ReleaseMode,
	})
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}

	opts := handler.Options{
		AISettings: service.SystemSettings{
			AIProvider:     cfg.AIProvider,
			OpenAIAPIKey:   cfg.OpenAIAPIKey,
			DeepSeekAPIKey: cfg.DeepSeekAPIKey,
			GeminiAPIKey:   cfg.GeminiAPIKey,
		},
		AITimeout:         cfg.AITimeout,
		CacheTTL:          cfg.CacheTTL,
		SummaryWindowDays: cfg.SummaryWindowDays,
		Logger:            logger,
	}

	if cfg.ScoringProfilePath != "" {
		profile, err := service.LoadScoringProfile(cfg.ScoringProfilePath)
		if err != nil {
			logger.Fatal("failed to load scoring profile", zap.String("path", cfg.ScoringProfilePath), zap.Error(err))
		}
		opts.Profile = &profile
	}

	// 配置了 Redis 时用其替代数据库缓存
	if cfg.RedisURL != "" {
		client, err := service.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal("failed to configure redis", zap.Error(err))
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, falling back to database cache", zap.Error(err))
			client.Close()
		} else {
			opts.Cache = service.NewRedisResponseCache(client, logger.Named("cache"))
			defer client.Close()
		}
		cancel()
	}

	gin.SetMode(cfg.GinMode)
	api := handler.NewAPI(gdb, opts)
	r := router.SetupRouter(api, cfg.SessionSecret, logger.Named("http"))

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to run server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
