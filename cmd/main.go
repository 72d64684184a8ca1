package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rpworld/backend/internal/app"
	"rpworld/backend/internal/config"
	"rpworld/backend/internal/notify"
	"rpworld/backend/internal/storage"
	"rpworld/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupDependencies(cfg *config.Config, lg *zap.Logger) (*gorm.DB, *redis.Client) {
	db, err := storage.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		lg.Fatal("failed to connect database", zap.String("driver", cfg.DBDriver), zap.Error(err))
	}
	if err := storage.Migrate(db); err != nil {
		lg.Fatal("failed to run migrations", zap.Error(err))
	}

	if cfg.RedisAddr == "" {
		lg.Info("redis not configured, locks and broadcasts stay in-process")
		return db, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		lg.Fatal("failed to connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	lg.Info("database and redis connections established, migrations complete")
	return db, rdb
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, OutputPath: cfg.LogFile})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Sync()
	lg.Info("starting rpworld backend", zap.String("addr", cfg.HTTPAddr))

	db, rdb := setupDependencies(cfg, lg)

	var bot notify.Sender
	if cfg.TelegramToken != "" {
		api, err := notify.NewBot(cfg.TelegramToken)
		if err != nil {
			lg.Fatal("failed to start telegram bot", zap.Error(err))
		}
		lg.Info("telegram staff alerts enabled", zap.String("bot", api.Self.UserName))
		bot = api
	}

	a, err := app.New(cfg, db, rdb, bot, lg)
	if err != nil {
		lg.Fatal("init", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Load(ctx); err != nil {
		lg.Fatal("load state", zap.Error(err))
	}
	a.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http shutdown", zap.Error(err))
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}
