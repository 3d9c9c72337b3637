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

	"github.com/GoPolymarket/logreplay/internal/config"
	"github.com/GoPolymarket/logreplay/internal/handler"
	"github.com/GoPolymarket/logreplay/internal/pkg/logger"
	"github.com/GoPolymarket/logreplay/internal/repository"
	"github.com/GoPolymarket/logreplay/internal/service"
	"github.com/gin-gonic/gin"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 2. Initialize Logger
	logger.Init(cfg.Server.LogLevel)
	gin.SetMode(cfg.Server.Mode)

	// 3. Open Storage (fatal: nothing works without it)
	ctx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	stores, err := repository.Open(ctx, cfg)
	cancelInit()
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", cfg.Database.Provider, err)
	}
	logger.Info("Storage ready", "provider", stores.Provider)

	// 4. Initialize Core Services
	authSvc := service.NewAuthService(stores.Accounts, &cfg.Auth)
	if err := authSvc.EnsureDefaultAdmin(context.Background()); err != nil {
		log.Fatalf("Failed to bootstrap default admin: %v", err)
	}

	tailHub := service.NewTailHub()
	logSvc := service.NewAccessLogService(stores.AccessLogs, tailHub, cfg.Capture.QueueSize, cfg.Capture.Workers)
	replaySvc := service.NewReplayService(stores.AccessLogs, &cfg.Replay)

	rootCtx, stopJobs := context.WithCancel(context.Background())
	retention := service.NewRetentionJob(logSvc, &cfg.Retention)
	if err := retention.Start(rootCtx); err != nil {
		log.Fatalf("Failed to schedule retention purge: %v", err)
	}

	// 5. Setup Router
	r, err := handler.NewRouter(handler.Deps{
		Config:  cfg,
		Auth:    authSvc,
		Logs:    logSvc,
		Replay:  replaySvc,
		Tail:    tailHub,
		Limiter: service.NewLoginLimiter(&cfg.Auth),
	})
	if err != nil {
		log.Fatalf("Failed to build router: %v", err)
	}

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("logreplay started", "port", cfg.Server.Port, "viewer", cfg.Viewer.RoutePrefix, "upstream", cfg.Proxy.UpstreamURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// in-flight captures are drained before the store goes away
	stopJobs()
	retention.Stop()
	logSvc.Close()
	if err := stores.Close(); err != nil {
		logger.Error("Failed to close store", "error", err)
	}

	logger.Info("Server exiting")
}
