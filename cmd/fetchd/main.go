package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/heimdex/heimdex-fetch/internal/api"
	"github.com/heimdex/heimdex-fetch/internal/config"
	"github.com/heimdex/heimdex-fetch/internal/download"
	"github.com/heimdex/heimdex-fetch/internal/engine"
	"github.com/heimdex/heimdex-fetch/internal/estimate"
	"github.com/heimdex/heimdex-fetch/internal/jobs"
	"github.com/heimdex/heimdex-fetch/internal/logging"
	"github.com/heimdex/heimdex-fetch/internal/retention"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	// A missing .env is normal in production.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DownloadsDir(), 0755); err != nil {
		return fmt.Errorf("failed to create downloads dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting fetchd",
		"version", config.Version,
		"commit", config.GitCommit,
		"downloads_dir", cfg.DownloadsDir(),
		"retention", cfg.Retention().String(),
	)

	store := jobs.NewStore()

	engCfg := engine.DefaultConfig(logger)
	engCfg.BinaryPath = cfg.YtDlpPath()
	engCfg.MaxFileSizeMB = cfg.MaxFileSizeMB()
	eng := engine.NewYtDlpEngine(engCfg)

	version := engine.NewCachedVersion(eng, logger)
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if v, err := version.Refresh(initCtx); err != nil {
		logger.Warn("initial yt-dlp version probe failed", "error", err)
	} else {
		logger.Info("yt-dlp detected", "version", v)
	}
	initCancel()

	downloads := download.NewService(store, eng, download.Config{
		Dir:           cfg.DownloadsDir(),
		PublicURL:     cfg.PublicURL(),
		MaxConcurrent: cfg.MaxConcurrent(),
		Logger:        logger,
	})
	estimator := estimate.NewSimulator(eng, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sweeper := retention.NewSweeper(store, retention.Config{
		Dir:       cfg.DownloadsDir(),
		Interval:  cfg.CleanupInterval(),
		Retention: cfg.Retention(),
		Logger:    logger,
	})
	sweeper.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Bind:         cfg.Bind(),
		Port:         cfg.Port(),
		DownloadsDir: cfg.DownloadsDir(),
		CORSOrigins:  cfg.CORSOrigins(),
		Jobs:         store,
		Dispatcher:   downloads,
		Estimator:    estimator,
		Version:      version,
		Logger:       logger,
		StartTime:    startTime,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()
	sweeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete", "pending_jobs", store.Pending())
	return nil
}
