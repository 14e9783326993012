// Package main wires together the downloader service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ezetheking/tube-snatch/internal/api"
	"github.com/ezetheking/tube-snatch/internal/clock/system"
	"github.com/ezetheking/tube-snatch/internal/config"
	"github.com/ezetheking/tube-snatch/internal/download"
	"github.com/ezetheking/tube-snatch/internal/extract/ytdl"
	"github.com/ezetheking/tube-snatch/internal/fetch"
	"github.com/ezetheking/tube-snatch/internal/id/uuid"
	"github.com/ezetheking/tube-snatch/internal/logging"
	"github.com/ezetheking/tube-snatch/internal/progress"
	"github.com/ezetheking/tube-snatch/internal/storage/local"
	"github.com/ezetheking/tube-snatch/internal/storage/memory"
	"github.com/ezetheking/tube-snatch/internal/storage/postgres"
	"github.com/ezetheking/tube-snatch/internal/telemetry"
	"github.com/ezetheking/tube-snatch/internal/tube"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	telemetry.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	extractor := ytdl.New(logger.Named("ytdl"))
	if cfg.Download.InstallYTDLP {
		if err := ytdl.Install(ctx); err != nil {
			logger.Warn("yt-dlp install failed", zap.Error(err))
		}
	}

	var videos tube.VideoStore
	if cfg.DB.DSN != "" {
		pgStore, err := postgres.NewVideoStore(ctx, postgres.VideoStoreConfig{
			DSN:             cfg.DB.DSN,
			MaxConns:        cfg.DB.MaxConns,
			MinConns:        cfg.DB.MinConns,
			MaxConnLifetime: cfg.DB.ConnLifetime(),
		})
		if err != nil {
			logger.Fatal("postgres connect failed", zap.Error(err))
		}
		defer pgStore.Close()
		if err := pgStore.EnsureSchema(ctx); err != nil {
			logger.Fatal("schema migration failed", zap.Error(err))
		}
		videos = pgStore
		logger.Info("using postgres video store")
	} else {
		videos = memory.NewVideoStore()
		logger.Info("using in-memory video store")
	}

	media, err := local.New(local.Config{BaseDir: cfg.Download.Dir})
	if err != nil {
		logger.Fatal("media store init failed", zap.Error(err))
	}

	progressStore := progress.NewStore()
	idGen := uuid.New()

	runner := fetch.NewRunner(extractor, logger.Named("runner"))
	orchestrator := fetch.New(runner, fetch.Config{
		Catalog:            fetch.DefaultCatalog(),
		EarlyStopThreshold: cfg.Fetch.EarlyStopThreshold,
	}, logger.Named("fetch"))

	manager := download.New(
		extractor,
		videos,
		progressStore,
		media,
		system.New(),
		download.Config{
			QualityCeiling: cfg.Download.QualityCeiling,
			MergeFormat:    cfg.Download.MergeFormat,
		},
		logger.Named("download"),
	)

	apiServer := api.NewServer(
		orchestrator,
		videos,
		manager,
		progressStore,
		media,
		extractor,
		idGen,
		cfg,
		logger.Named("api"),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
