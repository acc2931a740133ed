package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	h "github.com/veranemoloko/video-tracker/internal/api/http"
	cfgpkg "github.com/veranemoloko/video-tracker/internal/config"
	"github.com/veranemoloko/video-tracker/internal/domain"
	"github.com/veranemoloko/video-tracker/internal/events"
	"github.com/veranemoloko/video-tracker/internal/poller"
	repo "github.com/veranemoloko/video-tracker/internal/repository"
	svc "github.com/veranemoloko/video-tracker/internal/service"
	"github.com/veranemoloko/video-tracker/internal/tracker"
	"github.com/veranemoloko/video-tracker/internal/worker"
)

func main() {
	cfg, err := cfgpkg.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfgpkg.SetupLogger(cfg)
	logger.Info("configuration loaded successfully", "worker_base_url", cfg.WorkerBaseURL)

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *cfgpkg.Config, logger *slog.Logger) error {
	client := worker.NewClient(worker.Options{
		BaseURL:          cfg.WorkerBaseURL,
		Timeout:          cfg.WorkerTimeout,
		RateLimit:        cfg.WorkerRateLimit,
		RateBurst:        cfg.WorkerRateBurst,
		SubmitMaxElapsed: cfg.SubmitMaxElapsed,
		DefaultFormat:    cfg.DefaultFormat,
	}, logger)

	publisher := events.NewPublisher(logger)

	panelTracker, err := tracker.New(surfaceConfigs(cfg, client), repo.NewPanelStorage(logger), publisher, logger)
	if err != nil {
		return fmt.Errorf("failed to create tracker: %w", err)
	}

	trackerService := svc.NewTrackerService(client, panelTracker, logger)

	router := h.NewRouter(trackerService, publisher, cfg.MaxUploadSize, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  cfg.HTTPTimeout,
	}
	// event streams never finish on their own
	server.RegisterOnShutdown(publisher.Close)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		} else {
			logger.Info("server stopped gracefully")
		}

		return trackerService.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func surfaceConfigs(cfg *cfgpkg.Config, client *worker.Client) []tracker.SurfaceConfig {
	return []tracker.SurfaceConfig{
		{
			Surface: domain.SurfaceCollection,
			Query:   client.StatusQuery(worker.JobCollection),
			Poll:    poller.Config{Interval: cfg.CollectionInterval, Immediate: true},
		},
		{
			Surface:   domain.SurfaceDownload,
			Query:     client.StatusQuery(worker.JobDownload),
			Poll:      poller.Config{Interval: cfg.DownloadInterval},
			AutoReset: cfg.DownloadAutoReset,
		},
		{
			Surface: domain.SurfaceSceneDetection,
			Query:   client.StatusQuery(worker.JobSceneDetection),
			Poll:    poller.Config{Interval: cfg.SceneDetectionInterval},
		},
	}
}
