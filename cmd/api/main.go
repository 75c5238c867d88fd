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

	"github.com/timmy/roastpage/internal/api"
	"github.com/timmy/roastpage/internal/config"
	"github.com/timmy/roastpage/internal/events"
	"github.com/timmy/roastpage/internal/logger"
	"github.com/timmy/roastpage/internal/repository"
	"github.com/timmy/roastpage/internal/service"
	"github.com/timmy/roastpage/internal/storage"
	"github.com/timmy/roastpage/internal/worker"
)

func main() {
	// Logger first, configured from LOG_* env.
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// CONFIG_PATH overrides the default ./configs/config.yaml lookup.
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	defer func() {
		if err := repository.Close(db); err != nil {
			appLogger.WithError(err).Warn("Failed to close database")
		}
	}()

	roastRepo := repository.NewRoastRepository(db)
	feedbackRepo := repository.NewFeedbackRepository(db)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	caps := service.NewCapabilities(cfg)
	if caps.LimitedFunctionality() {
		appLogger.WithField("missing", caps.Check()).Warn("Running with limited functionality")
	}

	var inspector service.Inspector
	if cfg.Analysis.InspectPage {
		inspector = service.NewPageInspector(cfg.Analysis.InspectTimeout)
	}
	analysisService := service.NewAnalysisService(&cfg.Analysis, inspector)
	screenshotService := service.NewScreenshotService(&cfg.Screenshot)

	dispatcher := worker.NewDispatcher(ctx, cfg.Roast.Workers, cfg.Roast.QueueSize)

	roastService := service.NewRoastService(
		roastRepo,
		feedbackRepo,
		screenshotService,
		analysisService,
		dispatcher,
		service.RoastConfig{
			CaptureTimeout:  cfg.Screenshot.Timeout,
			AnalysisTimeout: cfg.Analysis.Timeout,
			ExecuteTimeout:  cfg.Roast.ExecuteTimeout,
		},
	)

	if cfg.Screenshot.Archive {
		objectStorage, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
		roastService.SetArchive(service.NewScreenshotArchive(objectStorage, cfg.Storage.Prefix, cfg.Screenshot.Timeout))
		appLogger.WithField("bucket", cfg.Storage.Bucket).Info("Screenshot archiving enabled")
	}

	readerService := service.NewReaderService(roastRepo, feedbackRepo, caps, cfg.Roast.CacheTTL)
	hub := events.NewHub()
	roastService.AddListener(readerService)
	roastService.AddListener(service.NewEventPublisher(hub))

	if cfg.Roast.RecoverOnStart {
		n, err := roastService.RecoverStale(ctx, cfg.Roast.StaleAfter)
		if err != nil {
			appLogger.WithError(err).Warn("Failed to recover stale roasts")
		} else if n > 0 {
			appLogger.WithField(logger.FieldCount, n).Info("Recovered stale roasts")
		}
	}

	router := api.SetupRouter(api.Dependencies{
		Roasts:  roastService,
		Reader:  readerService,
		Hub:     hub,
		DB:      roastRepo,
		Workers: dispatcher,
		Logger:  appLogger,
	}, &cfg.Server)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":    cfg.Server.Port,
			"mode":    cfg.Server.Mode,
			"driver":  cfg.Database.Driver,
			"workers": cfg.Roast.Workers,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Error("Server stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Server forced to shutdown")
	}
	// Roasts cancelled here are left processing, not failed, and RecoverStale
	// resubmits them on the next start.
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Background roasts did not finish before shutdown")
	}

	appLogger.Info("Server exited")
}
