/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

// dialcoachd is the dialcoach backend server: a multi-tenant sales-call
// coaching service with transcript redaction, training assignments,
// company chat and per-user API quotas.
package main

import (
	"context"
	"flag"
	"fmt"
	golog "log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/dialcoach/dialcoach/api"
	"github.com/dialcoach/dialcoach/chat"
	"github.com/dialcoach/dialcoach/coach"
	"github.com/dialcoach/dialcoach/config"
	"github.com/dialcoach/dialcoach/httpserver"
	"github.com/dialcoach/dialcoach/httpserver/middleware"
	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/ratelimit"
	"github.com/dialcoach/dialcoach/service"
	"github.com/dialcoach/dialcoach/storage"
	"github.com/dialcoach/dialcoach/transcribe"
)

const envVarsPrefix = "dialcoach"

func main() {
	if err := runApp(); err != nil {
		golog.Fatal(err)
	}
}

func runApp() error {
	configPath := flag.String("config", "config.yml", "path to the configuration file")
	flag.Parse()

	// .env is optional; deployments usually pass environment variables directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load .env file: %w", err)
	}

	cfg, err := loadAppConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, loggerClose := log.NewLogger(cfg.Log)
	defer loggerClose()

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Error("failed to close storage", log.Error(closeErr))
		}
	}()

	quotaStore := ratelimit.NewQuotaStore()
	hub := chat.NewHub(store, logger)

	quotaMetrics := middleware.NewQuotaMetricsCollector("dialcoach")
	quotaMetrics.MustRegister()
	defer quotaMetrics.Unregister()

	handlers := &api.Handlers{
		ErrorDomain:  api.ErrorDomain,
		Store:        store,
		Hub:          hub,
		Logger:       logger,
		QuotaStore:   quotaStore,
		QuotaLimit:   cfg.API.Quota.Limit,
		QuotaWindow:  time.Duration(cfg.API.Quota.Window),
		QuotaRoutes:  cfg.API.Quota.Routes,
		QuotaMetrics: quotaMetrics,
	}

	if cfg.Transcribe.BaseURL != "" {
		transcriber, trErr := transcribe.NewClient(cfg.Transcribe, logger)
		if trErr != nil {
			return fmt.Errorf("create transcription client: %w", trErr)
		}
		handlers.Transcriber = transcriber
	} else {
		logger.Warn("transcription provider is not configured, transcription requests will be rejected")
	}

	if cfg.Coach.APIKey != "" {
		feedbackCoach, coachErr := coach.New(cfg.Coach)
		if coachErr != nil {
			return fmt.Errorf("create coach: %w", coachErr)
		}
		handlers.Coach = feedbackCoach
	} else {
		logger.Warn("coach is not configured, feedback requests will be rejected")
	}

	srv, err := httpserver.New(cfg.Server, logger, httpserver.Opts{
		ServiceNameInURL: "dialcoach",
		ErrorDomain:      api.ErrorDomain,
		APIRoutes: map[httpserver.APIVersion]httpserver.APIRoute{
			1: handlers.Routes,
		},
		HealthCheck:      makeHealthCheck(store),
		MetricsNamespace: "dialcoach",
		MaxRate:          cfg.API.MaxRate(),
	})
	if err != nil {
		return fmt.Errorf("create HTTP server: %w", err)
	}

	quotaSweeper := service.NewWorkerUnit(service.NewPeriodicWorker(
		service.WorkerFunc(func(ctx context.Context) error {
			quotaStore.RemoveExpired()
			return nil
		}), ratelimit.DefaultSweepInterval, logger))

	return service.New(logger, service.NewCompositeUnit(
		srv,
		service.NewWorkerUnit(hub),
		quotaSweeper,
	)).Start()
}

func makeHealthCheck(store *storage.Store) httpserver.HealthCheck {
	return func(ctx context.Context) (httpserver.HealthCheckResult, error) {
		status := httpserver.HealthCheckStatusOK
		if err := store.Ping(ctx); err != nil {
			status = httpserver.HealthCheckStatusFail
		}
		return httpserver.HealthCheckResult{"storage": status}, nil
	}
}

func loadAppConfig(path string) (*AppConfig, error) {
	cfgLoader := config.NewDefaultLoader(envVarsPrefix)
	cfg := NewAppConfig()
	if err := cfgLoader.LoadFromFile(path, config.DataTypeYAML, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
