// Command server runs the ScanForge API: scan submission, status polling,
// live progress streaming, and the background scan worker in one process.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	appscan "github.com/scanforge/api/internal/app/scan"
	"github.com/scanforge/api/internal/config"
	"github.com/scanforge/api/internal/infra/acquire"
	"github.com/scanforge/api/internal/infra/cleanup"
	"github.com/scanforge/api/internal/infra/http"
	"github.com/scanforge/api/internal/infra/http/handler"
	"github.com/scanforge/api/internal/infra/http/routes"
	"github.com/scanforge/api/internal/infra/jobs"
	"github.com/scanforge/api/internal/infra/llm"
	"github.com/scanforge/api/internal/infra/postgres"
	"github.com/scanforge/api/internal/infra/redis"
	"github.com/scanforge/api/internal/infra/semgrep"
	"github.com/scanforge/api/internal/infra/websocket"
	"github.com/scanforge/api/pkg/domain/progress"
	"github.com/scanforge/api/pkg/logger"
	"github.com/scanforge/api/pkg/validator"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx := context.Background()

	// ==========================================================================
	// Configuration & Logger
	// ==========================================================================
	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	// ==========================================================================
	// Infrastructure
	// ==========================================================================
	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)

	if err := db.Migrate(ctx); err != nil {
		log.Error("failed to apply migrations", "error", err)
		return 1
	}
	log.Info("database connected")

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)

	// ==========================================================================
	// Scan pipeline
	// ==========================================================================
	tracker := progress.NewTracker(
		progress.WithRetention(cfg.Cleanup.ProgressCompletedTTL, cfg.Cleanup.ProgressFailedTTL),
	)

	acquirer := acquire.NewService(&cfg.Scanner, nil, log)
	if s3dl, s3err := acquire.NewS3Downloader(ctx, &cfg.S3); s3err != nil {
		log.Warn("object storage unavailable, s3 targets disabled", "error", s3err)
	} else {
		acquirer = acquire.NewService(&cfg.Scanner, s3dl, log)
	}

	runner := semgrep.NewRunner(&cfg.Scanner, tracker, log)

	normalizer, err := appscan.NewNormalizer(cfg.Scanner.SeverityRulesPath)
	if err != nil {
		log.Error("failed to load severity rules", "error", err)
		return 1
	}

	var provider llm.Provider
	provider, err = llm.NewProvider(&cfg.Enrichment)
	if err != nil {
		if !errors.Is(err, llm.ErrProviderNotConfigured) {
			log.Error("failed to initialize llm provider", "error", err)
			return 1
		}
		log.Info("llm enrichment disabled, no provider configured")
		provider = nil
	} else {
		log.Info("llm enrichment enabled", "provider", provider.Name(), "model", provider.Model())
	}
	enricher := appscan.NewEnricher(provider, cfg.Enrichment.MaxFindings, log)

	store := appscan.NewStore(
		postgres.NewProjectRepository(db),
		postgres.NewScanRepository(db),
		postgres.NewFindingRepository(db),
		log,
	)
	tokens := appscan.NewTokenVault()

	supervisor := appscan.NewSupervisor(
		&cfg.Scanner,
		acquirer,
		runner,
		normalizer,
		enricher,
		store,
		tracker,
		tokens,
		redisClient,
		log,
	)

	// ==========================================================================
	// Job Queue
	// ==========================================================================
	jobClient := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, log)
	defer closeWithLog(jobClient, "job client", log)

	worker := jobs.NewWorker(jobs.WorkerConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		Concurrency:   cfg.Worker.Concurrency,
	}, supervisor, log)

	service := appscan.NewService(
		&cfg.Scanner,
		store,
		tracker,
		jobClient,
		tokens,
		redisClient,
		validator.New(),
		log,
	)

	// ==========================================================================
	// WebSocket Hub
	// ==========================================================================
	hub := websocket.NewHub(log)
	hub.BindTracker(tracker)

	// ==========================================================================
	// Cleanup sweeper
	// ==========================================================================
	sweeper := cleanup.NewSweeper(&cfg.Cleanup, cfg.Scanner.TempRoot, log)

	// ==========================================================================
	// HTTP Server
	// ==========================================================================
	server := http.NewServer(cfg, log)
	routes.Register(server.Router(), routes.Handlers{
		Health:    handler.NewHealthHandler(db, redisClient),
		Scan:      handler.NewScanHandler(service, log),
		WebSocket: websocket.NewHandler(hub, log),
	})

	if err := worker.Start(); err != nil {
		log.Error("failed to start job worker", "error", err)
		return 1
	}

	// ==========================================================================
	// Run & Graceful Shutdown
	// ==========================================================================
	// The hub, sweeper, and HTTP server run under one errgroup: a failure in
	// any of them tears the whole process down instead of leaving it limping.
	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return sweeper.Start(gctx)
	})
	g.Go(func() error {
		return server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		worker.Stop()
		return server.Shutdown(shutdownCtx)
	})

	log.Info("application started", "http_addr", cfg.Server.Addr())

	if err := g.Wait(); err != nil {
		log.Error("run error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
