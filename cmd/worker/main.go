package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Dylan-Perrill/Sora2-Tool/internal/adapter/repo"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/infra"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/providers/sora"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/reconcile"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/storage"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	if err := repo.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("worker: migrations failed")
	}

	client, err := sora.NewClient(sora.Options{
		APIKey:  cfg.SoraAPIKey,
		BaseURL: cfg.SoraBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure generation client")
	}

	store, err := buildStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure artifact storage")
	}

	engine := reconcile.NewEngine(repo.NewJobRepository(pool), client, store, &logger)
	poller := worker.NewPoller(engine, cfg.PollInterval, cfg.PollListLimit, &logger)

	if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: poller failed")
	}
	logger.Info().Msg("worker stopped")
}

func buildStore(cfg *infra.Config) (reconcile.ArtifactStore, error) {
	if cfg.StorageBackend == "supabase" {
		store, err := storage.NewSupabaseStore(storage.SupabaseOptions{
			URL:             cfg.SupabaseStorageURL,
			ServiceKey:      cfg.SupabaseServiceKey,
			VideoBucket:     cfg.VideoBucket,
			ReferenceBucket: cfg.ReferenceImageBucket,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	path := cfg.StoragePath
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	store, err := storage.NewFileStore(path, cfg.StorageBaseURL)
	if err != nil {
		return nil, err
	}
	return store, nil
}
