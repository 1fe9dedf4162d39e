package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/Dylan-Perrill/Sora2-Tool/internal/adapter/repo"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/http/handlers"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/http/httpapi"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/infra"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/providers/sora"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/reconcile"
	"github.com/Dylan-Perrill/Sora2-Tool/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	if err := repo.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	client, err := sora.NewClient(sora.Options{
		APIKey:  cfg.SoraAPIKey,
		BaseURL: cfg.SoraBaseURL,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure generation client")
	}

	store, staticDir, err := buildStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure artifact storage")
	}

	engine := reconcile.NewEngine(repo.NewJobRepository(pool), client, store, &logger)
	app := handlers.NewApp(engine, client, &logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		StaticDir:       staticDir,
		Logger:          &logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// buildStore selects the artifact store backend. The filesystem backend also
// returns the directory the router should serve under /static/.
func buildStore(cfg *infra.Config) (reconcile.ArtifactStore, string, error) {
	if cfg.StorageBackend == "supabase" {
		store, err := storage.NewSupabaseStore(storage.SupabaseOptions{
			URL:             cfg.SupabaseStorageURL,
			ServiceKey:      cfg.SupabaseServiceKey,
			VideoBucket:     cfg.VideoBucket,
			ReferenceBucket: cfg.ReferenceImageBucket,
		})
		return store, "", err
	}

	path := cfg.StoragePath
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	store, err := storage.NewFileStore(path, cfg.StorageBaseURL)
	return store, path, err
}
