// Package bootstrap provides dependency initialization for the LookFit fitting API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/HyungJun-An/LookFit/internal/config"
	"github.com/HyungJun-An/LookFit/internal/fitting"
	"github.com/HyungJun-An/LookFit/internal/huggingface"
	"github.com/HyungJun-An/LookFit/internal/media"
	"github.com/HyungJun-An/LookFit/internal/provider"
	"github.com/HyungJun-An/LookFit/internal/replicate"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	FittingService *fitting.Service
	MediaStore     media.Store
	Reconciler     *fitting.Reconciler
	pool           *pgxpool.Pool
}

// Close releases held resources.
func (d *Dependencies) Close() {
	if d.pool != nil {
		d.pool.Close()
	}
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initMediaStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	client, err := initProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	repo, pool, err := initRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	poller := fitting.NewPoller(client, logger,
		fitting.WithDebounce(cfg.PollDebounce()),
		fitting.WithMaxInFlight(int64(cfg.MaxProviderQueries)),
	)

	svc := fitting.NewService(repo, store, client, poller, logger,
		fitting.WithMaxImageBytes(cfg.MaxImageMB<<20),
		fitting.WithJobTimeout(cfg.JobTimeout()),
	)

	deps := &Dependencies{
		FittingService: svc,
		MediaStore:     store,
		pool:           pool,
	}
	if cfg.ReconcilerEnabled {
		deps.Reconciler = fitting.NewReconciler(svc, repo, cfg.ReconcilerInterval(), logger)
	}

	return deps, nil
}

// initMediaStore creates the appropriate media store backend based on configuration.
func initMediaStore(cfg *config.Config, logger *slog.Logger) (media.Store, error) {
	if cfg.S3Enabled() {
		s3Store, err := media.NewS3Store(media.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 media store: %w", err)
		}
		logger.Info("S3 media store configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := media.NewLocalStore(cfg.MediaDir, cfg.PublicBaseURL)
	if err != nil {
		return nil, fmt.Errorf("create local media store: %w", err)
	}
	logger.Info("local media store configured",
		slog.String("media_dir", cfg.MediaDir),
	)
	return localStore, nil
}

// initProvider creates the configured try-on provider client.
func initProvider(cfg *config.Config, logger *slog.Logger) (provider.Client, error) {
	switch cfg.Provider {
	case config.ProviderHuggingFace:
		client, err := huggingface.NewClient(cfg.HFSpaceURL, huggingface.WithToken(cfg.HFToken))
		if err != nil {
			return nil, fmt.Errorf("create Hugging Face client: %w", err)
		}
		logger.Info("huggingface provider configured",
			slog.String("space_url", cfg.HFSpaceURL),
		)
		return provider.NewHuggingFaceAdapter(client), nil
	default:
		client, err := replicate.NewClient(cfg.ReplicateModelVersion, replicate.WithAPIKey(cfg.ReplicateAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create Replicate client: %w", err)
		}
		logger.Info("replicate provider configured",
			slog.String("model_version", cfg.ReplicateModelVersion),
		)
		return provider.NewReplicateAdapter(client), nil
	}
}

// initRepository creates the job record store; an empty DATABASE_URL selects
// the in-memory repository.
func initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger) (fitting.Repository, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		logger.Info("in-memory job repository configured")
		return fitting.NewMemoryRepository(), nil, nil
	}

	pool, err := fitting.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("create database pool: %w", err)
	}
	repo := fitting.NewPostgresRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("postgres job repository configured")
	return repo, pool, nil
}
